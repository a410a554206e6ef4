package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/telemed-live/videocall-service/internal/audit"
	"github.com/telemed-live/videocall-service/internal/cache"
	"github.com/telemed-live/videocall-service/internal/domain"
	"github.com/telemed-live/videocall-service/internal/repository"
	"github.com/telemed-live/videocall-service/internal/sfu"
	"github.com/telemed-live/videocall-service/internal/token"
	"github.com/telemed-live/videocall-service/pkg/log"
)

type sessionServiceImpl struct {
	repo      repository.SessionRepository
	cache     cache.SessionCache
	cacheTTL  time.Duration
	allocator *sfu.Allocator
	issuer    *token.Issuer
	baseURL   string
	lookups   singleflight.Group
}

// NewSessionService creates the session orchestrator.
func NewSessionService(
	repo repository.SessionRepository,
	sessionCache cache.SessionCache,
	cacheTTL time.Duration,
	allocator *sfu.Allocator,
	issuer *token.Issuer,
	baseURL string,
) SessionService {
	return &sessionServiceImpl{
		repo:      repo,
		cache:     sessionCache,
		cacheTTL:  cacheTTL,
		allocator: allocator,
		issuer:    issuer,
		baseURL:   strings.TrimRight(baseURL, "/"),
	}
}

// CreateSession creates the one session bound to an appointment, or
// returns the existing one. Identity fields are validated here, at
// the write boundary, so reads never have to reinterpret them.
func (s *sessionServiceImpl) CreateSession(ctx context.Context, req *domain.CreateSessionRequest) (*domain.CreateSessionResponse, error) {
	l := log.Ctx(ctx)

	appointmentID, err := domain.CanonicalizeID(req.AppointmentID)
	if err != nil {
		return nil, fmt.Errorf("appointmentId: %w", err)
	}
	doctorID, err := domain.CanonicalizeID(req.DoctorID)
	if err != nil {
		return nil, fmt.Errorf("doctorId: %w", err)
	}
	patientID, err := domain.CanonicalizeID(req.PatientID)
	if err != nil {
		return nil, fmt.Errorf("patientId: %w", err)
	}

	// Idempotency: a second create for the same appointment returns
	// the existing record and never rebinds doctor or patient.
	existing, err := s.repo.GetByAppointmentID(ctx, appointmentID)
	if err == nil {
		return s.createResponse(existing), nil
	}
	if !errors.Is(err, repository.ErrSessionNotFound) {
		return nil, err
	}

	sessionID := uuid.New().String()
	session := &domain.Session{
		SessionID:     sessionID,
		AppointmentID: appointmentID,
		DoctorID:      doctorID,
		PatientID:     patientID,
		SFUNodeID:     s.allocator.Pick(),
		RoomName:      domain.RoomNameFor(sessionID),
		Status:        domain.SessionStatusActive,
	}

	if err := s.repo.Create(ctx, session); err != nil {
		if errors.Is(err, repository.ErrDuplicateAppointment) {
			// Lost a concurrent create race; the constraint guarantees
			// a winner exists, so return it.
			winner, rerr := s.repo.GetByAppointmentID(ctx, appointmentID)
			if rerr != nil {
				return nil, rerr
			}
			l.Debug().Str(log.FieldAppointmentID, appointmentID).Msg("create raced, returning existing session")
			return s.createResponse(winner), nil
		}
		return nil, err
	}

	s.primeCache(ctx, session)
	audit.Log(ctx, audit.ActionCreateSession, doctorID, sessionID, "session created")
	l.Info().
		Str(log.FieldSessionID, sessionID).
		Str(log.FieldAppointmentID, appointmentID).
		Str(log.FieldSFUNode, session.SFUNodeID).
		Msg("session created")

	return s.createResponse(session), nil
}

// JoinSession authorizes a participant and hands back a signed join
// URL. This check is the security boundary of the subsystem.
func (s *sessionServiceImpl) JoinSession(ctx context.Context, sessionID string, req *domain.JoinSessionRequest) (*domain.JoinSessionResponse, error) {
	l := log.Ctx(ctx)

	role := domain.Role(req.Role)
	if !role.Valid() {
		return nil, ErrInvalidRole
	}
	userID, err := domain.CanonicalizeID(req.UserID)
	if err != nil {
		if strings.TrimSpace(req.UserID) == "" {
			return nil, ErrMissingUser
		}
		return nil, fmt.Errorf("userId: %w", err)
	}

	session, err := s.lookupActive(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if !domain.IsCanonicalID(session.DoctorID) || !domain.IsCanonicalID(session.PatientID) {
		// A malformed stored identity means the write boundary was
		// bypassed. Guessing the canonical value here would mask the
		// originating bug, so reject the operation instead.
		l.Error().
			Str(log.FieldSessionID, sessionID).
			Msg("stored identity fields are not canonical, refusing join")
		return nil, ErrCorruptedSession
	}

	expected, err := session.ParticipantID(role)
	if err != nil {
		return nil, ErrInvalidRole
	}
	if expected != userID {
		audit.LogWithDetail(ctx, audit.ActionJoinDenied, userID, sessionID, string(role), "join denied: identity mismatch")
		return nil, ErrIdentityMismatch
	}

	joinToken, err := s.issuer.Issue(userID, session.SessionID, session.RoomName, role)
	if err != nil {
		return nil, err
	}

	audit.LogWithDetail(ctx, audit.ActionJoinSession, userID, sessionID, string(role), "join authorized")

	return &domain.JoinSessionResponse{
		JoinURL:   fmt.Sprintf("%s/join/%s?token=%s", s.baseURL, sessionID, url.QueryEscape(joinToken)),
		ExpiresIn: int(s.issuer.TTL().Seconds()),
	}, nil
}

// lookupActive reads a session through the cache, collapsing
// concurrent misses for the same ID into one registry query.
func (s *sessionServiceImpl) lookupActive(ctx context.Context, sessionID string) (*domain.Session, error) {
	if s.cache != nil {
		if session, err := s.cache.Get(ctx, sessionID); err == nil {
			return session, nil
		}
	}

	v, err, _ := s.lookups.Do(sessionID, func() (interface{}, error) {
		session, err := s.repo.GetActiveBySessionID(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		s.primeCache(ctx, session)
		return session, nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return v.(*domain.Session), nil
}

func (s *sessionServiceImpl) primeCache(ctx context.Context, session *domain.Session) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, session, s.cacheTTL); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldSessionID, session.SessionID).Msg("failed to prime session cache")
	}
}

func (s *sessionServiceImpl) createResponse(session *domain.Session) *domain.CreateSessionResponse {
	return &domain.CreateSessionResponse{
		SessionID: session.SessionID,
		RoomName:  session.RoomName,
		SFUNodeID: session.SFUNodeID,
		BaseURL:   fmt.Sprintf("%s/join/%s", s.baseURL, session.SessionID),
	}
}

package service

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/telemed-live/videocall-service/internal/cache"
	"github.com/telemed-live/videocall-service/internal/domain"
	"github.com/telemed-live/videocall-service/internal/repository"
	"github.com/telemed-live/videocall-service/internal/sfu"
	"github.com/telemed-live/videocall-service/internal/token"
)

const testBaseURL = "http://localhost:4000"

func newTestService(t *testing.T) (SessionService, repository.SessionRepository) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=private"), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.SessionModel{}))

	repo := repository.NewGormSessionRepository(db)
	issuer, err := token.NewIssuer("test-secret", time.Hour)
	require.NoError(t, err)

	svc := NewSessionService(
		repo,
		cache.NewMemorySessionCache(),
		5*time.Minute,
		sfu.New([]string{"sfu-1", "sfu-2"}),
		issuer,
		testBaseURL,
	)
	return svc, repo
}

func createReq(appointment, doctor, patient string) *domain.CreateSessionRequest {
	return &domain.CreateSessionRequest{
		AppointmentID: appointment,
		DoctorID:      doctor,
		PatientID:     patient,
	}
}

func TestCreateSessionIsIdempotent(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.CreateSession(ctx, createReq("A1", "D1", "P1"))
	require.NoError(t, err)
	assert.NotEmpty(t, first.SessionID)
	assert.Equal(t, "room_"+first.SessionID, first.RoomName)
	assert.Equal(t, testBaseURL+"/join/"+first.SessionID, first.BaseURL)

	second, err := svc.CreateSession(ctx, createReq("A1", "D1", "P1"))
	require.NoError(t, err)
	assert.Equal(t, first.SessionID, second.SessionID)
	assert.Equal(t, first.RoomName, second.RoomName)
	assert.Equal(t, first.SFUNodeID, second.SFUNodeID)
}

func TestCreateSessionValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		req  *domain.CreateSessionRequest
	}{
		{name: "missing appointment", req: createReq("", "D1", "P1")},
		{name: "missing doctor", req: createReq("A1", "", "P1")},
		{name: "missing patient", req: createReq("A1", "D1", "")},
		{name: "serialized object as doctor id", req: createReq("A1", `{"user":{"_id":"D1"}}`, "P1")},
		{name: "wrapped object id as patient id", req: createReq("A1", "D1", "ObjectId('6932827e83ebb3c569')")},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			svc, _ := newTestService(t)
			_, err := svc.CreateSession(context.Background(), tc.req)
			assert.ErrorIs(t, err, domain.ErrMalformedID)
		})
	}
}

// racingRepo fails the first insert with a duplicate-key conflict,
// simulating a concurrent create that won the race.
type racingRepo struct {
	repository.SessionRepository
	winner   *domain.Session
	rejected bool
}

func (r *racingRepo) Create(ctx context.Context, session *domain.Session) error {
	if !r.rejected {
		r.rejected = true
		return repository.ErrDuplicateAppointment
	}
	return r.SessionRepository.Create(ctx, session)
}

func (r *racingRepo) GetByAppointmentID(ctx context.Context, appointmentID string) (*domain.Session, error) {
	if r.rejected && r.winner != nil {
		return r.winner, nil
	}
	return nil, repository.ErrSessionNotFound
}

func TestCreateSessionReReadsAfterLosingRace(t *testing.T) {
	t.Parallel()

	winner := &domain.Session{
		SessionID:     "winner-id",
		AppointmentID: "A1",
		DoctorID:      "D1",
		PatientID:     "P1",
		SFUNodeID:     "sfu-1",
		RoomName:      "room_winner-id",
		Status:        domain.SessionStatusActive,
	}
	repo := &racingRepo{winner: winner}

	issuer, err := token.NewIssuer("test-secret", time.Hour)
	require.NoError(t, err)
	svc := NewSessionService(repo, nil, 0, sfu.New(nil), issuer, testBaseURL)

	resp, err := svc.CreateSession(context.Background(), createReq("A1", "D1", "P1"))
	require.NoError(t, err)
	assert.Equal(t, "winner-id", resp.SessionID)
	assert.Equal(t, "room_winner-id", resp.RoomName)
}

func TestJoinSessionAuthorization(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.CreateSession(ctx, createReq("A1", "D1", "P1"))
	require.NoError(t, err)

	tests := []struct {
		name    string
		role    string
		userID  string
		wantErr error
	}{
		{name: "doctor joins as doctor", role: "doctor", userID: "D1"},
		{name: "patient joins as patient", role: "patient", userID: "P1"},
		{name: "wrong doctor id", role: "doctor", userID: "X", wantErr: ErrIdentityMismatch},
		{name: "wrong patient id", role: "patient", userID: "D1", wantErr: ErrIdentityMismatch},
		{name: "patient posing as doctor", role: "doctor", userID: "P1", wantErr: ErrIdentityMismatch},
		{name: "invalid role", role: "admin", userID: "D1", wantErr: ErrInvalidRole},
		{name: "missing user", role: "doctor", userID: "", wantErr: ErrMissingUser},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			resp, err := svc.JoinSession(ctx, created.SessionID, &domain.JoinSessionRequest{Role: tc.role, UserID: tc.userID})
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				assert.Nil(t, resp)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 3600, resp.ExpiresIn)
			assert.True(t, strings.HasPrefix(resp.JoinURL, testBaseURL+"/join/"+created.SessionID+"?token="), resp.JoinURL)
		})
	}
}

func TestJoinSessionUnknownSession(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	_, err := svc.JoinSession(context.Background(), "no-such-session", &domain.JoinSessionRequest{Role: "doctor", UserID: "D1"})
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestJoinSessionTokenClaims(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.CreateSession(ctx, createReq("A1", "D1", "P1"))
	require.NoError(t, err)

	resp, err := svc.JoinSession(ctx, created.SessionID, &domain.JoinSessionRequest{Role: "doctor", UserID: "D1"})
	require.NoError(t, err)

	parsed, err := url.Parse(resp.JoinURL)
	require.NoError(t, err)
	raw := parsed.Query().Get("token")
	require.NotEmpty(t, raw)

	issuer, err := token.NewIssuer("test-secret", time.Hour)
	require.NoError(t, err)
	claims, err := issuer.Verify(raw)
	require.NoError(t, err)

	assert.Equal(t, "D1", claims.Subject)
	assert.Equal(t, created.SessionID, claims.SessionID)
	assert.Equal(t, created.RoomName, claims.RoomName)
	assert.Equal(t, "doctor", claims.Role)
	assert.Equal(t, []string{"host", "mute-others", "end-call"}, claims.Permissions)
}

// corruptedRepo returns a session whose stored doctor id is a
// serialized document, as legacy writes could produce.
type corruptedRepo struct {
	repository.SessionRepository
}

func (r *corruptedRepo) GetActiveBySessionID(ctx context.Context, sessionID string) (*domain.Session, error) {
	return &domain.Session{
		SessionID: sessionID,
		DoctorID:  `{"user":{"_id":"D1"}}`,
		PatientID: "P1",
		RoomName:  "room_" + sessionID,
		Status:    domain.SessionStatusActive,
	}, nil
}

func TestJoinSessionRejectsCorruptedRecord(t *testing.T) {
	t.Parallel()

	issuer, err := token.NewIssuer("test-secret", time.Hour)
	require.NoError(t, err)
	svc := NewSessionService(&corruptedRepo{}, nil, 0, sfu.New(nil), issuer, testBaseURL)

	_, err = svc.JoinSession(context.Background(), "S1", &domain.JoinSessionRequest{Role: "doctor", UserID: "D1"})
	assert.ErrorIs(t, err, ErrCorruptedSession)
}

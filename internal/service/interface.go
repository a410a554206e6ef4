package service

import (
	"context"
	"errors"

	"github.com/telemed-live/videocall-service/internal/domain"
)

var (
	ErrInvalidRole = errors.New("role must be \"doctor\" or \"patient\"")
	ErrMissingUser = errors.New("missing required field: userId")
	// ErrSessionNotFound covers unknown and ended sessions alike;
	// callers cannot tell the two apart.
	ErrSessionNotFound  = errors.New("session not found or has ended")
	ErrIdentityMismatch = errors.New("user does not match this session's participant")
	// ErrCorruptedSession marks a stored record whose identity fields
	// fail canonical validation. It is never auto-healed.
	ErrCorruptedSession = errors.New("session record is corrupted")
)

// SessionService owns session create/join business logic.
type SessionService interface {
	CreateSession(ctx context.Context, req *domain.CreateSessionRequest) (*domain.CreateSessionResponse, error)
	JoinSession(ctx context.Context, sessionID string, req *domain.JoinSessionRequest) (*domain.JoinSessionResponse, error)
}

package repository

import (
	"context"
	"errors"

	"github.com/telemed-live/videocall-service/internal/domain"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	// ErrDuplicateAppointment is returned when an insert loses the race
	// on the appointment uniqueness constraint.
	ErrDuplicateAppointment = errors.New("session already exists for appointment")
)

// SessionRepository defines the persistence interface for the
// session registry. Sessions are created once and never mutated by
// any other component.
type SessionRepository interface {
	Create(ctx context.Context, session *domain.Session) error
	GetByAppointmentID(ctx context.Context, appointmentID string) (*domain.Session, error)
	GetActiveBySessionID(ctx context.Context, sessionID string) (*domain.Session, error)
}

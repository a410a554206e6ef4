package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/telemed-live/videocall-service/internal/domain"
	"github.com/telemed-live/videocall-service/pkg/log"
)

// GormSessionRepository implements SessionRepository using GORM.
type GormSessionRepository struct {
	db *gorm.DB
}

// NewGormSessionRepository creates a new GORM-based session repository.
func NewGormSessionRepository(db *gorm.DB) *GormSessionRepository {
	return &GormSessionRepository{db: db}
}

// Create inserts a new session. The unique index on appointment_id is
// the registry's only concurrency control: a losing racer gets
// ErrDuplicateAppointment and is expected to re-read.
func (r *GormSessionRepository) Create(ctx context.Context, session *domain.Session) error {
	l := log.Ctx(ctx)

	model := domain.SessionToModel(session)
	result := r.db.WithContext(ctx).Create(model)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return ErrDuplicateAppointment
		}
		l.Error().Err(result.Error).Str(log.FieldSessionID, session.SessionID).Msg("failed to create session in db")
		return result.Error
	}

	session.CreatedAt = model.CreatedAt
	session.UpdatedAt = model.UpdatedAt
	l.Debug().Str(log.FieldSessionID, session.SessionID).Msg("session created in db")
	return nil
}

// GetByAppointmentID retrieves the session bound to an appointment,
// regardless of status.
func (r *GormSessionRepository) GetByAppointmentID(ctx context.Context, appointmentID string) (*domain.Session, error) {
	l := log.Ctx(ctx)

	var model domain.SessionModel
	result := r.db.WithContext(ctx).First(&model, "appointment_id = ?", appointmentID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		l.Error().Err(result.Error).Str(log.FieldAppointmentID, appointmentID).Msg("failed to get session by appointment")
		return nil, result.Error
	}
	return model.ToDomain(), nil
}

// GetActiveBySessionID retrieves an active session by its identifier.
// An ended session is reported exactly like a missing one.
func (r *GormSessionRepository) GetActiveBySessionID(ctx context.Context, sessionID string) (*domain.Session, error) {
	l := log.Ctx(ctx)

	var model domain.SessionModel
	result := r.db.WithContext(ctx).First(&model, "session_id = ? AND status = ?", sessionID, string(domain.SessionStatusActive))
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		l.Error().Err(result.Error).Str(log.FieldSessionID, sessionID).Msg("failed to get session by id")
		return nil, result.Error
	}
	return model.ToDomain(), nil
}

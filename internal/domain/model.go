package domain

import (
	"time"
)

// SessionModel is the GORM model for the video_sessions table.
type SessionModel struct {
	SessionID     string    `gorm:"type:varchar(36);primaryKey"`
	AppointmentID string    `gorm:"type:varchar(64);uniqueIndex;not null"`
	DoctorID      string    `gorm:"type:varchar(64);not null"`
	PatientID     string    `gorm:"type:varchar(64);not null"`
	SFUNodeID     string    `gorm:"type:varchar(64);not null"`
	RoomName      string    `gorm:"type:varchar(64);not null"`
	Status        string    `gorm:"type:varchar(20);index;not null;default:'active'"`
	CreatedAt     time.Time `gorm:"autoCreateTime"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime"`
}

// TableName specifies the table name for SessionModel.
func (SessionModel) TableName() string {
	return "video_sessions"
}

// ToDomain converts SessionModel to a domain Session.
func (m *SessionModel) ToDomain() *Session {
	return &Session{
		SessionID:     m.SessionID,
		AppointmentID: m.AppointmentID,
		DoctorID:      m.DoctorID,
		PatientID:     m.PatientID,
		SFUNodeID:     m.SFUNodeID,
		RoomName:      m.RoomName,
		Status:        SessionStatus(m.Status),
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

// SessionToModel converts a domain Session to its GORM model.
func SessionToModel(s *Session) *SessionModel {
	return &SessionModel{
		SessionID:     s.SessionID,
		AppointmentID: s.AppointmentID,
		DoctorID:      s.DoctorID,
		PatientID:     s.PatientID,
		SFUNodeID:     s.SFUNodeID,
		RoomName:      s.RoomName,
		Status:        string(s.Status),
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     s.UpdatedAt,
	}
}

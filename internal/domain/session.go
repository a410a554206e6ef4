package domain

import (
	"fmt"
	"time"
)

// SessionStatus represents the lifecycle state of a video session.
type SessionStatus string

const (
	SessionStatusActive SessionStatus = "active"
	SessionStatusEnded  SessionStatus = "ended"
)

// Role is the participant role inside a session.
type Role string

const (
	RoleDoctor  Role = "doctor"
	RolePatient Role = "patient"
)

// Valid reports whether the role is one of the two supported values.
func (r Role) Valid() bool {
	return r == RoleDoctor || r == RolePatient
}

// Permissions returns the fixed permission set for the role.
func (r Role) Permissions() []string {
	if r == RoleDoctor {
		return []string{"host", "mute-others", "end-call"}
	}
	return []string{"participant"}
}

const roomNamePrefix = "room_"

// RoomNameFor derives the signaling-room name for a session ID.
func RoomNameFor(sessionID string) string {
	return roomNamePrefix + sessionID
}

// Session binds one appointment to exactly one call instance,
// two identities, and a signaling room.
type Session struct {
	SessionID     string        `json:"session_id"`
	AppointmentID string        `json:"appointment_id"`
	DoctorID      string        `json:"doctor_id"`
	PatientID     string        `json:"patient_id"`
	SFUNodeID     string        `json:"sfu_node_id"`
	RoomName      string        `json:"room_name"`
	Status        SessionStatus `json:"status"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// ParticipantID returns the stored identity for the given role.
func (s *Session) ParticipantID(role Role) (string, error) {
	switch role {
	case RoleDoctor:
		return s.DoctorID, nil
	case RolePatient:
		return s.PatientID, nil
	default:
		return "", fmt.Errorf("unknown role %q", role)
	}
}

// CreateSessionRequest is the body of POST /sessions.
type CreateSessionRequest struct {
	AppointmentID string `json:"appointmentId"`
	DoctorID      string `json:"doctorId"`
	PatientID     string `json:"patientId"`
}

// CreateSessionResponse is the result of a create (or idempotent re-create).
type CreateSessionResponse struct {
	SessionID string `json:"sessionId"`
	RoomName  string `json:"roomName"`
	SFUNodeID string `json:"sfuNodeId"`
	BaseURL   string `json:"baseUrl"`
}

// JoinSessionRequest is the body of POST /sessions/:sessionId/join.
type JoinSessionRequest struct {
	Role   string `json:"role"`
	UserID string `json:"userId"`
}

// JoinSessionResponse carries the signed join URL.
type JoinSessionResponse struct {
	JoinURL   string `json:"joinUrl"`
	ExpiresIn int    `json:"expiresIn"`
}

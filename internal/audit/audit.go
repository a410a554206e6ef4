package audit

import (
	"context"

	"github.com/telemed-live/videocall-service/pkg/log"
)

// Audit actions for the session subsystem.
const (
	ActionCreateSession = "session.create"
	ActionJoinSession   = "session.join"
	ActionJoinDenied    = "session.join_denied"
)

// Field constants for audit entries.
const (
	FieldAction = "action"
	FieldDetail = "detail"
)

// Log emits a structured audit log entry via the context logger.
func Log(ctx context.Context, action, userID, sessionID, msg string) {
	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Str(log.FieldUserID, userID).
		Str(log.FieldSessionID, sessionID).
		Msg(msg)
}

// LogWithDetail emits an audit log with an extra detail field.
func LogWithDetail(ctx context.Context, action, userID, sessionID, detail, msg string) {
	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Str(log.FieldUserID, userID).
		Str(log.FieldSessionID, sessionID).
		Str(FieldDetail, detail).
		Msg(msg)
}

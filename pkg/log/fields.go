package log

const (
	// Request
	FieldRequestID = "request_id"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldLatency   = "latency_ms"
	FieldClientIP  = "client_ip"

	// Actor
	FieldUserID = "user_id"
	FieldRole   = "role"

	// Call domain
	FieldSessionID     = "session_id"
	FieldAppointmentID = "appointment_id"
	FieldRoom          = "room"
	FieldClientID      = "client_id"
	FieldSFUNode       = "sfu_node"

	// Service
	FieldService = "service"

	// Log type (for audit log)
	FieldLogType = "log_type"
	LogTypeAudit = "audit"
)

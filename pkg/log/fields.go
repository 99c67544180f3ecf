package log

const (
	// Request
	FieldRequestID = "request_id"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldLatency   = "latency_ms"
	FieldClientIP  = "client_ip"

	// Actor, set on the gin context by pkg/middleware
	FieldAccountID = "account_id"
	FieldEmail     = "email"

	// Domain
	FieldFollowerID = "follower_id"
	FieldFollowedID = "followed_id"
	FieldPostID     = "post_id"
	FieldEvent      = "event"

	FieldService = "service"

	// Audit
	FieldLogType = "log_type"
	FieldAction  = "action"
	LogTypeAudit = "audit"
)

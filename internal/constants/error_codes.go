package constants

const (
	// Shared REST/WS transport-agnostic errors
	ErrCodeAuthFailed         = "AUTH_FAILED"
	ErrCodeAuthExpired        = "AUTH_EXPIRED"
	ErrCodeRateLimited        = "RATE_LIMITED"
	ErrCodeInvalidRequest     = "INVALID_REQUEST"
	ErrCodeForbidden          = "FORBIDDEN"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeConflict           = "CONFLICT"
	ErrCodeUpstream           = "UPSTREAM_ERROR"
	ErrCodeInternal           = "INTERNAL_ERROR"
	ErrCodeMessageTooLong     = "MESSAGE_TOO_LONG"
	ErrCodeNotSetUp           = "NOT_SET_UP"
	ErrCodeUnknownCommand     = "UNKNOWN_COMMAND"
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
)

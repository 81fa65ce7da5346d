package errors

// ErrorCode represents a machine-readable error code.
type ErrorCode string

// Validation errors (bad input, rejected before a Job exists).
const (
	ErrCodeInvalidInput  ErrorCode = "INVALID_INPUT"
	ErrCodeMissingField  ErrorCode = "MISSING_FIELD"
	ErrCodeInvalidFormat ErrorCode = "INVALID_FORMAT"
)

// Transient service errors (external timeout / rate limit / outage).
const (
	ErrCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	ErrCodeConnectionFailed   ErrorCode = "CONNECTION_FAILED"
	ErrCodeTimeout            ErrorCode = "TIMEOUT"
	ErrCodeRateLimited        ErrorCode = "RATE_LIMITED"
)

// Permanent service errors (unrecoverable capability responses).
const (
	ErrCodeUnsupportedInput  ErrorCode = "UNSUPPORTED_INPUT"
	ErrCodeMalformedResponse ErrorCode = "MALFORMED_RESPONSE"
)

// Resource errors.
const (
	ErrCodeNotFound      ErrorCode = "NOT_FOUND"
	ErrCodeAlreadyActive ErrorCode = "ALREADY_ACTIVE"
	ErrCodeConflict      ErrorCode = "CONFLICT"
)

// Internal errors.
const (
	ErrCodeInternal      ErrorCode = "INTERNAL_ERROR"
	ErrCodeConsistency   ErrorCode = "CONSISTENCY_ERROR"
	ErrCodeDatabaseError ErrorCode = "DATABASE_ERROR"
)

var retryableCodes = map[ErrorCode]bool{
	ErrCodeServiceUnavailable: true,
	ErrCodeConnectionFailed:   true,
	ErrCodeTimeout:            true,
	ErrCodeRateLimited:        true,
	ErrCodeDatabaseError:      true,
}

// IsRetryableCode returns true if the error code indicates a transient error.
func IsRetryableCode(code ErrorCode) bool {
	return retryableCodes[code]
}

var validationCodes = map[ErrorCode]bool{
	ErrCodeInvalidInput:  true,
	ErrCodeMissingField:  true,
	ErrCodeInvalidFormat: true,
}

// IsValidationCode returns true for codes that reject input before any Job exists.
func IsValidationCode(code ErrorCode) bool {
	return validationCodes[code]
}

package xerrors

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// PgUniqueViolation is the SQLSTATE raised for unique index conflicts.
const PgUniqueViolation = "23505"

func ParsePGErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return "unknown"
}

// Generic
var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrInternalServer = errors.New("internal server error")
	ErrUnauthorized   = errors.New("unauthorized")
)

// Registration / Login
var (
	// ErrUserAlreadyExists does not say which identifier collided.
	ErrUserAlreadyExists  = errors.New("an account with these details already exists")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Verification / OTP
var (
	ErrEmailNotVerified   = errors.New("email not verified")
	ErrAlreadyVerified    = errors.New("email already verified")
	ErrNoCodeOutstanding  = errors.New("no verification code outstanding")
	ErrNoResetOutstanding = errors.New("no password reset request found")
	ErrInvalidOTP         = errors.New("invalid otp")
	ErrExpiredOTP         = errors.New("expired otp")
)

// Delivery
var (
	ErrDeliveryFailure  = errors.New("failed to send verification code")
	ErrDeliveryTimeout  = errors.New("notification delivery timed out")
	ErrDeliveryRejected = errors.New("notification rejected by provider")
)

// Password rules
var (
	ErrPasswordTooShort    = errors.New("password must be at least 8 characters long")
	ErrPasswordTooLong     = errors.New("password must be at most 72 bytes long")
	ErrPasswordUppercase   = errors.New("password must include at least one uppercase letter")
	ErrPasswordLowercase   = errors.New("password must include at least one lowercase letter")
	ErrPasswordDigit       = errors.New("password must include at least one digit")
	ErrPasswordSpecialChar = errors.New("password must include at least one special character")
)

// Token
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrRevokedToken = errors.New("token has been revoked")
)

// ValidationError reports a malformed input field.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

func (e *ValidationError) Unwrap() error { return e.Err }

func NewValidationError(field string, err error) *ValidationError {
	return &ValidationError{Field: field, Message: err.Error(), Err: err}
}

// IsValidation reports whether err carries a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

package utils

import (
	"errors"
	"regexp"
	"strings"

	"identity-service/internal/domain"
	xerrors "identity-service/shared/utils/errors"
)

const minPhoneDigits = 10

// MaxPasswordBytes is the longest input bcrypt accepts.
const MaxPasswordBytes = 72

// PasswordSymbols is the set a password must draw at least one symbol from.
const PasswordSymbols = `!@#$%^&*(),.?":{}|<>`

var (
	emailRegex      = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phoneCharsRegex = regexp.MustCompile(`^[\d\s\-+()]+$`)
	lowerRegex      = regexp.MustCompile(`[a-z]`)
	upperRegex      = regexp.MustCompile(`[A-Z]`)
	digitRegex      = regexp.MustCompile(`[0-9]`)
)

var (
	ErrEmailRequired = errors.New("email is required")
	ErrEmailFormat   = errors.New("invalid email format")
	ErrPhoneRequired = errors.New("phone number is required")
	ErrPhoneFormat   = errors.New("phone number may only contain digits, spaces, +, - and parentheses")
	ErrPhoneLength   = errors.New("phone number must contain at least 10 digits")
	ErrRoleInvalid   = errors.New("role must be one of customer, admin, seller")
)

// ValidateEmail checks if an email address is well formed.
func ValidateEmail(email string) bool {
	email = strings.TrimSpace(email)
	if email == "" {
		return false
	}
	return emailRegex.MatchString(email)
}

// ValidatePhone checks the raw input shape and the digit count.
func ValidatePhone(phone string) error {
	if strings.TrimSpace(phone) == "" {
		return ErrPhoneRequired
	}
	if !phoneCharsRegex.MatchString(phone) {
		return ErrPhoneFormat
	}
	if len(domain.PhoneKey(phone)) < minPhoneDigits {
		return ErrPhoneLength
	}
	return nil
}

// ValidatePassword returns the first complexity rule the password breaks.
func ValidatePassword(password string) error {
	if len(password) < 8 {
		return xerrors.ErrPasswordTooShort
	}
	if len(password) > MaxPasswordBytes {
		return xerrors.ErrPasswordTooLong
	}
	if !lowerRegex.MatchString(password) {
		return xerrors.ErrPasswordLowercase
	}
	if !upperRegex.MatchString(password) {
		return xerrors.ErrPasswordUppercase
	}
	if !digitRegex.MatchString(password) {
		return xerrors.ErrPasswordDigit
	}
	if !strings.ContainsAny(password, PasswordSymbols) {
		return xerrors.ErrPasswordSpecialChar
	}
	return nil
}

// RegistrationInput is the raw, unvalidated registration form.
type RegistrationInput struct {
	Email    string
	Password string
	Phone    string
	Role     string
}

// ValidateRegistration checks every field and returns the first failure as
// a ValidationError naming the field. It has no side effects.
func ValidateRegistration(in RegistrationInput) (domain.Role, error) {
	if strings.TrimSpace(in.Email) == "" {
		return "", xerrors.NewValidationError("email", ErrEmailRequired)
	}
	if !ValidateEmail(in.Email) {
		return "", xerrors.NewValidationError("email", ErrEmailFormat)
	}
	if err := ValidatePhone(in.Phone); err != nil {
		return "", xerrors.NewValidationError("phone", err)
	}
	if err := ValidatePassword(in.Password); err != nil {
		return "", xerrors.NewValidationError("password", err)
	}
	role, ok := domain.ParseRole(in.Role)
	if !ok {
		return "", xerrors.NewValidationError("role", ErrRoleInvalid)
	}
	return role, nil
}

// ValidateEmailField wraps ValidateEmail for single-field entry points.
func ValidateEmailField(email string) error {
	if strings.TrimSpace(email) == "" {
		return xerrors.NewValidationError("email", ErrEmailRequired)
	}
	if !ValidateEmail(email) {
		return xerrors.NewValidationError("email", ErrEmailFormat)
	}
	return nil
}

func ValidatePhoneField(phone string) error {
	if err := ValidatePhone(phone); err != nil {
		return xerrors.NewValidationError("phone", err)
	}
	return nil
}

func ValidatePasswordField(field, password string) error {
	if err := ValidatePassword(password); err != nil {
		return xerrors.NewValidationError(field, err)
	}
	return nil
}

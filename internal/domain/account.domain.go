package domain

import (
	"strings"
	"time"
)

type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
	RoleSeller   Role = "seller"
)

// ParseRole maps input onto the closed role set. Empty input means customer.
func ParseRole(s string) (Role, bool) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case "", RoleCustomer:
		return RoleCustomer, true
	case RoleAdmin:
		return RoleAdmin, true
	case RoleSeller:
		return RoleSeller, true
	}
	return "", false
}

func (r Role) Valid() bool {
	_, ok := ParseRole(string(r))
	return ok && r != ""
}

type Provider string

const (
	ProviderPassword Provider = "password"
	ProviderGoogle   Provider = "google"
)

// CodePurpose selects the wording of a one-time code message.
type CodePurpose string

const (
	PurposeVerifyEmail   CodePurpose = "verify_email"
	PurposePasswordReset CodePurpose = "password_reset"
)

type Account struct {
	ID            string     `json:"id"`
	Email         string     `json:"email"`
	Phone         string     `json:"phone"`
	PhoneKey      string     `json:"-"`
	PasswordHash  string     `json:"-"`
	FirstName     *string    `json:"first_name,omitempty"`
	LastName      *string    `json:"last_name,omitempty"`
	Role          Role       `json:"role"`
	PendingCode   *string    `json:"-"`
	CodeExpiresAt *time.Time `json:"-"`
	IsVerified    bool       `json:"is_verified"`
	Provider      Provider   `json:"provider"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// HasPendingCode reports whether a code pair is outstanding.
func (a *Account) HasPendingCode() bool {
	return a.PendingCode != nil && a.CodeExpiresAt != nil
}

func (a *Account) ClearPendingCode() {
	a.PendingCode = nil
	a.CodeExpiresAt = nil
}

// CodeConsumption describes the single conditional update that spends a code.
// The update only applies while Code is still the stored code and has not
// expired at Now.
type CodeConsumption struct {
	AccountID       string
	Code            string
	Now             time.Time
	MarkVerified    bool
	NewPasswordHash *string
}

// SessionClaims is what a successful login hands back to the caller.
type SessionClaims struct {
	Subject   string    `json:"sub"`
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
	IssuedAt  time.Time `json:"iat"`
	ExpiresAt time.Time `json:"exp"`
	TokenID   string    `json:"jti,omitempty"`
}

type Session struct {
	Token  string        `json:"token"`
	Claims SessionClaims `json:"claims"`
}

// FederatedIdentity is the hand-off from an external identity provider.
type FederatedIdentity struct {
	Email       string
	DisplayName string
	FirstName   string
	LastName    string
	Provider    Provider
}

// SplitDisplayName splits "Ada King Lovelace" into "Ada" and "King Lovelace".
func SplitDisplayName(name string) (first, last string) {
	parts := strings.Fields(name)
	if len(parts) == 0 {
		return "", ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// PhoneKey reduces a phone number to its digits so formatting differences
// cannot register the same number twice.
func PhoneKey(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// FederatedPhoneKey is never all digits, so it cannot collide with PhoneKey.
func FederatedPhoneKey(accountID string) string {
	return "federated:" + accountID
}

package repository

import (
	"context"
	"time"

	"identity-service/internal/domain"
)

// CredentialStore persists accounts. Every implementation must:
//   - return xerrors.ErrUserNotFound for lookups and updates that match nothing
//   - return xerrors.ErrUserAlreadyExists when email or phone key collide
//   - apply ConsumeCode as one conditional write, returning
//     xerrors.ErrNoCodeOutstanding when the code is gone, replaced or expired
type CredentialStore interface {
	FindByEmail(ctx context.Context, email string) (*domain.Account, error)
	FindByPhoneKey(ctx context.Context, phoneKey string) (*domain.Account, error)
	FindByID(ctx context.Context, id string) (*domain.Account, error)
	Create(ctx context.Context, a *domain.Account) error
	SetPendingCode(ctx context.Context, id, code string, expiresAt, now time.Time) error
	ConsumeCode(ctx context.Context, c domain.CodeConsumption) error
	// MarkVerified flips an unverified account to verified and drops any
	// outstanding code, leaving every other column alone. It reports false
	// when the account was already verified or does not exist.
	MarkVerified(ctx context.Context, id string, now time.Time) (bool, error)
}

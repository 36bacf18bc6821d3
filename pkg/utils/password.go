package utils

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"
)

const DefaultBcryptCost = 10

// PasswordHasher hashes and compares passwords with bcrypt. bcrypt is CPU
// bound, so concurrent calls are capped by a weighted semaphore.
type PasswordHasher struct {
	cost int
	sem  *semaphore.Weighted
}

// NewPasswordHasher builds a hasher. cost <= 0 selects DefaultBcryptCost and
// slots <= 0 selects GOMAXPROCS.
func NewPasswordHasher(cost, slots int) *PasswordHasher {
	if cost <= 0 {
		cost = DefaultBcryptCost
	}
	if slots <= 0 {
		slots = runtime.GOMAXPROCS(0)
	}
	return &PasswordHasher{cost: cost, sem: semaphore.NewWeighted(int64(slots))}
}

func (h *PasswordHasher) Hash(ctx context.Context, password string) (string, error) {
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer h.sem.Release(1)

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hashed), nil
}

// Verify reports whether password matches the digest. A malformed digest
// is reported as a mismatch.
func (h *PasswordHasher) Verify(ctx context.Context, password, digest string) (bool, error) {
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return false, err
	}
	defer h.sem.Release(1)

	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(password)) == nil, nil
}

// dummyDigest is compared against when no account exists so that a miss
// costs the same as a wrong password.
var dummyDigest, _ = bcrypt.GenerateFromPassword([]byte("identity-service/dummy"), DefaultBcryptCost)

// VerifyDummy burns one comparison without a real digest.
func (h *PasswordHasher) VerifyDummy(ctx context.Context, password string) {
	_, _ = h.Verify(ctx, password, string(dummyDigest))
}

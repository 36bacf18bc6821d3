package usecase

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"io"
	"math/big"
	"strconv"
	"time"

	"identity-service/internal/domain"
	xerrors "identity-service/shared/utils/errors"
)

const (
	codeMin        = 100000
	codeMax        = 999999
	DefaultCodeTTL = 10 * time.Minute
)

// OneTimeCodeService issues and checks six digit codes on an account value.
// It never touches storage; callers persist the result.
type OneTimeCodeService struct {
	ttl     time.Duration
	entropy io.Reader
}

func NewOneTimeCodeService(ttl time.Duration) *OneTimeCodeService {
	if ttl <= 0 {
		ttl = DefaultCodeTTL
	}
	return &OneTimeCodeService{ttl: ttl, entropy: rand.Reader}
}

func (s *OneTimeCodeService) TTL() time.Duration { return s.ttl }

// Issue sets a fresh code on the account, replacing any earlier one.
func (s *OneTimeCodeService) Issue(a *domain.Account, now time.Time) (string, error) {
	code, err := s.randomCode()
	if err != nil {
		return "", err
	}
	exp := now.Add(s.ttl)
	a.PendingCode = &code
	a.CodeExpiresAt = &exp
	return code, nil
}

// Validate checks submitted against the outstanding code. Expiry is strict:
// a code is expired once now is after its expiry instant. On success the
// code is cleared from the account value.
func (s *OneTimeCodeService) Validate(a *domain.Account, submitted string, now time.Time) error {
	if !a.HasPendingCode() {
		return xerrors.ErrNoCodeOutstanding
	}
	if now.After(*a.CodeExpiresAt) {
		return xerrors.ErrExpiredOTP
	}
	if subtle.ConstantTimeCompare([]byte(*a.PendingCode), []byte(submitted)) != 1 {
		return xerrors.ErrInvalidOTP
	}
	a.ClearPendingCode()
	return nil
}

func (s *OneTimeCodeService) randomCode() (string, error) {
	n, err := rand.Int(s.entropy, big.NewInt(codeMax-codeMin+1))
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return strconv.FormatInt(n.Int64()+codeMin, 10), nil
}

package usecase

import (
	"context"
	"errors"
	"fmt"

	"identity-service/internal/domain"
	"identity-service/pkg/metrics"
	xerrors "identity-service/shared/utils/errors"
)

// VerifyEmail spends the outstanding code and marks the account verified.
func (uc *IdentityUsecase) VerifyEmail(ctx context.Context, email, code string) (err error) {
	ctx, span := uc.startSpan(ctx, "VerifyEmail")
	defer func() { finishSpan(span, err) }()
	defer func() {
		metrics.CodeChecks.WithLabelValues(string(domain.PurposeVerifyEmail), codeCheckResult(err)).Inc()
	}()

	acc, err := uc.findByEmail(ctx, email)
	if err != nil {
		return err
	}
	if acc.IsVerified {
		return xerrors.ErrAlreadyVerified
	}

	now := uc.now()
	if err := uc.otp.Validate(acc, code, now); err != nil {
		return err
	}

	err = uc.store.ConsumeCode(ctx, domain.CodeConsumption{
		AccountID:    acc.ID,
		Code:         code,
		Now:          now,
		MarkVerified: true,
	})
	if err != nil {
		if errors.Is(err, xerrors.ErrNoCodeOutstanding) {
			// a concurrent request spent or replaced the code first
			return xerrors.ErrNoCodeOutstanding
		}
		return fmt.Errorf("consume verification code: %w", err)
	}

	acc.IsVerified = true
	uc.emit(ctx, EventAccountVerified, acc)
	return nil
}

// ResendVerification issues a new code to an unverified account, replacing
// any earlier one.
func (uc *IdentityUsecase) ResendVerification(ctx context.Context, email string) (err error) {
	ctx, span := uc.startSpan(ctx, "ResendVerification")
	defer func() { finishSpan(span, err) }()

	acc, err := uc.findByEmail(ctx, email)
	if err != nil {
		return err
	}
	if acc.IsVerified {
		return xerrors.ErrAlreadyVerified
	}
	return uc.reissue(ctx, acc, domain.PurposeVerifyEmail)
}

package usecase

import (
	"context"
	"errors"
	"fmt"

	"identity-service/internal/domain"
	"identity-service/pkg/metrics"
	"identity-service/pkg/utils"
	xerrors "identity-service/shared/utils/errors"
)

// RequestPasswordReset emails a reset code. Verification status is not
// required.
func (uc *IdentityUsecase) RequestPasswordReset(ctx context.Context, email string) (err error) {
	ctx, span := uc.startSpan(ctx, "RequestPasswordReset")
	defer func() { finishSpan(span, err) }()

	acc, err := uc.findByEmail(ctx, email)
	if err != nil {
		return err
	}
	return uc.reissue(ctx, acc, domain.PurposePasswordReset)
}

// ConfirmPasswordReset replaces the password when code matches. The old
// password keeps working on every failure path.
func (uc *IdentityUsecase) ConfirmPasswordReset(ctx context.Context, email, code, newPassword string) (err error) {
	ctx, span := uc.startSpan(ctx, "ConfirmPasswordReset")
	defer func() { finishSpan(span, err) }()
	defer func() {
		metrics.CodeChecks.WithLabelValues(string(domain.PurposePasswordReset), codeCheckResult(err)).Inc()
	}()

	if err := utils.ValidatePasswordField("newPassword", newPassword); err != nil {
		return err
	}

	acc, err := uc.findByEmail(ctx, email)
	if err != nil {
		return err
	}
	if !acc.HasPendingCode() {
		return xerrors.ErrNoResetOutstanding
	}

	now := uc.now()
	if err := uc.otp.Validate(acc, code, now); err != nil {
		return err
	}

	hash, err := uc.hasher.Hash(ctx, newPassword)
	if err != nil {
		return err
	}

	err = uc.store.ConsumeCode(ctx, domain.CodeConsumption{
		AccountID:       acc.ID,
		Code:            code,
		Now:             now,
		NewPasswordHash: &hash,
	})
	if err != nil {
		if errors.Is(err, xerrors.ErrNoCodeOutstanding) {
			return xerrors.ErrNoResetOutstanding
		}
		return fmt.Errorf("consume reset code: %w", err)
	}

	uc.emit(ctx, EventPasswordReset, acc)
	return nil
}

package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"identity-service/internal/domain"
	"identity-service/pkg/utils"
	xerrors "identity-service/shared/utils/errors"
)

// RegisterRequest is the raw registration form.
type RegisterRequest struct {
	Email    string
	Password string
	Phone    string
	Role     string
}

// Register creates an unverified account and emails it a verification code.
// Nothing is written unless the code was handed to the gateway successfully.
// It returns the normalised email.
func (uc *IdentityUsecase) Register(ctx context.Context, req RegisterRequest) (email string, err error) {
	ctx, span := uc.startSpan(ctx, "Register")
	defer func() { finishSpan(span, err) }()

	role, err := utils.ValidateRegistration(utils.RegistrationInput{
		Email:    req.Email,
		Password: req.Password,
		Phone:    req.Phone,
		Role:     req.Role,
	})
	if err != nil {
		return "", err
	}

	email = domain.NormalizeEmail(req.Email)
	phoneKey := domain.PhoneKey(req.Phone)
	if err := uc.ensureAvailable(ctx, email, phoneKey); err != nil {
		return "", err
	}

	hash, err := uc.hasher.Hash(ctx, req.Password)
	if err != nil {
		return "", err
	}

	now := uc.now()
	acc := &domain.Account{
		ID:           uc.sf.Generate(),
		Email:        email,
		Phone:        strings.TrimSpace(req.Phone),
		PhoneKey:     phoneKey,
		PasswordHash: hash,
		Role:         role,
		Provider:     domain.ProviderPassword,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	code, err := uc.otp.Issue(acc, now)
	if err != nil {
		return "", err
	}

	if err := uc.dispatch(ctx, acc.Email, code, domain.PurposeVerifyEmail); err != nil {
		return "", err
	}

	if err := uc.store.Create(ctx, acc); err != nil {
		if errors.Is(err, xerrors.ErrUserAlreadyExists) {
			return "", xerrors.ErrUserAlreadyExists
		}
		return "", fmt.Errorf("create account: %w", err)
	}

	uc.emit(ctx, EventAccountRegistered, acc)
	return acc.Email, nil
}

// ensureAvailable fails with the same Conflict whichever identifier is taken.
func (uc *IdentityUsecase) ensureAvailable(ctx context.Context, email, phoneKey string) error {
	if _, err := uc.store.FindByEmail(ctx, email); err == nil {
		return xerrors.ErrUserAlreadyExists
	} else if !errors.Is(err, xerrors.ErrUserNotFound) {
		return fmt.Errorf("check email: %w", err)
	}
	if _, err := uc.store.FindByPhoneKey(ctx, phoneKey); err == nil {
		return xerrors.ErrUserAlreadyExists
	} else if !errors.Is(err, xerrors.ErrUserNotFound) {
		return fmt.Errorf("check phone: %w", err)
	}
	return nil
}

// CheckEmailAvailable reports whether email could be registered.
func (uc *IdentityUsecase) CheckEmailAvailable(ctx context.Context, email string) (bool, error) {
	if err := utils.ValidateEmailField(email); err != nil {
		return false, err
	}
	_, err := uc.store.FindByEmail(ctx, domain.NormalizeEmail(email))
	switch {
	case err == nil:
		return false, nil
	case errors.Is(err, xerrors.ErrUserNotFound):
		return true, nil
	}
	return false, fmt.Errorf("check email: %w", err)
}

// CheckPhoneAvailable reports whether phone could be registered.
func (uc *IdentityUsecase) CheckPhoneAvailable(ctx context.Context, phone string) (bool, error) {
	if err := utils.ValidatePhoneField(phone); err != nil {
		return false, err
	}
	_, err := uc.store.FindByPhoneKey(ctx, domain.PhoneKey(phone))
	switch {
	case err == nil:
		return false, nil
	case errors.Is(err, xerrors.ErrUserNotFound):
		return true, nil
	}
	return false, fmt.Errorf("check phone: %w", err)
}

package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"identity-service/internal/domain"
	"identity-service/pkg/metrics"
	"identity-service/pkg/utils"
	xerrors "identity-service/shared/utils/errors"
	"identity-service/shared/utils/id"

	"go.uber.org/zap"
)

// Login checks a password and returns a signed session. Unknown emails and
// wrong passwords fail identically.
func (uc *IdentityUsecase) Login(ctx context.Context, email, password string) (sess *domain.Session, err error) {
	ctx, span := uc.startSpan(ctx, "Login")
	defer func() { finishSpan(span, err) }()
	defer func() { metrics.LoginAttempts.WithLabelValues("password", loginResult(err)).Inc() }()

	acc, err := uc.findByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, xerrors.ErrUserNotFound) {
			uc.hasher.VerifyDummy(ctx, password)
			return nil, xerrors.ErrInvalidCredentials
		}
		return nil, err
	}

	ok, err := uc.hasher.Verify(ctx, password, acc.PasswordHash)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, xerrors.ErrInvalidCredentials
	}
	if !acc.IsVerified {
		return nil, xerrors.ErrEmailNotVerified
	}

	return uc.issueSession(ctx, acc)
}

// FederatedLogin trusts an identity provider's assertion of email ownership.
// Unknown emails get a verified account with an unusable password and a
// placeholder phone.
func (uc *IdentityUsecase) FederatedLogin(ctx context.Context, ident domain.FederatedIdentity) (sess *domain.Session, err error) {
	ctx, span := uc.startSpan(ctx, "FederatedLogin")
	defer func() { finishSpan(span, err) }()
	defer func() { metrics.LoginAttempts.WithLabelValues(string(ident.Provider), loginResult(err)).Inc() }()

	if err := utils.ValidateEmailField(ident.Email); err != nil {
		return nil, err
	}

	acc, err := uc.findByEmail(ctx, ident.Email)
	switch {
	case errors.Is(err, xerrors.ErrUserNotFound):
		acc, err = uc.provisionFederated(ctx, ident)
		if err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	case !acc.IsVerified:
		// the provider has proven control of the address
		changed, err := uc.store.MarkVerified(ctx, acc.ID, uc.now())
		if err != nil {
			return nil, fmt.Errorf("mark federated account verified: %w", err)
		}
		acc.IsVerified = true
		acc.ClearPendingCode()
		if changed {
			uc.emit(ctx, EventAccountVerified, acc)
		}
	}

	return uc.issueSession(ctx, acc)
}

func (uc *IdentityUsecase) provisionFederated(ctx context.Context, ident domain.FederatedIdentity) (*domain.Account, error) {
	secret, err := id.GenerateUnusablePassword()
	if err != nil {
		return nil, err
	}
	hash, err := uc.hasher.Hash(ctx, secret)
	if err != nil {
		return nil, err
	}

	first, last := strings.TrimSpace(ident.FirstName), strings.TrimSpace(ident.LastName)
	if first == "" && last == "" {
		first, last = domain.SplitDisplayName(ident.DisplayName)
	}
	provider := ident.Provider
	if provider == "" {
		provider = domain.ProviderGoogle
	}

	now := uc.now()
	accID := uc.sf.Generate()
	acc := &domain.Account{
		ID:           accID,
		Email:        domain.NormalizeEmail(ident.Email),
		Phone:        id.GenerateUUID("oauth"),
		PhoneKey:     domain.FederatedPhoneKey(accID),
		PasswordHash: hash,
		FirstName:    optional(first),
		LastName:     optional(last),
		Role:         domain.RoleCustomer,
		IsVerified:   true,
		Provider:     provider,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := uc.store.Create(ctx, acc); err != nil {
		if errors.Is(err, xerrors.ErrUserAlreadyExists) {
			// lost a race with another first login for the same email
			return uc.findByEmail(ctx, acc.Email)
		}
		return nil, fmt.Errorf("provision federated account: %w", err)
	}

	uc.logger.Info("provisioned federated account",
		zap.String("account_id", acc.ID),
		zap.String("provider", string(provider)),
	)
	uc.emit(ctx, EventFederatedProvision, acc)
	return acc, nil
}

func (uc *IdentityUsecase) issueSession(ctx context.Context, acc *domain.Account) (*domain.Session, error) {
	token, claims, err := uc.tokens.Generate(uc.now(), acc.ID, acc.Email, string(acc.Role))
	if err != nil {
		return nil, fmt.Errorf("sign session: %w", err)
	}
	uc.emit(ctx, EventSessionIssued, acc)
	return &domain.Session{
		Token: token,
		Claims: domain.SessionClaims{
			Subject:   acc.ID,
			Email:     acc.Email,
			Role:      acc.Role,
			IssuedAt:  claims.IssuedAt.Time,
			ExpiresAt: claims.ExpiresAt.Time,
			TokenID:   claims.ID,
		},
	}, nil
}

// Session validates a bearer token and returns its claims.
func (uc *IdentityUsecase) Session(ctx context.Context, token string) (*domain.SessionClaims, error) {
	claims, err := uc.verifier.ParseAndValidate(token)
	if err != nil {
		return nil, xerrors.ErrInvalidToken
	}
	if uc.revoker != nil && claims.ID != "" {
		revoked, err := uc.revoker.IsRevoked(ctx, claims.ID)
		if err != nil {
			return nil, fmt.Errorf("check revocation: %w", err)
		}
		if revoked {
			return nil, xerrors.ErrRevokedToken
		}
	}
	out := &domain.SessionClaims{
		Subject: claims.Subject,
		Email:   claims.Email,
		Role:    domain.Role(claims.Role),
		TokenID: claims.ID,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}

// Logout revokes the token until its natural expiry.
func (uc *IdentityUsecase) Logout(ctx context.Context, token string) (err error) {
	ctx, span := uc.startSpan(ctx, "Logout")
	defer func() { finishSpan(span, err) }()

	claims, err := uc.Session(ctx, token)
	if err != nil {
		return err
	}
	if uc.revoker == nil {
		return nil
	}
	ttl := claims.ExpiresAt.Sub(uc.now())
	if ttl <= 0 {
		return nil
	}
	if err := uc.revoker.Revoke(ctx, claims.TokenID, ttl); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	uc.emit(ctx, EventSessionRevoked, &domain.Account{ID: claims.Subject, Email: claims.Email, Role: claims.Role})
	return nil
}

func loginResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, xerrors.ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, xerrors.ErrEmailNotVerified):
		return "unverified"
	}
	return "error"
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

package oauth2svc

import (
	"context"
	"errors"
	"fmt"

	"identity-service/internal/domain"
	xerrors "identity-service/shared/utils/errors"

	"google.golang.org/api/idtoken"
)

var ErrEmailUnverified = errors.New("google account email is not verified")

// TokenValidator checks a Google ID token for an audience.
type TokenValidator func(ctx context.Context, token, audience string) (*idtoken.Payload, error)

type GoogleVerifier struct {
	clientID string
	validate TokenValidator
}

func NewGoogleVerifier(clientID string) *GoogleVerifier {
	return &GoogleVerifier{clientID: clientID, validate: idtoken.Validate}
}

func NewGoogleVerifierWithValidator(clientID string, v TokenValidator) *GoogleVerifier {
	return &GoogleVerifier{clientID: clientID, validate: v}
}

func (g *GoogleVerifier) Enabled() bool { return g != nil && g.clientID != "" }

// Verify validates the ID token and maps its claims to a federated identity.
// Tokens whose email Google has not verified are refused.
func (g *GoogleVerifier) Verify(ctx context.Context, token string) (*domain.FederatedIdentity, error) {
	if token == "" {
		return nil, xerrors.ErrInvalidToken
	}
	payload, err := g.validate(ctx, token, g.clientID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", xerrors.ErrInvalidToken, err)
	}

	email, _ := payload.Claims["email"].(string)
	if email == "" {
		return nil, fmt.Errorf("%w: token has no email claim", xerrors.ErrInvalidToken)
	}
	if !claimBool(payload.Claims["email_verified"]) {
		return nil, ErrEmailUnverified
	}

	name, _ := payload.Claims["name"].(string)
	first, _ := payload.Claims["given_name"].(string)
	last, _ := payload.Claims["family_name"].(string)

	return &domain.FederatedIdentity{
		Email:       email,
		DisplayName: name,
		FirstName:   first,
		LastName:    last,
		Provider:    domain.ProviderGoogle,
	}, nil
}

// Google has sent email_verified both as a bool and as a string.
func claimBool(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		return b == "true"
	}
	return false
}

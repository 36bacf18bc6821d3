package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"identity-service/internal/domain"
	"identity-service/internal/usecase"
	"identity-service/shared/response"

	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

// FederatedVerifier checks a provider-issued token.
type FederatedVerifier interface {
	Verify(ctx context.Context, token string) (*domain.FederatedIdentity, error)
}

type IdentityHandler struct {
	uc      *usecase.IdentityUsecase
	google  FederatedVerifier
	jwks    []byte
	service string
	logger  *zap.Logger
}

// NewIdentityHandler wires the HTTP surface. google may be nil when Google
// sign-in is not configured.
func NewIdentityHandler(uc *usecase.IdentityUsecase, google FederatedVerifier, jwks []byte, service string, logger *zap.Logger) *IdentityHandler {
	return &IdentityHandler{uc: uc, google: google, jwks: jwks, service: service, logger: logger}
}

// decodeJSON writes a 400 and returns false when the body is not a JSON object of dst's shape.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			response.Error(w, http.StatusBadRequest, "request body is required")
			return false
		}
		response.Error(w, http.StatusBadRequest, "invalid request")
		return false
	}
	return true
}

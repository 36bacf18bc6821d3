package middleware

import (
	"context"
	"errors"
	"net/http"

	"identity-service/internal/domain"
	"identity-service/shared/response"
	xerrors "identity-service/shared/utils/errors"

	"go.uber.org/zap"
)

// SessionValidator turns a bearer token into session claims.
type SessionValidator interface {
	Session(ctx context.Context, token string) (*domain.SessionClaims, error)
}

type AuthMiddleware struct {
	sessions SessionValidator
	logger   *zap.Logger
}

func NewAuthMiddleware(sessions SessionValidator, logger *zap.Logger) *AuthMiddleware {
	return &AuthMiddleware{sessions: sessions, logger: logger}
}

func (am *AuthMiddleware) authenticate(w http.ResponseWriter, r *http.Request) (*domain.SessionClaims, string, bool) {
	token := ExtractToken(r)
	if token == "" {
		response.Error(w, http.StatusUnauthorized, "No token provided")
		return nil, "", false
	}

	claims, err := am.sessions.Session(r.Context(), token)
	switch {
	case err == nil:
		return claims, token, true
	case errors.Is(err, xerrors.ErrRevokedToken):
		response.Error(w, http.StatusUnauthorized, "Session has been revoked")
	case errors.Is(err, xerrors.ErrInvalidToken):
		response.Error(w, http.StatusUnauthorized, "Invalid or expired token")
	default:
		am.logger.Error("session validation failed", zap.Error(err))
		response.Error(w, http.StatusInternalServerError, "Session validation failed")
	}
	return nil, "", false
}

// RequireSession rejects requests without a valid, unrevoked session.
func (am *AuthMiddleware) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, token, ok := am.authenticate(w, r)
		if !ok {
			return
		}
		next.ServeHTTP(w, setContextValues(r, claims, token))
	})
}

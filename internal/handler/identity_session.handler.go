package handler

import (
	"net/http"

	"identity-service/shared/auth/middleware"
	"identity-service/shared/response"
	xerrors "identity-service/shared/utils/errors"

	"go.uber.org/zap"
)

func (h *IdentityHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	sess, err := h.uc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, sess)
}

func (h *IdentityHandler) GoogleAuth(w http.ResponseWriter, r *http.Request) {
	if h.google == nil {
		response.Error(w, http.StatusServiceUnavailable, "google sign-in is not configured")
		return
	}
	var req GoogleAuthRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.IDToken == "" {
		response.FieldError(w, http.StatusBadRequest, "id_token", "id_token is required")
		return
	}

	ident, err := h.google.Verify(r.Context(), req.IDToken)
	if err != nil {
		h.logger.Info("google token rejected", zap.Error(err))
		h.writeError(w, r, xerrors.ErrInvalidToken)
		return
	}
	sess, err := h.uc.FederatedLogin(r.Context(), *ident)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, sess)
}

// Session echoes the claims of the caller's token. Requires RequireSession.
func (h *IdentityHandler) Session(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetClaims(r.Context())
	if !ok {
		h.writeError(w, r, xerrors.ErrUnauthorized)
		return
	}
	response.JSON(w, http.StatusOK, claims)
}

func (h *IdentityHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token, ok := middleware.GetToken(r.Context())
	if !ok {
		h.writeError(w, r, xerrors.ErrUnauthorized)
		return
	}
	if err := h.uc.Logout(r.Context(), token); err != nil {
		h.writeError(w, r, err)
		return
	}
	response.Message(w, http.StatusOK, "Logged out")
}

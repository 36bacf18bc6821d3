package handler

import (
	"net/http"
	"time"

	"identity-service/shared/response"
)

var startedAt = time.Now()

func (h *IdentityHandler) Health(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, map[string]any{
		"service": h.service,
		"status":  "ok",
		"uptime":  time.Since(startedAt).Round(time.Second).String(),
	})
}

// JWKS publishes the session signing key so other services can verify tokens.
func (h *IdentityHandler) JWKS(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "public, max-age=300")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(h.jwks)
}

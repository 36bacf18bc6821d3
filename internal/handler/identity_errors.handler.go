package handler

import (
	"errors"
	"net/http"

	"identity-service/shared/response"
	xerrors "identity-service/shared/utils/errors"

	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// errorStatus lists the domain errors whose own message is safe to return.
var errorStatus = []struct {
	err    error
	status int
}{
	{xerrors.ErrUserAlreadyExists, http.StatusBadRequest},
	{xerrors.ErrAlreadyVerified, http.StatusBadRequest},
	{xerrors.ErrNoCodeOutstanding, http.StatusBadRequest},
	{xerrors.ErrNoResetOutstanding, http.StatusBadRequest},
	{xerrors.ErrExpiredOTP, http.StatusBadRequest},
	{xerrors.ErrInvalidOTP, http.StatusBadRequest},
	{xerrors.ErrInvalidRequest, http.StatusBadRequest},
	{xerrors.ErrUserNotFound, http.StatusNotFound},
	{xerrors.ErrInvalidCredentials, http.StatusUnauthorized},
	{xerrors.ErrEmailNotVerified, http.StatusUnauthorized},
	{xerrors.ErrInvalidToken, http.StatusUnauthorized},
	{xerrors.ErrRevokedToken, http.StatusUnauthorized},
	{xerrors.ErrUnauthorized, http.StatusUnauthorized},
}

// writeError maps err to a status. Infrastructure failures are logged in
// full and answered with a generic message.
func (h *IdentityHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *xerrors.ValidationError
	if errors.As(err, &ve) {
		response.FieldError(w, http.StatusBadRequest, ve.Field, ve.Message)
		return
	}
	for _, e := range errorStatus {
		if errors.Is(err, e.err) {
			response.Error(w, e.status, e.err.Error())
			return
		}
	}

	fields := []zap.Field{
		zap.String("path", r.URL.Path),
		zap.String("request_id", chimw.GetReqID(r.Context())),
		zap.Error(err),
	}
	if errors.Is(err, xerrors.ErrDeliveryFailure) {
		h.logger.Error("code delivery failed", fields...)
		response.Error(w, http.StatusInternalServerError, xerrors.ErrDeliveryFailure.Error())
		return
	}
	h.logger.Error("request failed", fields...)
	response.Error(w, http.StatusInternalServerError, xerrors.ErrInternalServer.Error())
}

package handler

import (
	"net/http"

	"identity-service/shared/response"
)

func (h *IdentityHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req VerifyOTPRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.uc.VerifyEmail(r.Context(), req.Email, req.OTP); err != nil {
		h.writeError(w, r, err)
		return
	}
	response.Message(w, http.StatusOK, "Email verified successfully. You can now log in.")
}

func (h *IdentityHandler) ResendOTP(w http.ResponseWriter, r *http.Request) {
	var req EmailRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.uc.ResendVerification(r.Context(), req.Email); err != nil {
		h.writeError(w, r, err)
		return
	}
	response.Message(w, http.StatusOK, "A new verification code has been sent.")
}

func (h *IdentityHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req EmailRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.uc.RequestPasswordReset(r.Context(), req.Email); err != nil {
		h.writeError(w, r, err)
		return
	}
	response.Message(w, http.StatusOK, "A password reset code has been sent.")
}

func (h *IdentityHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.uc.ConfirmPasswordReset(r.Context(), req.Email, req.OTP, req.NewPassword); err != nil {
		h.writeError(w, r, err)
		return
	}
	response.Message(w, http.StatusOK, "Password has been reset. You can now log in.")
}

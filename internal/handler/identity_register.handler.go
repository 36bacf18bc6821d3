package handler

import (
	"fmt"
	"net/http"

	"identity-service/internal/usecase"
	"identity-service/shared/response"
)

func (h *IdentityHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	email, err := h.uc.Register(r.Context(), usecase.RegisterRequest{
		Email:    req.Email,
		Password: req.Password,
		Phone:    req.Phone,
		Role:     req.Role,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	response.Message(w, http.StatusCreated,
		fmt.Sprintf("Registration successful. A verification code has been sent to %s.", email))
}

func (h *IdentityHandler) CheckEmail(w http.ResponseWriter, r *http.Request) {
	available, err := h.uc.CheckEmailAvailable(r.Context(), r.URL.Query().Get("email"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	msg := "Email is available"
	if !available {
		msg = "Email is already registered"
	}
	response.JSON(w, http.StatusOK, AvailabilityResponse{Available: available, Message: msg})
}

func (h *IdentityHandler) CheckPhone(w http.ResponseWriter, r *http.Request) {
	available, err := h.uc.CheckPhoneAvailable(r.Context(), r.URL.Query().Get("phone"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	msg := "Phone number is available"
	if !available {
		msg = "Phone number is already registered"
	}
	response.JSON(w, http.StatusOK, AvailabilityResponse{Available: available, Message: msg})
}

package response

import (
	"encoding/json"
	"net/http"
)

type APIResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func JSON(w http.ResponseWriter, status int, data interface{}) {
	write(w, status, APIResponse{Status: "success", Data: data})
}

// Message writes a success envelope that only carries a human readable message.
func Message(w http.ResponseWriter, status int, msg string) {
	write(w, status, APIResponse{Status: "success", Message: msg})
}

func Error(w http.ResponseWriter, status int, msg string) {
	write(w, status, APIResponse{Status: "error", Message: msg})
}

// FieldError is an error envelope naming the offending input field.
func FieldError(w http.ResponseWriter, status int, field, msg string) {
	write(w, status, APIResponse{
		Status:  "error",
		Message: msg,
		Data:    map[string]string{"field": field},
	})
}

func write(w http.ResponseWriter, status int, resp APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

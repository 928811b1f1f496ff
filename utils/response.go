package utils

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// Failure is the body of every unsuccessful API response.
type Failure struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteJSON encodes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("Failed to encode response", zap.Error(err))
	}
}

// WriteFailure writes {success:false, code, message}.
func WriteFailure(w http.ResponseWriter, status int, code, message string) {
	WriteJSON(w, status, Failure{Success: false, Code: code, Message: message})
}

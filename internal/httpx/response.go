// Package httpx writes the JSON envelopes used by every API endpoint.
package httpx

import (
	"encoding/json"
	"net/http"
)

// Envelope is the success/failure body shared by all API responses.
type Envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Meta    any    `json:"meta,omitempty"`
	Message string `json:"message,omitempty"`
	Error   any    `json:"error,omitempty"`
}

// JSON writes payload with the given status.
func JSON(w http.ResponseWriter, status int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, `{"success":false,"message":"encode_error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// OK writes {success:true, data, meta}.
func OK(w http.ResponseWriter, status int, data, meta any) {
	JSON(w, status, Envelope{Success: true, Data: data, Meta: meta})
}

// Message writes {success:true, message} for operations without a payload.
func Message(w http.ResponseWriter, status int, msg string, data any) {
	JSON(w, status, Envelope{Success: true, Message: msg, Data: data})
}

// Fail writes {success:false, message, error}.
func Fail(w http.ResponseWriter, status int, msg string, detail any) {
	JSON(w, status, Envelope{Success: false, Message: msg, Error: detail})
}

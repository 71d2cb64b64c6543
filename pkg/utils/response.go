package utils

import (
	"encoding/json"
	"log"
	"net/http"
)

// Envelope is the upstream API's uniform response wrapper.
type Envelope struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data any    `json:"data,omitempty"`
}

// RespondJSON writes a payload with the given HTTP status.
func RespondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

// RespondEnvelope wraps data in the upstream envelope with code 200.
func RespondEnvelope(w http.ResponseWriter, data any) {
	RespondJSON(w, http.StatusOK, Envelope{Code: http.StatusOK, Data: data})
}

// RespondError reports an error inside the envelope, mirroring how the
// upstream signals failures in-band.
func RespondError(w http.ResponseWriter, code int, message string) {
	RespondJSON(w, http.StatusOK, Envelope{Code: code, Msg: message})
}

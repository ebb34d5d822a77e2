package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/edurelay/ltirelay/internal/cachebox"
	"github.com/edurelay/ltirelay/internal/lti"
)

var (
	// ErrClientDataMissing is returned when relayed request data cannot be
	// restored from the cache (expired or never written). Unrecoverable for
	// this request; the client must restart the handshake.
	ErrClientDataMissing = errors.New("cannot restore request data from cache")

	// ErrCapabilityDenied is returned when a resolved launch lacks a
	// capability the endpoint requires.
	ErrCapabilityDenied = errors.New("launch lacks required capability")
)

// statusForError maps the relay's error taxonomy onto HTTP statuses.
func statusForError(err error) int {
	switch {
	case errors.Is(err, ErrClientDataMissing),
		errors.Is(err, cachebox.ErrNotFound),
		errors.Is(err, lti.ErrLaunchNotFound):
		return http.StatusBadRequest
	case errors.Is(err, ErrCapabilityDenied),
		errors.Is(err, lti.ErrNoService):
		return http.StatusForbidden
	case errors.Is(err, lti.ErrValidation),
		errors.Is(err, lti.ErrNoRegistration):
		return http.StatusUnauthorized
	case errors.Is(err, lti.ErrUpstream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusForError(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		log.Printf("ERROR: %s %s: %v", r.Method, r.URL.Path, err)
		message = "internal server error"
	} else {
		log.Printf("WARNING: %s %s: %v", r.Method, r.URL.Path, err)
	}
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("ERROR: encode response: %v", err)
	}
}

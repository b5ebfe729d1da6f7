package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/getsentry/sentry-go"

	"deyn.app/cloud/auth"
	"deyn.app/cloud/internal/logger"
	"deyn.app/cloud/models"
)

const maxBodyBytes = int64(65536)

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Failed to encode response", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

func writeErrorResponse(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// decodeJSON reads a bounded JSON body into v. Malformed bodies become a
// ValidationError.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return &models.ValidationError{Message: "request body is required"}
		}
		return &models.ValidationError{Message: fmt.Sprintf("invalid JSON: %v", err)}
	}
	return nil
}

// statusFor maps the error taxonomy onto HTTP statuses.
func statusFor(err error) int {
	var (
		verr *models.ValidationError
		nf   *models.NotFoundError
		cf   *models.ConflictError
	)
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.As(err, &nf):
		return http.StatusNotFound
	case errors.As(err, &cf):
		return http.StatusConflict
	case errors.Is(err, auth.ErrUnavailable):
		return http.StatusBadGateway
	}

	if perr, ok := auth.AsProviderError(err); ok {
		if perr.Status >= 500 {
			return http.StatusBadGateway
		}
		return perr.Status
	}
	return http.StatusInternalServerError
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)

	var verr *models.ValidationError
	if errors.As(err, &verr) {
		writeJSON(w, status, errorResponse{Error: verr.Message, Field: verr.Field})
		return
	}

	if status >= 500 {
		logger.Error("Request failed", map[string]interface{}{
			"path":  r.URL.Path,
			"error": err.Error(),
		})
		s.captureError(r, err)
		writeErrorResponse(w, status, http.StatusText(status))
		return
	}

	message := err.Error()
	if perr, ok := auth.AsProviderError(err); ok {
		message = perr.Message
	}
	writeErrorResponse(w, status, message)
}

func sentryHub(r *http.Request) *sentry.Hub {
	return sentry.GetHubFromContext(r.Context())
}

func sessionFrom(r *http.Request) models.Session {
	session, _ := auth.SessionFromContext(r.Context())
	return session
}

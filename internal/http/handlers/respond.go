package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/potholewatch/server/internal/auth"
	"github.com/potholewatch/server/internal/pipeline"
	"github.com/potholewatch/server/internal/repo"
)

// ErrRateLimited is returned when a client exceeds the request budget
var ErrRateLimited = errors.New("rate limit exceeded")

// Error kinds reported in the "kind" field of error responses
const (
	KindMissingIdentifier = "MissingIdentifier"
	KindInvalidCode       = "InvalidCode"
	KindAuthRequired      = "AuthRequired"
	KindMissingToken      = "MissingToken"
	KindInvalidToken      = "InvalidToken"
	KindExpiredToken      = "ExpiredToken"
	KindInvalidInput      = "InvalidInput"
	KindStorageError      = "StorageError"
	KindNotifyFailed      = "NotifyFailed"
	KindRateLimited       = "RateLimited"
	KindInternal          = "Internal"
)

type errorMapping struct {
	target  error
	status  int
	kind    string
	message string
}

// Order matters: the first match wins.
var errorMappings = []errorMapping{
	{auth.ErrMissingIdentifier, http.StatusBadRequest, KindMissingIdentifier, "identifier is required"},
	{auth.ErrInvalidCode, http.StatusUnauthorized, KindInvalidCode, "invalid or expired code"},
	{auth.ErrNotifyFailed, http.StatusBadGateway, KindNotifyFailed, "failed to deliver code"},
	{pipeline.ErrAuthRequired, http.StatusUnauthorized, KindAuthRequired, "authorization required"},
	{auth.ErrMissingToken, http.StatusUnauthorized, KindMissingToken, "missing token"},
	{auth.ErrExpiredToken, http.StatusUnauthorized, KindExpiredToken, "token expired"},
	{auth.ErrInvalidToken, http.StatusUnauthorized, KindInvalidToken, "invalid token"},
	{pipeline.ErrInvalidInput, http.StatusBadRequest, KindInvalidInput, ""},
	{ErrRateLimited, http.StatusTooManyRequests, KindRateLimited, "rate limit exceeded"},
	{repo.ErrStorage, http.StatusInternalServerError, KindStorageError, "storage error"},
}

// classify maps err to its HTTP status, kind and client-facing message
func classify(err error) (int, string, string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			msg := m.message
			if msg == "" {
				msg = err.Error()
				var se *pipeline.StageError
				if errors.As(err, &se) {
					msg = se.Err.Error()
				}
			}
			return m.status, m.kind, msg
		}
	}
	return http.StatusInternalServerError, KindInternal, "internal error"
}

// ErrorKind returns the machine-readable kind for err
func ErrorKind(err error) string {
	_, kind, _ := classify(err)
	return kind
}

// RespondWithError writes the status and JSON body matching err
func RespondWithError(w http.ResponseWriter, err error) {
	status, kind, msg := classify(err)
	if status >= http.StatusInternalServerError {
		log.Printf("Request failed (%s): %v", kind, err)
	}
	respondWithError(w, status, kind, msg)
}

// RejectRateLimited answers requests turned away by the rate limiter
func RejectRateLimited(w http.ResponseWriter, _ *http.Request) {
	RespondWithError(w, ErrRateLimited)
}

// respondWithError sends a JSON error response
func respondWithError(w http.ResponseWriter, statusCode int, kind, message string) {
	respondJSON(w, statusCode, map[string]string{"error": message, "kind": kind})
}

func respondJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

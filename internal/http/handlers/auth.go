package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/potholewatch/server/internal/auth"
	"github.com/potholewatch/server/internal/metrics"
	"github.com/potholewatch/server/internal/middleware"
	"github.com/potholewatch/server/internal/pipeline"
)

const maxAuthBody = 4 << 10

// AuthHandler handles the one-time code endpoints
type AuthHandler struct {
	authService *auth.AuthService
	metrics     *metrics.Metrics
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authService *auth.AuthService, m *metrics.Metrics) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		metrics:     m,
	}
}

// sendOTPRequest is the request body for POST /api/send-otp; phone is accepted for older clients
type sendOTPRequest struct {
	Identifier string `json:"identifier"`
	Phone      string `json:"phone"`
}

func (r sendOTPRequest) identifier() string {
	return firstNonBlank(r.Identifier, r.Phone)
}

// sendOTPResponse is the JSON response for send-otp
type sendOTPResponse struct {
	Message string `json:"message"`
	DevOTP  string `json:"dev_otp,omitempty"`
}

// verifyOTPRequest is the request body for POST /api/verify-otp
type verifyOTPRequest struct {
	Identifier string `json:"identifier"`
	Phone      string `json:"phone"`
	Code       string `json:"code"`
	OTP        string `json:"otp"`
}

// verifyOTPResponse is the JSON response for verify-otp
type verifyOTPResponse struct {
	Token string `json:"token"`
}

// HandleSendOTP handles POST /api/send-otp
func (h *AuthHandler) HandleSendOTP(w http.ResponseWriter, r *http.Request) {
	// A body that does not decode carries no identifier.
	var req sendOTPRequest
	if err := decodeJSON(r, &req); err != nil {
		log.Printf("Undecodable send-otp body: %v", err)
		h.metrics.CodeRequests.WithLabelValues(KindMissingIdentifier).Inc()
		RespondWithError(w, auth.ErrMissingIdentifier)
		return
	}
	identifier := req.identifier()

	devCode, err := h.authService.RequestCode(r.Context(), identifier)
	if err != nil {
		logMaskedPhone(identifier, "Failed to request code: %v", err)
		h.metrics.CodeRequests.WithLabelValues(ErrorKind(err)).Inc()
		RespondWithError(w, err)
		return
	}
	h.metrics.CodeRequests.WithLabelValues("ok").Inc()

	respondJSON(w, http.StatusOK, sendOTPResponse{Message: "OTP sent", DevOTP: devCode})
}

// HandleVerifyOTP handles POST /api/verify-otp
func (h *AuthHandler) HandleVerifyOTP(w http.ResponseWriter, r *http.Request) {
	// A body that does not decode (empty, or a numeric code) cannot match a pending code.
	var req verifyOTPRequest
	if err := decodeJSON(r, &req); err != nil {
		log.Printf("Undecodable verify-otp body: %v", err)
		h.metrics.CodeVerifications.WithLabelValues(KindInvalidCode).Inc()
		RespondWithError(w, auth.ErrInvalidCode)
		return
	}
	identifier := firstNonBlank(req.Identifier, req.Phone)
	code := firstNonBlank(req.Code, req.OTP)

	token, err := h.authService.VerifyCodeAndIssueToken(r.Context(), identifier, code)
	if err != nil {
		logMaskedPhone(identifier, "Code verification failed: %v", err)
		h.metrics.CodeVerifications.WithLabelValues(ErrorKind(err)).Inc()
		RespondWithError(w, err)
		return
	}
	h.metrics.CodeVerifications.WithLabelValues("ok").Inc()

	respondJSON(w, http.StatusOK, verifyOTPResponse{Token: token})
}

// meResponse is the JSON response for GET /api/me
type meResponse struct {
	Identity string `json:"identity"`
}

// HandleMe handles GET /api/me (protected). Returns the identity carried by the token.
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.GetIdentity(r.Context())
	if !ok {
		RespondWithError(w, pipeline.ErrAuthRequired)
		return
	}
	respondJSON(w, http.StatusOK, meResponse{Identity: identity})
}

// decodeJSON reads a small JSON object from the request body
func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxAuthBody)).Decode(dst); err != nil {
		return fmt.Errorf("%w: request body: %w", pipeline.ErrInvalidInput, err)
	}
	return nil
}

func firstNonBlank(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// logMaskedPhone logs a message prefixed with the masked phone number
func logMaskedPhone(phone, format string, args ...any) {
	log.Printf("Phone %s: "+format, append([]any{auth.MaskIdentifier(phone)}, args...)...)
}

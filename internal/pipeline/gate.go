package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"github.com/potholewatch/server/internal/auth"
)

var (
	// ErrAuthRequired is returned when no credentials were presented at all
	ErrAuthRequired = errors.New("authorization required")
	// ErrInvalidInput is returned when a request body or filter fails validation
	ErrInvalidInput = errors.New("invalid input")
)

// TokenVerifier turns a bearer token into the identity it carries
type TokenVerifier interface {
	Verify(token string) (string, error)
}

// Gate is the authentication stage of the pipeline
type Gate struct {
	tokens TokenVerifier
}

// NewGate creates a gate backed by tokens
func NewGate(tokens TokenVerifier) *Gate {
	return &Gate{tokens: tokens}
}

// Authenticate reads an Authorization header value and returns the identity it proves.
// An absent header is ErrAuthRequired; token failures keep the verifier's error.
func (g *Gate) Authenticate(authorization string) (string, error) {
	authorization = strings.TrimSpace(authorization)
	if authorization == "" {
		return "", ErrAuthRequired
	}

	scheme, token, _ := strings.Cut(authorization, " ")
	if !strings.EqualFold(scheme, "Bearer") {
		return "", fmt.Errorf("%w: unsupported authorization scheme", auth.ErrInvalidToken)
	}

	return g.tokens.Verify(strings.TrimSpace(token))
}

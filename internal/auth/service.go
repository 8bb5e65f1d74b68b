package auth

import (
	"context"
	"fmt"
	"strings"
)

// AuthService orchestrates the code exchange: request a code, then trade it for a token
type AuthService struct {
	codes  CodeProvider
	tokens *TokenService
}

// NewAuthService creates a new auth service
func NewAuthService(codes CodeProvider, tokens *TokenService) *AuthService {
	return &AuthService{
		codes:  codes,
		tokens: tokens,
	}
}

// RequestCode issues a code for identifier; devCode is empty unless dev mode is on
func (s *AuthService) RequestCode(ctx context.Context, identifier string) (devCode string, err error) {
	return s.codes.RequestCode(ctx, identifier)
}

// VerifyCodeAndIssueToken consumes the pending code and returns a bearer token for identifier.
func (s *AuthService) VerifyCodeAndIssueToken(ctx context.Context, identifier, code string) (string, error) {
	identifier = strings.TrimSpace(identifier)
	if err := s.codes.ConsumeCode(ctx, identifier, code); err != nil {
		return "", err
	}

	token, err := s.tokens.Issue(identifier)
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return token, nil
}

// Tokens exposes the token service for the request gate
func (s *AuthService) Tokens() *TokenService {
	return s.tokens
}

package auth

import "errors"

var (
	// ErrMissingIdentifier is returned when a code is requested without an identifier
	ErrMissingIdentifier = errors.New("identifier is required")
	// ErrInvalidCode covers absent, mismatched, expired and already used codes alike
	ErrInvalidCode = errors.New("invalid or expired code")
	// ErrNotifyFailed is returned when the code could not be delivered
	ErrNotifyFailed = errors.New("failed to deliver code")

	// ErrMissingToken is returned when an empty token is presented
	ErrMissingToken = errors.New("missing token")
	// ErrInvalidToken is returned for malformed tokens and bad signatures
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken is returned once a token is past its expiry
	ErrExpiredToken = errors.New("token expired")
)

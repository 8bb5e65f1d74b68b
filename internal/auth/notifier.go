package auth

import (
	"context"
	"log"
	"strings"
)

// Notifier delivers a one-time code to the holder of identifier (SMS, email, ...)
type Notifier interface {
	Notify(ctx context.Context, identifier, code string) error
}

// NotifierFunc adapts a function to Notifier
type NotifierFunc func(ctx context.Context, identifier, code string) error

func (f NotifierFunc) Notify(ctx context.Context, identifier, code string) error {
	return f(ctx, identifier, code)
}

// LogNotifier writes codes to the process log. It stands in for an SMS gateway
// in development and must not be used where logs are shared.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, identifier, code string) error {
	log.Printf("One-time code for %s: %s", MaskIdentifier(identifier), code)
	return nil
}

// MaskIdentifier masks a phone number for logging (e.g., +49******89)
func MaskIdentifier(identifier string) string {
	if len(identifier) <= 4 {
		return "****"
	}
	return identifier[:2] + strings.Repeat("*", len(identifier)-4) + identifier[len(identifier)-2:]
}

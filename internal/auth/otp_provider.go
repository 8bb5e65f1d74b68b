package auth

import "context"

// CodeProvider issues and consumes one-time codes
type CodeProvider interface {
	// RequestCode issues a fresh code for identifier and hands it to the notifier.
	// The code itself is returned only when dev mode exposes it.
	RequestCode(ctx context.Context, identifier string) (devCode string, err error)
	// ConsumeCode succeeds at most once per issued code.
	ConsumeCode(ctx context.Context, identifier, code string) error
}

package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/potholewatch/server/internal/model"
	"github.com/potholewatch/server/internal/repo"
)

const (
	otpLength = 6
	otpMin    = 100000
	otpSpan   = 900000 // otpMin..999999 inclusive
)

// CodeIssuerOptions tunes a CodeIssuer
type CodeIssuerOptions struct {
	Salt    string
	TTL     time.Duration // zero disables expiry
	DevMode bool          // return the plaintext code from RequestCode
}

// CodeIssuer implements CodeProvider on top of a repo.CodeRepo. Only salted
// hashes of codes reach the repo.
type CodeIssuer struct {
	codes    repo.CodeRepo
	notifier Notifier
	opts     CodeIssuerOptions
	now      func() time.Time
	generate func() (string, error)
}

// NewCodeIssuer creates a new code issuer
func NewCodeIssuer(codes repo.CodeRepo, notifier Notifier, opts CodeIssuerOptions) *CodeIssuer {
	if notifier == nil {
		notifier = LogNotifier{}
	}
	return &CodeIssuer{
		codes:    codes,
		notifier: notifier,
		opts:     opts,
		now:      time.Now,
		generate: generateOTPCode,
	}
}

// RequestCode creates or replaces the pending code for identifier and notifies its holder.
func (c *CodeIssuer) RequestCode(ctx context.Context, identifier string) (string, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return "", ErrMissingIdentifier
	}

	code, err := c.generate()
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}

	now := c.now()
	pending := model.PendingCode{
		Identifier: identifier,
		CodeHash:   hashOTPHex(identifier, code, c.opts.Salt),
		CreatedAt:  now,
	}
	if c.opts.TTL > 0 {
		pending.ExpiresAt = now.Add(c.opts.TTL)
	}
	if err := c.codes.Put(ctx, pending); err != nil {
		return "", fmt.Errorf("store code: %w", err)
	}

	if err := c.notifier.Notify(ctx, identifier, code); err != nil {
		return "", fmt.Errorf("%w: %w", ErrNotifyFailed, err)
	}

	if c.opts.DevMode {
		return code, nil
	}
	return "", nil
}

// ConsumeCode removes the pending code for identifier if code matches it.
func (c *CodeIssuer) ConsumeCode(ctx context.Context, identifier, code string) error {
	identifier = strings.TrimSpace(identifier)
	code = strings.TrimSpace(code)
	if identifier == "" || code == "" {
		return ErrInvalidCode
	}

	err := c.codes.Consume(ctx, identifier, hashOTPHex(identifier, code, c.opts.Salt), c.now())
	if errors.Is(err, repo.ErrCodeMismatch) {
		return ErrInvalidCode
	}
	if err != nil {
		return fmt.Errorf("consume code: %w", err)
	}
	return nil
}

// generateOTPCode draws uniformly from 100000..999999
func generateOTPCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(otpSpan))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", otpLength, n.Int64()+otpMin), nil
}

// hashOTPHex returns SHA-256(identifier:code:salt) as hex for storage
func hashOTPHex(identifier, code, salt string) string {
	hash := sha256.Sum256([]byte(fmt.Sprintf("%s:%s:%s", identifier, code, salt)))
	return hex.EncodeToString(hash[:])
}

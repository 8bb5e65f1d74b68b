package auth

import (
	"context"
	"encoding/hex"
	"errors"
	"regexp"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/potholewatch/server/internal/repo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testIdentifier = "+15551234567"

// captureNotifier records the last code delivered per identifier
type captureNotifier struct {
	mu    sync.Mutex
	codes map[string]string
	calls int
}

func newCaptureNotifier() *captureNotifier {
	return &captureNotifier{codes: make(map[string]string)}
}

func (n *captureNotifier) Notify(_ context.Context, identifier, code string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.codes[identifier] = code
	n.calls++
	return nil
}

func (n *captureNotifier) last(identifier string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.codes[identifier]
}

func newTestIssuer(t *testing.T, opts CodeIssuerOptions) (*CodeIssuer, *repo.MemoryCodeRepo, *captureNotifier) {
	t.Helper()
	codes := repo.NewMemoryCodeRepo(0)
	t.Cleanup(func() { codes.Close() })
	notifier := newCaptureNotifier()
	return NewCodeIssuer(codes, notifier, opts), codes, notifier
}

func TestHashOTPHex_consistency(t *testing.T) {
	h1 := hashOTPHex("+49123", "123456", "test-salt")
	h2 := hashOTPHex("+49123", "123456", "test-salt")
	assert.Equal(t, h1, h2, "hash should be deterministic")
	decoded, err := hex.DecodeString(h1)
	require.NoError(t, err, "hash should be valid hex")
	assert.Len(t, decoded, 32, "SHA-256 hash should be 32 bytes")
}

func TestHashOTPHex_differentInputsDifferentHash(t *testing.T) {
	h1 := hashOTPHex("+49123", "123456", "salt")
	h2 := hashOTPHex("+49124", "123456", "salt")
	h3 := hashOTPHex("+49123", "654321", "salt")
	h4 := hashOTPHex("+49123", "123456", "pepper")
	assert.NotEqual(t, h1, h2)
	assert.NotEqual(t, h1, h3)
	assert.NotEqual(t, h2, h3)
	assert.NotEqual(t, h1, h4)
}

func TestGenerateOTPCode_range(t *testing.T) {
	digits := regexp.MustCompile(`^[0-9]{6}$`)
	for i := 0; i < 1000; i++ {
		code, err := generateOTPCode()
		require.NoError(t, err)
		require.Regexp(t, digits, code)
		require.GreaterOrEqual(t, code, "100000")
		require.LessOrEqual(t, code, "999999")
	}
}

func TestRequestCode_storesSixDigitCode(t *testing.T) {
	issuer, codes, notifier := newTestIssuer(t, CodeIssuerOptions{Salt: "s"})
	ctx := context.Background()

	devCode, err := issuer.RequestCode(ctx, testIdentifier)
	require.NoError(t, err)
	assert.Empty(t, devCode, "code must not be disclosed outside dev mode")

	code := notifier.last(testIdentifier)
	assert.Regexp(t, `^[0-9]{6}$`, code)

	p, ok := codes.Pending(testIdentifier)
	require.True(t, ok, "one pending code expected")
	assert.Equal(t, hashOTPHex(testIdentifier, code, "s"), p.CodeHash)
	assert.True(t, p.ExpiresAt.IsZero(), "zero TTL means no expiry")
}

func TestRequestCode_missingIdentifier(t *testing.T) {
	issuer, _, notifier := newTestIssuer(t, CodeIssuerOptions{})
	for _, id := range []string{"", "   "} {
		_, err := issuer.RequestCode(context.Background(), id)
		assert.ErrorIs(t, err, ErrMissingIdentifier)
	}
	assert.Zero(t, notifier.calls)
}

func TestRequestCode_devModeReturnsCode(t *testing.T) {
	issuer, _, notifier := newTestIssuer(t, CodeIssuerOptions{DevMode: true})
	devCode, err := issuer.RequestCode(context.Background(), testIdentifier)
	require.NoError(t, err)
	assert.Equal(t, notifier.last(testIdentifier), devCode)
}

func TestRequestCode_notifyFailure(t *testing.T) {
	codes := repo.NewMemoryCodeRepo(0)
	defer codes.Close()
	boom := errors.New("sms gateway down")
	issuer := NewCodeIssuer(codes, NotifierFunc(func(context.Context, string, string) error { return boom }), CodeIssuerOptions{})

	_, err := issuer.RequestCode(context.Background(), testIdentifier)
	assert.ErrorIs(t, err, ErrNotifyFailed)
	assert.ErrorIs(t, err, boom)
}

func TestConsumeCode_singleUse(t *testing.T) {
	issuer, _, notifier := newTestIssuer(t, CodeIssuerOptions{})
	ctx := context.Background()

	_, err := issuer.RequestCode(ctx, testIdentifier)
	require.NoError(t, err)
	code := notifier.last(testIdentifier)

	require.NoError(t, issuer.ConsumeCode(ctx, testIdentifier, code))
	assert.ErrorIs(t, issuer.ConsumeCode(ctx, testIdentifier, code), ErrInvalidCode)
}

func TestConsumeCode_secondIssuanceInvalidatesFirst(t *testing.T) {
	issuer, _, notifier := newTestIssuer(t, CodeIssuerOptions{})
	ctx := context.Background()

	// force distinct codes so the old one cannot collide with the new one
	seq := []string{"111111", "222222"}
	issuer.generate = func() (string, error) {
		c := seq[0]
		seq = seq[1:]
		return c, nil
	}

	_, err := issuer.RequestCode(ctx, testIdentifier)
	require.NoError(t, err)
	first := notifier.last(testIdentifier)
	_, err = issuer.RequestCode(ctx, testIdentifier)
	require.NoError(t, err)
	second := notifier.last(testIdentifier)

	assert.ErrorIs(t, issuer.ConsumeCode(ctx, testIdentifier, first), ErrInvalidCode)
	assert.NoError(t, issuer.ConsumeCode(ctx, testIdentifier, second))
}

func TestConsumeCode_emptyAndUnknown(t *testing.T) {
	issuer, _, _ := newTestIssuer(t, CodeIssuerOptions{})
	ctx := context.Background()
	assert.ErrorIs(t, issuer.ConsumeCode(ctx, testIdentifier, ""), ErrInvalidCode)
	assert.ErrorIs(t, issuer.ConsumeCode(ctx, "", "123456"), ErrInvalidCode)
	assert.ErrorIs(t, issuer.ConsumeCode(ctx, testIdentifier, "123456"), ErrInvalidCode)
}

func TestConsumeCode_expired(t *testing.T) {
	issuer, _, notifier := newTestIssuer(t, CodeIssuerOptions{TTL: 5 * time.Minute})
	ctx := context.Background()
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	issuer.now = func() time.Time { return start }

	_, err := issuer.RequestCode(ctx, testIdentifier)
	require.NoError(t, err)

	issuer.now = func() time.Time { return start.Add(6 * time.Minute) }
	assert.ErrorIs(t, issuer.ConsumeCode(ctx, testIdentifier, notifier.last(testIdentifier)), ErrInvalidCode)
}

func TestConsumeCode_concurrentExactlyOneSucceeds(t *testing.T) {
	issuer, _, notifier := newTestIssuer(t, CodeIssuerOptions{})
	ctx := context.Background()

	_, err := issuer.RequestCode(ctx, testIdentifier)
	require.NoError(t, err)
	code := notifier.last(testIdentifier)

	const attempts = 50
	var wg sync.WaitGroup
	var ok, invalid atomic.Int32
	start := make(chan struct{})
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			switch err := issuer.ConsumeCode(ctx, testIdentifier, code); {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, ErrInvalidCode):
				invalid.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), ok.Load())
	assert.Equal(t, int32(attempts-1), invalid.Load())
}

func TestMaskIdentifier(t *testing.T) {
	assert.Equal(t, "+4*******89", MaskIdentifier("+4912345689"))
	assert.Equal(t, "****", MaskIdentifier("+491"))
}

package repo

import (
	"context"
	"crypto/subtle"
	"sync"
	"time"

	"github.com/potholewatch/server/internal/model"
)

// MemoryCodeRepo keeps pending codes in process memory.
//
// Entries are *model.PendingCode values in a sync.Map; Consume relies on
// CompareAndDelete so a pointer that was replaced or already consumed can never
// be removed twice. Operations on different identifiers never contend.
type MemoryCodeRepo struct {
	codes sync.Map // identifier -> *model.PendingCode

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewMemoryCodeRepo creates an in-memory CodeRepo. When sweepEvery is positive a
// background goroutine drops expired codes until Close is called.
func NewMemoryCodeRepo(sweepEvery time.Duration) *MemoryCodeRepo {
	r := &MemoryCodeRepo{stop: make(chan struct{})}
	if sweepEvery > 0 {
		r.wg.Add(1)
		go r.sweepLoop(sweepEvery)
	}
	return r
}

func (r *MemoryCodeRepo) Put(ctx context.Context, code model.PendingCode) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c := code
	r.codes.Store(code.Identifier, &c)
	return nil
}

func (r *MemoryCodeRepo) Consume(ctx context.Context, identifier, codeHash string, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	v, ok := r.codes.Load(identifier)
	if !ok {
		return ErrCodeMismatch
	}
	pending := v.(*model.PendingCode)
	if subtle.ConstantTimeCompare([]byte(pending.CodeHash), []byte(codeHash)) != 1 {
		return ErrCodeMismatch
	}
	if !r.codes.CompareAndDelete(identifier, v) {
		return ErrCodeMismatch
	}
	if pending.Expired(now) {
		return ErrCodeMismatch
	}
	return nil
}

func (r *MemoryCodeRepo) Sweep(ctx context.Context, now time.Time) (int64, error) {
	var removed int64
	r.codes.Range(func(key, value any) bool {
		if ctx.Err() != nil {
			return false
		}
		if value.(*model.PendingCode).Expired(now) && r.codes.CompareAndDelete(key, value) {
			removed++
		}
		return true
	})
	return removed, ctx.Err()
}

// Pending returns the stored code for identifier, for inspection in tests and dev tooling.
func (r *MemoryCodeRepo) Pending(identifier string) (model.PendingCode, bool) {
	v, ok := r.codes.Load(identifier)
	if !ok {
		return model.PendingCode{}, false
	}
	return *v.(*model.PendingCode), true
}

// Close stops the sweeper and drops every pending code.
func (r *MemoryCodeRepo) Close() error {
	r.stopOnce.Do(func() {
		close(r.stop)
		r.wg.Wait()
		r.codes.Clear()
	})
	return nil
}

func (r *MemoryCodeRepo) sweepLoop(every time.Duration) {
	defer r.wg.Done()
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-r.stop:
			return
		case now := <-ticker.C:
			_, _ = r.Sweep(context.Background(), now)
		}
	}
}

package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/flipbook/internal/pagecache"
)

// PageStore is the render store contract a Breaker guards.
type PageStore interface {
	Load(ctx context.Context, docID string, key pagecache.Key) ([]byte, bool, error)
	Save(ctx context.Context, docID string, key pagecache.Key, jpeg []byte) error
}

// Breaker stops calling a failing store for a cooldown that doubles with
// each consecutive failure, up to a maximum. While open, loads miss and saves
// are skipped. The first call after the cooldown probes the store again.
type Breaker struct {
	next        PageStore
	baseBackoff time.Duration
	maxBackoff  time.Duration
	now         func() time.Time

	mu       sync.Mutex
	failures int
	retryAt  time.Time
}

// NewBreaker wraps next. Zero backoffs default to 30s and 5m.
func NewBreaker(next PageStore, baseBackoff, maxBackoff time.Duration) *Breaker {
	if baseBackoff <= 0 {
		baseBackoff = 30 * time.Second
	}
	if maxBackoff <= 0 {
		maxBackoff = 5 * time.Minute
	}
	return &Breaker{next: next, baseBackoff: baseBackoff, maxBackoff: maxBackoff, now: time.Now}
}

// IsOpen reports whether calls are currently skipped.
func (b *Breaker) IsOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures > 0 && b.now().Before(b.retryAt)
}

func (b *Breaker) Load(ctx context.Context, docID string, key pagecache.Key) ([]byte, bool, error) {
	if b.IsOpen() {
		return nil, false, nil
	}
	data, ok, err := b.next.Load(ctx, docID, key)
	b.record(err)
	return data, ok, err
}

func (b *Breaker) Save(ctx context.Context, docID string, key pagecache.Key, jpeg []byte) error {
	if b.IsOpen() {
		return nil
	}
	err := b.next.Save(ctx, docID, key, jpeg)
	b.record(err)
	return err
}

func (b *Breaker) record(err error) {
	// a caller giving up says nothing about the store
	if errors.Is(err, context.Canceled) {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		if b.failures > 0 {
			log.Info().Int("failures", b.failures).Msg("render store circuit CLOSED (reset)")
		}
		b.failures = 0
		return
	}

	b.failures++
	backoff := b.baseBackoff
	for i := 1; i < b.failures; i++ {
		backoff *= 2
		if backoff > b.maxBackoff {
			backoff = b.maxBackoff
			break
		}
	}
	b.retryAt = b.now().Add(backoff)
	log.Warn().
		Err(err).
		Dur("cooldown", backoff).
		Int("failures", b.failures).
		Time("retry_at", b.retryAt).
		Msg("render store circuit OPENED")
}

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/local/flipbook/internal/pagecache"
)

// RenderStore keeps encoded pages in Redis so that every viewer session (and
// every replica) rendering the same document can share them.
type RenderStore struct {
	client *redis.Client
	ttl    time.Duration
}

type Options struct {
	TTL          time.Duration
	ConnectTries uint
	ConnectDelay time.Duration
}

func NewRenderStore(ctx context.Context, redisURL string, opts Options) (*RenderStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if opts.ConnectTries == 0 {
		opts.ConnectTries = 3
	}
	if opts.ConnectDelay <= 0 {
		opts.ConnectDelay = 500 * time.Millisecond
	}

	c := redis.NewClient(opt)
	err = retry.Do(
		func() error { return c.Ping(ctx).Err() },
		retry.Context(ctx),
		retry.Attempts(opts.ConnectTries),
		retry.Delay(opts.ConnectDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			log.Warn().Err(err).Uint("attempt", n+1).Msg("redis not ready, retrying")
		}),
	)
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return &RenderStore{client: c, ttl: opts.TTL}, nil
}

func (s *RenderStore) Close() error { return s.client.Close() }

// Ping reports whether Redis answers.
func (s *RenderStore) Ping(ctx context.Context) error { return s.client.Ping(ctx).Err() }

func pageKey(docID string, key pagecache.Key) string {
	return fmt.Sprintf("flipbook:doc:%s:page:%d:scale:%d", docID, key.Page, key.Scale)
}

func (s *RenderStore) Save(ctx context.Context, docID string, key pagecache.Key, jpeg []byte) error {
	k := pageKey(docID, key)
	m := map[string]interface{}{
		"jpeg":        jpeg,
		"rendered_at": time.Now().UTC().Format(time.RFC3339Nano),
	}
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, k, m)
	if s.ttl > 0 {
		pipe.Expire(ctx, k, s.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RenderStore) Load(ctx context.Context, docID string, key pagecache.Key) ([]byte, bool, error) {
	res, err := s.client.HGet(ctx, pageKey(docID, key), "jpeg").Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return res, true, nil
}

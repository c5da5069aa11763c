package redis

import (
	"context"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/kirillkom/peptide-answer-service/internal/core/domain"
	"github.com/kirillkom/peptide-answer-service/internal/core/ports"
	"github.com/kirillkom/peptide-answer-service/internal/observability/apiusage"
)

const scanBatch = 200

// Store is the key-value backend for the answer and embedding caches.
type Store struct {
	client  goredis.UniversalClient
	tracker *apiusage.Tracker
}

// Open parses a redis:// URL and returns a Store. It does not dial.
func Open(rawURL string, tracker *apiusage.Tracker) (*Store, error) {
	opts, err := goredis.ParseURL(rawURL)
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "parse redis url", err)
	}
	opts.DialTimeout = 2 * time.Second
	opts.ReadTimeout = time.Second
	opts.WriteTimeout = time.Second
	return NewStore(goredis.NewClient(opts), tracker), nil
}

func NewStore(client goredis.UniversalClient, tracker *apiusage.Tracker) *Store {
	return &Store{client: client, tracker: tracker}
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var (
		value []byte
		found bool
	)
	err := s.track(ctx, "get", func(ctx context.Context) error {
		raw, err := s.client.Get(ctx, key).Bytes()
		if errors.Is(err, goredis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		value, found = raw, true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return value, found, nil
}

func (s *Store) SetEX(ctx context.Context, key string, ttl time.Duration, value []byte) error {
	return s.track(ctx, "set", func(ctx context.Context) error {
		return s.client.Set(ctx, key, value, ttl).Err()
	})
}

func (s *Store) Del(ctx context.Context, keys ...string) (int, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	var deleted int64
	err := s.track(ctx, "del", func(ctx context.Context) error {
		var err error
		deleted, err = s.client.Del(ctx, keys...).Result()
		return err
	})
	return int(deleted), err
}

// Keys walks the keyspace with SCAN so a large cache never blocks the server.
func (s *Store) Keys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	err := s.track(ctx, "scan", func(ctx context.Context) error {
		iter := s.client.Scan(ctx, 0, pattern, scanBatch).Iterator()
		for iter.Next(ctx) {
			keys = append(keys, iter.Val())
		}
		return iter.Err()
	})
	return keys, err
}

func (s *Store) Ping(ctx context.Context) error {
	return s.track(ctx, "ping", func(ctx context.Context) error {
		return s.client.Ping(ctx).Err()
	})
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) track(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	return s.tracker.Track(ctx, apiusage.Call{Provider: apiusage.ProviderRedis, Operation: operation}, func(ctx context.Context) (apiusage.Result, error) {
		if err := fn(ctx); err != nil {
			return apiusage.Result{}, mapRedisError(operation, err)
		}
		return apiusage.Result{}, nil
	})
}

func mapRedisError(operation string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.WrapError(domain.ErrProviderTimeout, "redis "+operation, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return domain.WrapError(domain.ErrTemporary, "redis "+operation, err)
}

var _ ports.KeyValueStore = (*Store)(nil)

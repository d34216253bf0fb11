// Package redisstore implements retry.Store on top of Redis.
//
// Counters are plain integer keys formatted with Config.KeyFormat. The ack flag of
// a key is kept under the formatted retry.AckKey of that key. When the store backs an
// offset based transport the TTL should be 0, otherwise an expired ack flag lets a
// replayed batch deliver an already handled message again.
package redisstore

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/velmie/retry"
)

const (
	DefaultKeyFormat = "servicebus.retry.%s"
	DefaultTTL       = 30
)

const ErrAddrRequired = retry.Error("redisstore: address is required")

// Client is the subset of redis commands used by the store.
// *redis.Client, *redis.ClusterClient and *redis.Ring satisfy it.
type Client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	TxPipelined(ctx context.Context, fn func(redis.Pipeliner) error) ([]redis.Cmder, error)
	Close() error
}

// Config of the redis store.
// Start from DefaultConfig, a zero Config has no TTL and keys never expire.
type Config struct {
	Addr     string
	Password string
	DB       int
	// KeyFormat is a fmt template with a single %s verb
	KeyFormat string
	// TTL is the key expiry in seconds, 0 disables expiry.
	// DefaultConfig sets it to DefaultTTL.
	TTL int
}

// DefaultConfig returns a config with the default key format and TTL
func DefaultConfig() Config {
	return Config{
		KeyFormat: DefaultKeyFormat,
		TTL:       DefaultTTL,
	}
}

// Store is a retry.Store backed by redis
type Store struct {
	client    Client
	keyFormat string
	ttl       time.Duration
}

var _ retry.Store = (*Store)(nil)

// New connects to the redis server described by cfg.
// Fields left zero are not defaulted, except KeyFormat: build cfg from DefaultConfig
// to get the DefaultTTL expiry.
func New(cfg Config) (*Store, error) {
	if cfg.Addr == "" {
		return nil, ErrAddrRequired
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return NewWithClient(client, cfg), nil
}

// NewWithClient creates the store on top of an existing client.
// Connection fields of cfg are ignored.
func NewWithClient(client Client, cfg Config) *Store {
	keyFormat := cfg.KeyFormat
	if keyFormat == "" {
		keyFormat = DefaultKeyFormat
	}
	ttl := cfg.TTL
	if ttl < 0 {
		ttl = 0
	}
	return &Store{
		client:    client,
		keyFormat: keyFormat,
		ttl:       time.Duration(ttl) * time.Second,
	}
}

func (s *Store) key(key string) string {
	return fmt.Sprintf(s.keyFormat, key)
}

func (s *Store) Get(ctx context.Context, key string) (int64, bool, error) {
	count, err := s.client.Get(ctx, s.key(key)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, errors.Wrapf(err, "redisstore: cannot get %q", key)
	}
	return count, true, nil
}

// Increment runs INCR and EXPIRE in one MULTI/EXEC transaction
func (s *Store) Increment(ctx context.Context, key string) (int64, error) {
	k := s.key(key)
	var incr *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, k)
		if s.ttl > 0 {
			pipe.Expire(ctx, k, s.ttl)
		}
		return nil
	})
	if err != nil {
		return 0, errors.Wrapf(err, "redisstore: cannot increment %q", key)
	}
	return incr.Val(), nil
}

func (s *Store) Clear(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return errors.Wrapf(err, "redisstore: cannot clear %q", key)
	}
	return nil
}

func (s *Store) Ack(ctx context.Context, key string) error {
	_, err := s.Increment(ctx, retry.AckKey(key))
	return err
}

func (s *Store) HasBeenAcked(ctx context.Context, key string) (bool, error) {
	count, _, err := s.Get(ctx, retry.AckKey(key))
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Close closes the underlying client
func (s *Store) Close() error {
	return s.client.Close()
}

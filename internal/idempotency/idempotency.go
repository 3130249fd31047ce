// Package idempotency lets clients retry order placement safely by sending an
// Idempotency-Key header. A claim lives in Redis for PendingTTL until the order
// is stored; a completed key is kept for a day.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	Header     = "Idempotency-Key"
	DefaultTTL = 24 * time.Hour
	// PendingTTL must outlive one order placement; a claim abandoned by a
	// crash expires after it.
	PendingTTL = 30 * time.Second

	pendingValue = "pending"
	donePrefix   = "done:"
)

var ErrInFlight = errors.New("a request with this idempotency key is still in progress")

// Claim is the outcome of claiming a key. When Claimed is false the key was
// already completed and OrderID names the order it produced.
type Claim struct {
	Claimed bool
	OrderID string
}

type Store struct {
	client     *redis.Client
	ttl        time.Duration
	pendingTTL time.Duration
}

func Dial(redisURL string) (*Store, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return New(client, DefaultTTL), nil
}

func New(client *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{client: client, ttl: ttl, pendingTTL: min(PendingTTL, ttl)}
}

// WithPendingTTL overrides how long an unfinished claim blocks retries.
func (s *Store) WithPendingTTL(d time.Duration) *Store {
	if d > 0 {
		s.pendingTTL = d
	}
	return s
}

func (s *Store) Close() error {
	return s.client.Close()
}

// redisKey scopes keys per user so two customers cannot collide.
func redisKey(scope, key string) string {
	return "idempotency:orders:" + scope + ":" + strings.TrimSpace(key)
}

func (s *Store) Claim(ctx context.Context, scope, key string) (Claim, error) {
	k := redisKey(scope, key)

	ok, err := s.client.SetNX(ctx, k, pendingValue, s.pendingTTL).Result()
	if err != nil {
		return Claim{}, fmt.Errorf("claim idempotency key: %w", err)
	}
	if ok {
		return Claim{Claimed: true}, nil
	}

	val, err := s.client.Get(ctx, k).Result()
	if errors.Is(err, redis.Nil) {
		// expired between SETNX and GET; try once more
		ok, err = s.client.SetNX(ctx, k, pendingValue, s.pendingTTL).Result()
		if err != nil {
			return Claim{}, fmt.Errorf("claim idempotency key: %w", err)
		}
		if ok {
			return Claim{Claimed: true}, nil
		}
		return Claim{}, ErrInFlight
	}
	if err != nil {
		return Claim{}, fmt.Errorf("read idempotency key: %w", err)
	}

	if orderID, found := strings.CutPrefix(val, donePrefix); found {
		return Claim{OrderID: orderID}, nil
	}
	return Claim{}, ErrInFlight
}

// Complete records the order produced under a claimed key.
func (s *Store) Complete(ctx context.Context, scope, key, orderID string) error {
	return s.client.Set(ctx, redisKey(scope, key), donePrefix+orderID, s.ttl).Err()
}

// Release drops a claim so the client can retry after a failure.
func (s *Store) Release(ctx context.Context, scope, key string) error {
	return s.client.Del(ctx, redisKey(scope, key)).Err()
}

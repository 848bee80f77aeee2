package viewstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	maintnotifications "github.com/redis/go-redis/v9/maintnotifications"
)

const (
	redisKeyPrefix  = "platsat:session:"
	redisMaxRetries = 8
)

// RedisStore keeps sessions in Redis so they survive restarts and can be
// shared by several viewer processes.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisStore connects to addr and pings it. Sessions expire after ttl of
// inactivity (0 disables expiry).
func NewRedisStore(ctx context.Context, addr string, ttl time.Duration) (*RedisStore, error) {
	if addr == "" {
		return nil, errors.New("viewstate: redis address is required")
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
		MaintNotificationsConfig: &maintnotifications.Config{
			Mode: maintnotifications.ModeDisabled,
		},
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("viewstate: redis ping: %w", err)
	}
	return &RedisStore{rdb: rdb, ttl: ttl}, nil
}

// Close closes the client.
func (r *RedisStore) Close() error { return r.rdb.Close() }

func key(id string) string { return redisKeyPrefix + id }

func (r *RedisStore) Get(ctx context.Context, id string) (State, error) {
	b, err := r.rdb.Get(ctx, key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return State{}, ErrNoSession
	}
	if err != nil {
		return State{}, fmt.Errorf("viewstate: redis get: %w", err)
	}
	var s State
	if err := json.Unmarshal(b, &s); err != nil {
		return State{}, fmt.Errorf("viewstate: decode session: %w", err)
	}
	return s, nil
}

// Update runs fn inside an optimistic WATCH/MULTI transaction, retrying when
// another writer changed the session concurrently.
func (r *RedisStore) Update(ctx context.Context, id string, init func() State, fn func(State) State) (State, error) {
	k := key(id)
	var out State

	txf := func(tx *redis.Tx) error {
		var s State
		b, err := tx.Get(ctx, k).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
			s = init()
		case err != nil:
			return err
		default:
			if err := json.Unmarshal(b, &s); err != nil {
				return fmt.Errorf("viewstate: decode session: %w", err)
			}
		}

		s = fn(s)
		enc, err := json.Marshal(s)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, k, enc, r.ttl)
			return nil
		})
		if err == nil {
			out = s
		}
		return err
	}

	for range redisMaxRetries {
		err := r.rdb.Watch(ctx, txf, k)
		if err == nil {
			return out, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return State{}, fmt.Errorf("viewstate: redis update: %w", err)
	}
	return State{}, fmt.Errorf("viewstate: redis update %s: too much contention", id)
}

func (r *RedisStore) Delete(ctx context.Context, id string) error {
	if err := r.rdb.Del(ctx, key(id)).Err(); err != nil {
		return fmt.Errorf("viewstate: redis del: %w", err)
	}
	return nil
}

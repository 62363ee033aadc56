package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/Veraticus/the-budget-must-balance/internal/common"
	"github.com/Veraticus/the-budget-must-balance/internal/model"
	"github.com/redis/go-redis/v9"
)

// DefaultRedisKeyPrefix is used when no prefix is configured.
const DefaultRedisKeyPrefix = "budget:ledger"

// Hash fields of a namespace key.
const (
	redisFieldDocument = "document"
	redisFieldRevision = "revision"
)

// RedisStore keeps each namespace in a hash under <prefix>:<namespace> holding
// the document and its revision. Saves run in a WATCH/MULTI transaction.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisKeyPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

// DialRedis connects to addr and verifies the connection with PING.
func DialRedis(ctx context.Context, addr, password string, db int, prefix string) (*RedisStore, error) {
	if err := validateString(addr, "addr"); err != nil {
		return nil, err
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if _, err := client.Ping(ctx).Result(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}

	slog.Debug("Connected to redis", "addr", addr, "db", db)
	return NewRedisStore(client, prefix), nil
}

// Close closes the underlying client.
func (r *RedisStore) Close() error {
	return r.client.Close()
}

func (r *RedisStore) key(namespace string) string {
	return r.prefix + ":" + namespace
}

// Load fetches and decodes the namespace's document, or returns an empty state.
func (r *RedisStore) Load(ctx context.Context, namespace string) (*model.LedgerState, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateNamespace(namespace); err != nil {
		return nil, err
	}

	fields, err := r.client.HGetAll(ctx, r.key(namespace)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger %q: %w", namespace, err)
	}
	if len(fields) == 0 {
		return model.NewLedgerState(), nil
	}

	state, err := DecodeState([]byte(fields[redisFieldDocument]))
	if err != nil {
		return nil, fmt.Errorf("ledger %q: %w", namespace, err)
	}
	revision, err := strconv.ParseInt(fields[redisFieldRevision], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: ledger %q has revision %q", common.ErrCorruptState, namespace, fields[redisFieldRevision])
	}
	state.Revision = revision
	return state, nil
}

// Save replaces the namespace's document if its revision still equals
// state.Revision, and advances state.Revision.
func (r *RedisStore) Save(ctx context.Context, namespace string, state *model.LedgerState) error {
	if err := validateSaveArgs(ctx, namespace, state); err != nil {
		return err
	}

	data, err := EncodeState(state)
	if err != nil {
		return fmt.Errorf("%w: %w", common.ErrPersistence, err)
	}

	key := r.key(namespace)
	next := state.Revision + 1
	err = r.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.HGet(ctx, key, redisFieldRevision).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != state.Revision {
			return conflictError(namespace, state.Revision, current)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, redisFieldDocument, data, redisFieldRevision, next)
			return nil
		})
		return err
	}, key)

	switch {
	case err == nil:
		state.Revision = next
		return nil
	case errors.Is(err, common.ErrConflict):
		return err
	case errors.Is(err, redis.TxFailedErr):
		return fmt.Errorf("%w: %w: ledger %q was written during the save", common.ErrPersistence, common.ErrConflict, namespace)
	default:
		return fmt.Errorf("%w: ledger %q: %w", common.ErrPersistence, namespace, err)
	}
}

// Delete removes the namespace's document.
func (r *RedisStore) Delete(ctx context.Context, namespace string) error {
	if err := validateNamespace(namespace); err != nil {
		return err
	}
	if err := r.client.Del(ctx, r.key(namespace)).Err(); err != nil {
		return fmt.Errorf("failed to delete ledger %q: %w", namespace, err)
	}
	return nil
}

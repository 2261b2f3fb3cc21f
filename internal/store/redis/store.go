// Package redis stores each resource as a JSON document in Redis.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/urldammit/internal/domain"
	"github.com/MrSnakeDoc/urldammit/internal/store"
)

// Store handles Redis operations for resources
type Store struct {
	client *redis.Client
	limits domain.Limits
}

// NewStore creates a new Redis store
func NewStore(client *redis.Client) *Store {
	return &Store{
		client: client,
		limits: domain.DefaultLimits(),
	}
}

// Load retrieves a resource from Redis by ID
func (s *Store) Load(ctx context.Context, id string) (*domain.Resource, bool, error) {
	data, err := s.client.Get(ctx, ResourceKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to get resource: %w", err)
	}

	rec, err := decode(data)
	if err != nil {
		return nil, false, err
	}
	r, err := domain.FromRecord(rec, s.limits)
	if err != nil {
		return nil, false, fmt.Errorf("failed to decode resource %s: %w", id, err)
	}
	return r, true, nil
}

// Insert stores a new resource at revision 1
func (s *Store) Insert(ctx context.Context, r *domain.Resource) error {
	key := ResourceKey(r.ID())
	data, err := encode(r, 1)
	if err != nil {
		return err
	}

	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return fmt.Errorf("failed to check resource: %w", err)
		}
		if n > 0 {
			return store.ErrAlreadyExists
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return nil
		})
		return err
	}, key)
	if err != nil {
		return txError("failed to insert resource", err)
	}

	r.SetMeta(store.MetaRev, "1")
	return nil
}

// Update replaces an existing resource if its revision still matches
func (s *Store) Update(ctx context.Context, r *domain.Resource) error {
	key := ResourceKey(r.ID())
	var next int64

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return store.ErrNotFound
			}
			return fmt.Errorf("failed to get resource: %w", err)
		}
		rec, err := decode(current)
		if err != nil {
			return err
		}
		if rec.Meta[store.MetaRev] != r.Meta(store.MetaRev) {
			return store.ErrConflict
		}

		rev, err := strconv.ParseInt(rec.Meta[store.MetaRev], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid revision for resource %s: %w", r.ID(), err)
		}
		next = rev + 1

		data, err := encode(r, next)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return nil
		})
		return err
	}, key)
	if err != nil {
		return txError("failed to update resource", err)
	}

	r.SetMeta(store.MetaRev, strconv.FormatInt(next, 10))
	return nil
}

// Delete removes a resource from Redis
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, ResourceKey(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete resource: %w", err)
	}
	return nil
}

// PurgeNotFound removes NOTFOUND resources last updated before the cutoff.
// Documents are found by scanning the resource key prefix.
func (s *Store) PurgeNotFound(ctx context.Context, before time.Time) ([]string, error) {
	var purged []string
	iter := s.client.Scan(ctx, 0, KeyPrefixResource+"*", 100).Iterator()
	for iter.Next(ctx) {
		id, err := ExtractResourceID(iter.Val())
		if err != nil {
			continue
		}
		ok, err := s.purgeOne(ctx, id, before)
		if err != nil {
			return purged, err
		}
		if ok {
			purged = append(purged, id)
		}
	}
	if err := iter.Err(); err != nil {
		return purged, fmt.Errorf("failed to scan resources: %w", err)
	}
	return purged, nil
}

// purgeOne deletes id if it is still a stale NOTFOUND record at EXEC time.
func (s *Store) purgeOne(ctx context.Context, id string, before time.Time) (bool, error) {
	key := ResourceKey(id)
	purged := false

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				// Deleted since the scan
				return nil
			}
			return fmt.Errorf("failed to get resource: %w", err)
		}
		rec, err := decode(data)
		if err != nil {
			return err
		}
		if rec.Status != domain.StatusNotFound.Code() || !rec.Updated.Before(before) {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			return nil
		})
		if err == nil {
			purged = true
		}
		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		// Touched concurrently, so no longer stale.
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to purge resource %s: %w", id, err)
	}
	return purged, nil
}

// Ping checks the Redis connection
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close is a no-op, the client is owned by the caller
func (s *Store) Close() error {
	return nil
}

func encode(r *domain.Resource, rev int64) ([]byte, error) {
	rec := r.Record()
	rec.Meta = map[string]string{store.MetaRev: strconv.FormatInt(rev, 10)}
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal resource: %w", err)
	}
	return data, nil
}

func decode(data []byte) (domain.Record, error) {
	var rec domain.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return domain.Record{}, fmt.Errorf("failed to unmarshal resource: %w", err)
	}
	return rec, nil
}

// txError maps optimistic lock failures to store.ErrConflict.
func txError(msg string, err error) error {
	switch {
	case errors.Is(err, redis.TxFailedErr):
		return store.ErrConflict
	case errors.Is(err, store.ErrAlreadyExists),
		errors.Is(err, store.ErrNotFound),
		errors.Is(err, store.ErrConflict):
		return err
	default:
		return fmt.Errorf("%s: %w", msg, err)
	}
}

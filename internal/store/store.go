// Package store defines the persistence contract shared by every backend.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/MrSnakeDoc/urldammit/internal/domain"
)

// MetaRev is the meta key holding a backend's optimistic-concurrency token.
const MetaRev = "rev"

var (
	ErrNotFound      = errors.New("resource not found")
	ErrAlreadyExists = errors.New("resource already exists")
	ErrConflict      = errors.New("resource was modified concurrently")
)

// Store persists resources keyed by id.
//
// Load reports a missing id as (nil, false, nil). Insert fails with
// ErrAlreadyExists when the id is taken and Update fails with ErrNotFound
// when it is not. Update compares meta["rev"] against the stored token and
// fails with ErrConflict on mismatch. Both write the new token back into the
// resource's meta. Delete of a missing id is not an error.
type Store interface {
	Load(ctx context.Context, id string) (*domain.Resource, bool, error)
	Insert(ctx context.Context, r *domain.Resource) error
	Update(ctx context.Context, r *domain.Resource) error
	Delete(ctx context.Context, id string) error
	Close() error
}

// Purger is implemented by stores able to drop stale NOTFOUND records.
type Purger interface {
	// PurgeNotFound removes NOTFOUND records last updated before the cutoff
	// and returns their ids.
	PurgeNotFound(ctx context.Context, before time.Time) ([]string, error)
}

// Pinger is implemented by stores backed by a remote service.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Package storetest holds the behavior every store backend must share.
package storetest

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/MrSnakeDoc/urldammit/internal/domain"
	"github.com/MrSnakeDoc/urldammit/internal/store"
)

// Factory returns an empty store. Cleanup is the factory's job.
type Factory func(t *testing.T) store.Store

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// NewResource builds a persisted-shape resource for uri in the given status,
// going through the FOUND state first as any real record would.
func NewResource(t *testing.T, uri string, code int, at time.Time) *domain.Resource {
	t.Helper()
	r := domain.NewResource(domain.DefaultLimits())
	mustSet(t, r.SetStatus, 200)
	if _, err := r.SetURI(uri); err != nil {
		t.Fatalf("SetURI() error = %v", err)
	}
	if _, err := r.SetTags([]string{"alpha", "beta"}); err != nil {
		t.Fatalf("SetTags() error = %v", err)
	}
	if _, err := r.SetPairs(map[string]string{"lang": "en", "kind": "page"}); err != nil {
		t.Fatalf("SetPairs() error = %v", err)
	}
	if code != 200 {
		mustSet(t, r.SetStatus, code)
	}
	if code == 301 {
		if _, err := r.SetLocation(uri + "/moved"); err != nil {
			t.Fatalf("SetLocation() error = %v", err)
		}
	}
	if err := r.SetCreated(at); err != nil {
		t.Fatalf("SetCreated() error = %v", err)
	}
	if err := r.SetUpdated(at); err != nil {
		t.Fatalf("SetUpdated() error = %v", err)
	}
	return r
}

func mustSet(t *testing.T, set func(int) (bool, error), code int) {
	t.Helper()
	if _, err := set(code); err != nil {
		t.Fatalf("SetStatus(%d) error = %v", code, err)
	}
}

// visible strips the store bookkeeping from a record.
func visible(r *domain.Resource) domain.Record {
	rec := r.Record()
	rec.Meta = nil
	return rec
}

// Run exercises the store contract against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	ctx := context.Background()

	t.Run("load missing", func(t *testing.T) {
		s := newStore(t)
		r, ok, err := s.Load(ctx, domain.Hash("http://missing.example"))
		if err != nil || ok || r != nil {
			t.Errorf("Load() = %v, %v, %v, want nil, false, nil", r, ok, err)
		}
	})

	t.Run("insert then load", func(t *testing.T) {
		s := newStore(t)
		r := NewResource(t, "http://example.com/a", 200, epoch)
		if err := s.Insert(ctx, r); err != nil {
			t.Fatalf("Insert() error = %v", err)
		}
		if r.Meta(store.MetaRev) == "" {
			t.Error("Insert() did not assign a revision")
		}

		got, ok, err := s.Load(ctx, r.ID())
		if err != nil || !ok {
			t.Fatalf("Load() = %v, %v", ok, err)
		}
		if diff := cmp.Diff(visible(r), visible(got)); diff != "" {
			t.Errorf("Load() mismatch (-want +got):\n%s", diff)
		}
		if got.Meta(store.MetaRev) != r.Meta(store.MetaRev) {
			t.Errorf("Load() rev = %q, want %q", got.Meta(store.MetaRev), r.Meta(store.MetaRev))
		}
	})

	t.Run("insert duplicate", func(t *testing.T) {
		s := newStore(t)
		r := NewResource(t, "http://example.com/dup", 200, epoch)
		if err := s.Insert(ctx, r); err != nil {
			t.Fatalf("Insert() error = %v", err)
		}
		again := NewResource(t, "http://example.com/dup", 200, epoch)
		if err := s.Insert(ctx, again); !errors.Is(err, store.ErrAlreadyExists) {
			t.Errorf("Insert() twice error = %v, want ErrAlreadyExists", err)
		}
	})

	t.Run("update", func(t *testing.T) {
		s := newStore(t)
		r := NewResource(t, "http://example.com/u", 200, epoch)
		if err := s.Insert(ctx, r); err != nil {
			t.Fatalf("Insert() error = %v", err)
		}
		loaded, _, err := s.Load(ctx, r.ID())
		if err != nil {
			t.Fatal(err)
		}
		before := loaded.Meta(store.MetaRev)

		if _, err := loaded.SetTags([]string{"gamma"}); err != nil {
			t.Fatal(err)
		}
		if _, err := loaded.SetPairs(map[string]string{"lang": "fr"}); err != nil {
			t.Fatal(err)
		}
		if err := loaded.SetUpdated(epoch.Add(time.Hour)); err != nil {
			t.Fatal(err)
		}
		if err := s.Update(ctx, loaded); err != nil {
			t.Fatalf("Update() error = %v", err)
		}
		if loaded.Meta(store.MetaRev) == before {
			t.Error("Update() did not advance the revision")
		}

		got, _, err := s.Load(ctx, r.ID())
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(visible(loaded), visible(got)); diff != "" {
			t.Errorf("Load() after Update() mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("update status and location", func(t *testing.T) {
		s := newStore(t)
		r := NewResource(t, "http://example.com/r", 200, epoch)
		if err := s.Insert(ctx, r); err != nil {
			t.Fatal(err)
		}
		mustSet(t, r.SetStatus, 301)
		if _, err := r.SetLocation("http://example.com/target"); err != nil {
			t.Fatal(err)
		}
		if err := s.Update(ctx, r); err != nil {
			t.Fatalf("Update() error = %v", err)
		}
		got, _, err := s.Load(ctx, r.ID())
		if err != nil {
			t.Fatal(err)
		}
		if !got.IsRedirected() || got.Location() != "http://example.com/target" {
			t.Errorf("Load() = %v %q, want redirected to target", got.Status(), got.Location())
		}
		if diff := cmp.Diff([]string{"alpha", "beta"}, got.Tags()); diff != "" {
			t.Errorf("tags not retained (-want +got):\n%s", diff)
		}
	})

	t.Run("update missing", func(t *testing.T) {
		s := newStore(t)
		r := NewResource(t, "http://example.com/none", 200, epoch)
		if err := s.Update(ctx, r); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("Update() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("update conflict", func(t *testing.T) {
		s := newStore(t)
		r := NewResource(t, "http://example.com/c", 200, epoch)
		if err := s.Insert(ctx, r); err != nil {
			t.Fatal(err)
		}
		first, _, _ := s.Load(ctx, r.ID())
		second, _, _ := s.Load(ctx, r.ID())

		if _, err := first.SetTags([]string{"one"}); err != nil {
			t.Fatal(err)
		}
		if err := s.Update(ctx, first); err != nil {
			t.Fatalf("first Update() error = %v", err)
		}
		if _, err := second.SetTags([]string{"two"}); err != nil {
			t.Fatal(err)
		}
		if err := s.Update(ctx, second); !errors.Is(err, store.ErrConflict) {
			t.Errorf("stale Update() error = %v, want ErrConflict", err)
		}

		got, _, _ := s.Load(ctx, r.ID())
		if diff := cmp.Diff([]string{"one"}, got.Tags()); diff != "" {
			t.Errorf("stale write leaked (-want +got):\n%s", diff)
		}
	})

	t.Run("delete", func(t *testing.T) {
		s := newStore(t)
		r := NewResource(t, "http://example.com/d", 200, epoch)
		if err := s.Insert(ctx, r); err != nil {
			t.Fatal(err)
		}
		if err := s.Delete(ctx, r.ID()); err != nil {
			t.Fatalf("Delete() error = %v", err)
		}
		if _, ok, err := s.Load(ctx, r.ID()); ok || err != nil {
			t.Errorf("Load() after Delete() = %v, %v, want false, nil", ok, err)
		}
		if err := s.Delete(ctx, r.ID()); err != nil {
			t.Errorf("Delete() of missing id error = %v, want nil", err)
		}
		if err := s.Insert(ctx, NewResource(t, "http://example.com/d", 200, epoch)); err != nil {
			t.Errorf("Insert() after Delete() error = %v", err)
		}
	})

	t.Run("purge not found", func(t *testing.T) {
		s := newStore(t)
		p, ok := s.(store.Purger)
		if !ok {
			t.Skip("store does not purge")
		}

		old := NewResource(t, "http://example.com/old", 404, epoch)
		fresh := NewResource(t, "http://example.com/fresh", 404, epoch.Add(48*time.Hour))
		alive := NewResource(t, "http://example.com/alive", 200, epoch)
		moved := NewResource(t, "http://example.com/moved", 301, epoch)
		for _, r := range []*domain.Resource{old, fresh, alive, moved} {
			if err := s.Insert(ctx, r); err != nil {
				t.Fatalf("Insert(%s) error = %v", r.URI(), err)
			}
		}

		purged, err := p.PurgeNotFound(ctx, epoch.Add(24*time.Hour))
		if err != nil {
			t.Fatalf("PurgeNotFound() error = %v", err)
		}
		if diff := cmp.Diff([]string{old.ID()}, slices.Sorted(slices.Values(purged))); diff != "" {
			t.Errorf("PurgeNotFound() mismatch (-want +got):\n%s", diff)
		}
		for _, r := range []*domain.Resource{fresh, alive, moved} {
			if _, ok, _ := s.Load(ctx, r.ID()); !ok {
				t.Errorf("PurgeNotFound() removed %s", r.URI())
			}
		}
	})
}

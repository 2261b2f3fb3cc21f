package scheduler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/MrSnakeDoc/urldammit/internal/cache"
	"github.com/MrSnakeDoc/urldammit/internal/domain"
	"github.com/MrSnakeDoc/urldammit/internal/logger"
	"github.com/MrSnakeDoc/urldammit/internal/manager"
	"github.com/MrSnakeDoc/urldammit/internal/metrics"
	"github.com/MrSnakeDoc/urldammit/internal/store/memory"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// testClock is a settable clock.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func newManager(clock *testClock) *manager.Manager {
	return manager.New(memory.New(), cache.Null[*domain.Resource]{}, cache.Null[cache.Absent]{},
		manager.WithClock(clock.Now))
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func mustLoad(t *testing.T, m *manager.Manager, uri string) *domain.Resource {
	t.Helper()
	r, ok, err := m.Load(context.Background(), domain.Hash(uri))
	if err != nil || !ok {
		t.Fatalf("Load(%s) = %v, %v", uri, ok, err)
	}
	return r
}

func TestSeedReloaderReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	writeFile(t, path, `---
resources:
  - uri: http://example.com/page.html?ref=home
    tags: [news, local]
    pairs: {lang: en}
  - uri: http://example.com/old.html
    status: 301
    location: http://example.com/new.html
  - uri: http://example.com/dead.html
    status: 404
  - uri: http://example.com/bad.html
    tags: ["not a tag"]
  - uri: http://example.com/nowhere.html
    status: 301
  - uri: http://example.com/tagged.html
    status: 301
    location: http://example.com/new.html
    tags: [news]
`)

	m := newManager(&testClock{now: t0})
	sr := NewSeedReloader(path, m, logger.NewNop(), time.Hour, nil)
	if err := sr.Reload(context.Background()); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}

	page := mustLoad(t, m, "http://example.com/page.html")
	if diff := cmp.Diff([]string{"local", "news"}, page.Tags()); diff != "" {
		t.Errorf("tags mismatch (-want +got):\n%s", diff)
	}

	old := mustLoad(t, m, "http://example.com/old.html")
	if !old.IsRedirected() || old.Location() != "http://example.com/new.html" {
		t.Errorf("old = status %v location %q, want redirected", old.Status(), old.Location())
	}

	skipped := []struct {
		uri, why string
	}{
		{"http://example.com/dead.html", "404 for a uri never seen as 200"},
		{"http://example.com/bad.html", "invalid tag"},
		{"http://example.com/nowhere.html", "redirect without location"},
		{"http://example.com/tagged.html", "redirect refused after the 200 placeholder"},
	}
	for _, tt := range skipped {
		if _, ok, _ := m.Load(context.Background(), domain.Hash(tt.uri)); ok {
			t.Errorf("%s was persisted, want skipped (%s)", tt.uri, tt.why)
		}
	}

	// A second pass changes nothing and does not fail on the redirect.
	if err := sr.Reload(context.Background()); err != nil {
		t.Fatalf("second Reload() error = %v", err)
	}
}

func TestSeedReloaderMissingFile(t *testing.T) {
	m := newManager(&testClock{now: t0})
	sr := NewSeedReloader("/nonexistent/seed.yaml", m, logger.NewNop(), time.Hour, nil)

	if err := sr.Reload(context.Background()); err == nil {
		t.Error("Reload() error = nil, want read error")
	}
	if err := sr.Start(context.Background()); err == nil {
		t.Error("Start() error = nil, want initial seed error")
	}
}

func TestSeedReloaderManualTrigger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	writeFile(t, path, "resources:\n  - uri: http://example.com/a\n")

	m := newManager(&testClock{now: t0})
	trigger := make(chan struct{}, 1)
	sr := NewSeedReloader(path, m, logger.NewNop(), time.Hour, trigger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := sr.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer sr.Stop()

	writeFile(t, path, "resources:\n  - uri: http://example.com/a\n  - uri: http://example.com/b\n")
	trigger <- struct{}{}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, ok, _ := m.Load(ctx, domain.Hash("http://example.com/b")); ok {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("manual trigger did not register the new entry")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestPurgerPurge(t *testing.T) {
	clock := &testClock{now: t0}
	m := newManager(clock)
	ctx := context.Background()

	register := func(uri string, status int) {
		t.Helper()
		if _, err := m.Register(ctx, manager.RegisterRequest{URI: uri, Status: status}); err != nil {
			t.Fatalf("Register(%s, %d) error = %v", uri, status, err)
		}
	}

	register("http://example.com/stale", 200)
	register("http://example.com/stale", 404)
	register("http://example.com/alive", 200)

	clock.Set(t0.Add(20 * 24 * time.Hour))
	register("http://example.com/recent", 200)
	register("http://example.com/recent", 404)

	p := NewPurger(m, logger.NewNop(), time.Hour, 30*24*time.Hour, nil)
	p.now = func() time.Time { return t0.Add(31 * 24 * time.Hour) }

	n, err := p.Purge(ctx)
	if err != nil {
		t.Fatalf("Purge() error = %v", err)
	}
	if n != 1 {
		t.Errorf("Purge() = %d, want 1", n)
	}

	if _, ok, _ := m.Load(ctx, domain.Hash("http://example.com/stale")); ok {
		t.Error("stale not found resource survived the purge")
	}
	mustLoad(t, m, "http://example.com/alive")
	mustLoad(t, m, "http://example.com/recent")
}

// fakePurgeable records the cutoffs it is asked for.
type fakePurgeable struct {
	calls chan time.Time
	err   error
}

func (f *fakePurgeable) Purge(_ context.Context, before time.Time) (int, error) {
	f.calls <- before
	return 0, f.err
}

func TestPurgerStartAndTrigger(t *testing.T) {
	fake := &fakePurgeable{calls: make(chan time.Time, 4), err: errors.New("store down")}
	trigger := make(chan struct{})

	p := NewPurger(fake, logger.NewNop(), time.Hour, 0, trigger)
	if p.after != DefaultPurgeAfter {
		t.Errorf("after = %v, want %v", p.after, DefaultPurgeAfter)
	}
	now := t0.Add(100 * 24 * time.Hour)
	p.now = func() time.Time { return now }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	// A failing initial purge is not fatal.
	if err := p.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer p.Stop()

	if got, want := <-fake.calls, now.Add(-DefaultPurgeAfter); !got.Equal(want) {
		t.Errorf("initial cutoff = %v, want %v", got, want)
	}

	trigger <- struct{}{}
	select {
	case <-fake.calls:
	case <-time.After(2 * time.Second):
		t.Fatal("manual trigger did not run a purge")
	}
}

func TestJobsRecordMetrics(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	writeFile(t, path, "resources:\n  - uri: http://example.com/a\n  - uri: http://example.com/b\n    tags: [\"no spaces allowed\"]\n")

	m := metrics.New()
	mgr := newManager(&testClock{now: t0})
	ctx := context.Background()

	sr := NewSeedReloader(path, mgr, logger.NewNop(), time.Hour, nil).WithMetrics(m)
	if err := sr.Reload(ctx); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}

	p := NewPurger(&fakePurgeable{calls: make(chan time.Time, 1), err: errors.New("store down")}, logger.NewNop(), time.Hour, 0, nil).WithMetrics(m)
	if _, err := p.Purge(ctx); err == nil {
		t.Fatal("Purge() error = nil, want store error")
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	for _, want := range []string{
		`urldammit_jobs_seed_entries_total{result="registered"} 1`,
		`urldammit_jobs_seed_entries_total{result="failed"} 1`,
		`urldammit_jobs_runs_total{job="seed",result="ok"} 1`,
		`urldammit_jobs_runs_total{job="purge",result="error"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

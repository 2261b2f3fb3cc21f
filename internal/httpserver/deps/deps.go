package deps

import (
	"context"
	"time"

	"github.com/MrSnakeDoc/urldammit/internal/domain"
	"github.com/MrSnakeDoc/urldammit/internal/logger"
	"github.com/MrSnakeDoc/urldammit/internal/manager"
	"github.com/MrSnakeDoc/urldammit/internal/metrics"
)

// Resources is the part of the manager the handlers use.
type Resources interface {
	Load(ctx context.Context, id string) (*domain.Resource, bool, error)
	Register(ctx context.Context, req manager.RegisterRequest) (*domain.Resource, error)
	Delete(ctx context.Context, id string) error
}

// Pinger is a backend /readyz can check.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Deps struct {
	Logger          logger.Logger
	StartTime       time.Time
	Version         string
	Commit          string
	BuildDate       string
	GoVersion       string
	TimeNow         func() time.Time  // for testing, defaults to time.Now
	BaseURL         string            // Public base for Location headers, derived from the request when empty
	AllowedHosts    []string          // Host headers allowed to access the server
	TrustedCIDRS    []string          // Clients allowed to redirect, 404, delete and purge
	TrustProxy      bool              // true if running behind a trusted reverse proxy (e.g., cloudflared)
	RateLimitBurst  int               // Burst size for mutating routes
	RateLimitPerMin int               // Refill rate per client IP for mutating routes
	Resources       Resources         // Resource manager
	Pingers         map[string]Pinger // Backends checked by /readyz, keyed by component name
	PurgeTrigger    chan struct{}     // Channel to trigger a manual purge (nil if disabled)
	SeedTrigger     chan struct{}     // Channel to trigger a manual seed reload (nil if no seed file)
	ReadyTimeout    time.Duration     // Per-backend ping timeout on /readyz, defaults to 2s
	Metrics         *metrics.Metrics  // Prometheus collectors (nil disables /metrics)
}

// Now returns d.TimeNow() or time.Now().
func (d Deps) Now() time.Time {
	if d.TimeNow != nil {
		return d.TimeNow()
	}
	return time.Now()
}

package scheduler

import (
	"context"
	"time"

	"github.com/MrSnakeDoc/urldammit/internal/logger"
	"github.com/MrSnakeDoc/urldammit/internal/metrics"
)

const (
	// DefaultPurgeAfter is how long a NOTFOUND resource is kept
	DefaultPurgeAfter = 30 * 24 * time.Hour // 30 days
)

// Purgeable is the part of the manager the purger uses.
type Purgeable interface {
	Purge(ctx context.Context, before time.Time) (int, error)
}

// Purger removes resources that have been NOTFOUND for too long
type Purger struct {
	resources     Purgeable
	logger        logger.Logger
	interval      time.Duration
	after         time.Duration
	now           func() time.Time
	metrics       *metrics.Metrics
	stopCh        chan struct{}
	manualTrigger chan struct{}
}

// NewPurger creates a new purger
func NewPurger(
	resources Purgeable,
	log logger.Logger,
	interval time.Duration,
	after time.Duration,
	manualTrigger chan struct{},
) *Purger {
	if after == 0 {
		after = DefaultPurgeAfter
	}

	return &Purger{
		resources:     resources,
		logger:        log,
		interval:      interval,
		after:         after,
		now:           time.Now,
		stopCh:        make(chan struct{}),
		manualTrigger: manualTrigger,
	}
}

// WithMetrics records each run in m.
func (p *Purger) WithMetrics(m *metrics.Metrics) *Purger {
	p.metrics = m
	return p
}

// Start begins the periodic purge process
func (p *Purger) Start(ctx context.Context) error {
	// Run immediately on start
	if _, err := p.Purge(ctx); err != nil {
		p.logger.Warn("initial purge failed", logger.Error(err))
	}

	ticker := time.NewTicker(p.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if _, err := p.Purge(ctx); err != nil {
					p.logger.Error("purge failed", logger.Error(err))
				}
			case <-p.manualTrigger:
				p.logger.Info("manual purge triggered")
				if _, err := p.Purge(ctx); err != nil {
					p.logger.Error("purge failed", logger.Error(err))
				}
			case <-p.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// Stop stops the purger
func (p *Purger) Stop() {
	close(p.stopCh)
}

// Purge removes NOTFOUND resources not updated within the configured age.
func (p *Purger) Purge(ctx context.Context) (int, error) {
	before := p.now().Add(-p.after)
	p.logger.Info("purging stale not found resources", logger.Time("before", before))

	n, err := p.resources.Purge(ctx, before)
	p.metrics.JobRun(metrics.JobPurge, err)
	if err != nil {
		return n, err
	}
	p.metrics.AddPurged(n)

	if n > 0 {
		p.logger.Info("purge completed", logger.Int("deleted", n))
	} else {
		p.logger.Debug("nothing to purge")
	}
	return n, nil
}

package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/MrSnakeDoc/urldammit/internal/domain"
	"github.com/MrSnakeDoc/urldammit/internal/logger"
	"github.com/MrSnakeDoc/urldammit/internal/manager"
	"github.com/MrSnakeDoc/urldammit/internal/metrics"
	"github.com/MrSnakeDoc/urldammit/internal/sources/seed"
)

// Registrar is the part of the manager the seed reloader uses.
type Registrar interface {
	Load(ctx context.Context, id string) (*domain.Resource, bool, error)
	Register(ctx context.Context, req manager.RegisterRequest) (*domain.Resource, error)
	Delete(ctx context.Context, id string) error
}

// SeedReloader registers the entries of a seed file periodically
type SeedReloader struct {
	loader        *seed.Loader
	resources     Registrar
	logger        logger.Logger
	interval      time.Duration
	metrics       *metrics.Metrics
	stopCh        chan struct{}
	manualTrigger chan struct{}
}

// NewSeedReloader creates a new seed reloader
func NewSeedReloader(
	seedFile string,
	resources Registrar,
	log logger.Logger,
	interval time.Duration,
	manualTrigger chan struct{},
) *SeedReloader {
	return &SeedReloader{
		loader:        seed.NewLoader(seedFile),
		resources:     resources,
		logger:        log,
		interval:      interval,
		stopCh:        make(chan struct{}),
		manualTrigger: manualTrigger,
	}
}

// WithMetrics records each run in m.
func (sr *SeedReloader) WithMetrics(m *metrics.Metrics) *SeedReloader {
	sr.metrics = m
	return sr
}

// Start loads the seed file once, then again on every tick or trigger.
func (sr *SeedReloader) Start(ctx context.Context) error {
	if err := sr.Reload(ctx); err != nil {
		return fmt.Errorf("initial seed failed: %w", err)
	}

	ticker := time.NewTicker(sr.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := sr.Reload(ctx); err != nil {
					sr.logger.Error("failed to reload seed file", logger.Error(err))
				}
			case <-sr.manualTrigger:
				sr.logger.Info("manual seed reload triggered")
				if err := sr.Reload(ctx); err != nil {
					sr.logger.Error("failed to reload seed file", logger.Error(err))
				}
			case <-sr.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// Stop stops the reloader
func (sr *SeedReloader) Stop() {
	close(sr.stopCh)
}

// Reload registers every seed entry. Entries the manager refuses are logged
// and skipped; only an unreadable file is an error.
func (sr *SeedReloader) Reload(ctx context.Context) error {
	sr.logger.Info("reloading seed file")

	entries, err := sr.loader.Load()
	if err != nil {
		sr.metrics.JobRun(metrics.JobSeed, err)
		return fmt.Errorf("failed to load seed: %w", err)
	}

	registered, failed := 0, 0
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := sr.register(ctx, e); err != nil {
			failed++
			sr.logger.Warn("seed entry skipped",
				logger.String("uri", e.URI),
				logger.Int("status", e.Status),
				logger.Error(err))
			continue
		}
		registered++
	}

	sr.metrics.JobRun(metrics.JobSeed, nil)
	sr.metrics.AddSeedEntries(registered, failed)
	sr.logger.Info("seed file applied",
		logger.Int("registered", registered),
		logger.Int("failed", failed))
	return nil
}

// register applies one entry. A redirect for an unknown uri is registered as
// found first, since new resources start at 200; if the redirect itself is
// then refused, that placeholder is removed again.
func (sr *SeedReloader) register(ctx context.Context, e seed.Entry) error {
	req := e.Request()

	if next, err := domain.StatusFromCode(req.Status); err != nil || next != domain.StatusRedirected {
		_, err := sr.resources.Register(ctx, req)
		return err
	}
	if req.Location == nil || *req.Location == "" {
		return domain.NewError(domain.CodeValidation, "location", "a location is required for status %d", req.Status)
	}

	id := domain.Hash(req.URI)
	_, ok, err := sr.resources.Load(ctx, id)
	if err != nil {
		return err
	}
	if ok {
		_, err := sr.resources.Register(ctx, req)
		return err
	}

	if _, err := sr.resources.Register(ctx, manager.RegisterRequest{URI: req.URI, Status: domain.StatusFound.Code()}); err != nil {
		return err
	}
	if _, err := sr.resources.Register(ctx, req); err != nil {
		if derr := sr.resources.Delete(ctx, id); derr != nil {
			sr.logger.Warn("failed to remove seed placeholder", logger.String("uri", req.URI), logger.Error(derr))
		}
		return err
	}
	return nil
}

// Package manager coordinates the resource caches and the store. It is the
// only entry point request handlers use to read or change resources.
package manager

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/MrSnakeDoc/urldammit/internal/cache"
	"github.com/MrSnakeDoc/urldammit/internal/domain"
	"github.com/MrSnakeDoc/urldammit/internal/logger"
	"github.com/MrSnakeDoc/urldammit/internal/store"
)

const tracerName = "github.com/MrSnakeDoc/urldammit/internal/manager"

// RegisterRequest describes one registration. Nil Tags, Pairs or Location
// leave the stored value untouched.
type RegisterRequest struct {
	URI      string
	Status   int
	Tags     []string
	Pairs    map[string]string
	Location *string

	// Guarded restricts the request to plain 200 registrations.
	Guarded bool
}

// Manager loads, registers and deletes resources through a known cache,
// an unknown cache and a store.
type Manager struct {
	store   store.Store
	known   cache.Cache[*domain.Resource]
	unknown cache.Cache[cache.Absent]

	limits domain.Limits
	now    func() time.Time
	log    logger.Logger
	tracer trace.Tracer

	locks *keyedMutex
	loads singleflight.Group
}

// New creates a Manager.
func New(s store.Store, known cache.Cache[*domain.Resource], unknown cache.Cache[cache.Absent], opts ...Option) *Manager {
	m := &Manager{
		store:   s,
		known:   known,
		unknown: unknown,
		limits:  domain.DefaultLimits(),
		now:     time.Now,
		log:     logger.NewNop(),
		tracer:  otel.Tracer(tracerName),
		locks:   newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Load returns the resource for id. A missing resource is (nil, false, nil).
func (m *Manager) Load(ctx context.Context, id string) (*domain.Resource, bool, error) {
	ctx, span := m.tracer.Start(ctx, "manager.Load", trace.WithAttributes(attribute.String("resource.id", id)))
	defer span.End()

	if r, ok, hit := m.cached(ctx, id); hit {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return r, ok, nil
	}

	v, err, shared := m.loads.Do(id, func() (any, error) {
		unlock := m.locks.Lock(id)
		defer unlock()
		// The flight is shared, so one caller giving up must not fail the rest.
		r, _, err := m.fill(context.WithoutCancel(ctx), id)
		return r, err
	})
	span.SetAttributes(attribute.Bool("cache.hit", false), attribute.Bool("load.shared", shared))
	if err != nil {
		recordError(span, err)
		return nil, false, err
	}
	r, _ := v.(*domain.Resource)
	if r == nil {
		return nil, false, nil
	}
	return r.Clone(), true, nil
}

// cached consults the unknown then the known tier. hit is false when the
// store has to be asked.
func (m *Manager) cached(ctx context.Context, id string) (r *domain.Resource, ok, hit bool) {
	if m.unknown.Contains(ctx, id) {
		m.log.Debug("unknown cache hit", logger.String("id", id))
		return nil, false, true
	}
	if r, ok := m.known.Get(ctx, id); ok {
		m.log.Debug("known cache hit", logger.String("id", id))
		return r.Clone(), true, true
	}
	return nil, false, false
}

// fill loads id from the store and records the answer in the matching tier.
// Callers hold the id lock.
func (m *Manager) fill(ctx context.Context, id string) (*domain.Resource, bool, error) {
	if r, ok, hit := m.cached(ctx, id); hit {
		return r, ok, nil
	}

	m.log.Debug("cache miss", logger.String("id", id))
	r, ok, err := m.store.Load(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		m.unknown.Set(ctx, id, cache.Absent{})
		return nil, false, nil
	}
	r.SetLimits(m.limits)
	m.known.Set(ctx, id, r)
	return r.Clone(), true, nil
}

// Register creates or updates the resource for req.URI and returns it.
//
// Redirected resources are returned unchanged. A missing resource can only
// be created with a 2xx status. The store is written only when a field
// actually changed, and the caches are updated only after the write
// succeeded.
func (m *Manager) Register(ctx context.Context, req RegisterRequest) (*domain.Resource, error) {
	if req.URI == "" {
		return nil, domain.NewError(domain.CodeValidation, "uri", "uri is required")
	}
	id := domain.Hash(req.URI)

	ctx, span := m.tracer.Start(ctx, "manager.Register", trace.WithAttributes(
		attribute.String("resource.id", id),
		attribute.Int("resource.status", req.Status),
		attribute.Bool("request.guarded", req.Guarded),
	))
	defer span.End()

	unlock := m.locks.Lock(id)
	defer unlock()

	r, err := m.register(ctx, id, req)
	if err != nil {
		recordError(span, err)
		return nil, err
	}
	return r, nil
}

func (m *Manager) register(ctx context.Context, id string, req RegisterRequest) (*domain.Resource, error) {
	current, found, err := m.fill(ctx, id)
	if err != nil {
		return nil, err
	}

	if found && current.IsRedirected() {
		m.log.Debug("resource is redirected, ignoring registration", logger.String("id", id))
		return current, nil
	}

	next, err := m.checkRequest(req)
	if err != nil {
		return nil, err
	}
	if !found && next != domain.StatusFound {
		return nil, domain.NewError(domain.CodeNoExistingRecord, "status",
			"no existing record for %s: new resources must begin at status 200", req.URI)
	}

	var r *domain.Resource
	if found {
		r = current
	} else {
		r = domain.NewResource(m.limits)
	}
	r.SetLimits(m.limits)

	changed, err := apply(r, req)
	if err != nil {
		return nil, err
	}

	now := m.now().UTC()
	switch {
	case !found:
		if err := r.SetCreated(now); err != nil {
			return nil, err
		}
		if err := r.SetUpdated(now); err != nil {
			return nil, err
		}
		if err := m.store.Insert(ctx, r); err != nil {
			if errors.Is(err, store.ErrAlreadyExists) {
				m.unknown.Delete(ctx, id)
			}
			return nil, fmt.Errorf("failed to insert resource %s: %w", id, err)
		}
		m.log.Info("resource created",
			logger.String("id", id),
			logger.String("uri", r.URI()),
			logger.Int("status", r.Status().Code()))

	case changed:
		if err := r.SetUpdated(now); err != nil {
			return nil, err
		}
		if err := m.store.Update(ctx, r); err != nil {
			if errors.Is(err, store.ErrConflict) || errors.Is(err, store.ErrNotFound) {
				// Written elsewhere: drop the stale copy so a retry reloads it.
				m.known.Delete(ctx, id)
			}
			return nil, fmt.Errorf("failed to update resource %s: %w", id, err)
		}
		m.log.Info("resource updated",
			logger.String("id", id),
			logger.Int("status", r.Status().Code()))

	default:
		m.log.Debug("registration changed nothing", logger.String("id", id))
	}

	m.known.Set(ctx, id, r)
	m.unknown.Delete(ctx, id)
	return r.Clone(), nil
}

// checkRequest validates the parts of req that do not depend on the stored
// resource and returns the requested status class.
func (m *Manager) checkRequest(req RegisterRequest) (domain.Status, error) {
	next, err := domain.StatusFromCode(req.Status)
	if err != nil {
		return domain.StatusUnset, err
	}
	if req.Guarded {
		if next != domain.StatusFound {
			return domain.StatusUnset, domain.NewError(domain.CodeUnsupportedStatus, "status",
				"status %d not supported for untrusted clients", req.Status)
		}
		if req.Location != nil {
			return domain.StatusUnset, domain.NewError(domain.CodeInvalidFieldState, "location",
				"location cannot be set by untrusted clients")
		}
	}
	if next == domain.StatusRedirected && (req.Location == nil || *req.Location == "") {
		return domain.StatusUnset, domain.NewError(domain.CodeValidation, "location",
			"a location is required for status %d", req.Status)
	}
	return next, nil
}

// apply sets status, uri, location, tags and pairs in that order and
// reports whether any of them changed.
func apply(r *domain.Resource, req RegisterRequest) (bool, error) {
	changed := false
	track := func(c bool, err error) error {
		changed = changed || c
		return err
	}

	if err := track(r.SetStatus(req.Status)); err != nil {
		return false, err
	}
	if err := track(r.SetURI(req.URI)); err != nil {
		return false, err
	}
	if req.Location != nil {
		if err := track(r.SetLocation(*req.Location)); err != nil {
			return false, err
		}
	}
	if req.Tags != nil {
		if err := track(r.SetTags(req.Tags)); err != nil {
			return false, err
		}
	}
	if req.Pairs != nil {
		if err := track(r.SetPairs(req.Pairs)); err != nil {
			return false, err
		}
	}
	return changed, nil
}

// Delete removes id from the store and the known cache. Deleting a missing
// id is not an error.
func (m *Manager) Delete(ctx context.Context, id string) error {
	ctx, span := m.tracer.Start(ctx, "manager.Delete", trace.WithAttributes(attribute.String("resource.id", id)))
	defer span.End()

	unlock := m.locks.Lock(id)
	defer unlock()

	if err := m.store.Delete(ctx, id); err != nil {
		recordError(span, err)
		return fmt.Errorf("failed to delete resource %s: %w", id, err)
	}
	m.known.Delete(ctx, id)
	m.log.Info("resource deleted", logger.String("id", id))
	return nil
}

// Purge drops NOTFOUND resources last updated before the cutoff when the
// store supports it, and returns how many were removed.
func (m *Manager) Purge(ctx context.Context, before time.Time) (int, error) {
	ctx, span := m.tracer.Start(ctx, "manager.Purge", trace.WithAttributes(attribute.String("purge.before", before.UTC().Format(time.RFC3339))))
	defer span.End()

	p, ok := m.store.(store.Purger)
	if !ok {
		return 0, nil
	}
	ids, err := p.PurgeNotFound(ctx, before)
	for _, id := range ids {
		m.known.Delete(ctx, id)
	}
	if err != nil {
		recordError(span, err)
		return len(ids), fmt.Errorf("failed to purge resources: %w", err)
	}
	span.SetAttributes(attribute.Int("purge.count", len(ids)))
	return len(ids), nil
}

// Ping checks the store when it is backed by a remote service.
func (m *Manager) Ping(ctx context.Context) error {
	p, ok := m.store.(store.Pinger)
	if !ok {
		return nil
	}
	return p.Ping(ctx)
}

func recordError(span trace.Span, err error) {
	// Domain errors are the caller's fault, not the span's.
	if _, ok := domain.AsError(err); ok {
		return
	}
	if errors.Is(err, context.Canceled) {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

package domain

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"time"
)

// Resource is a tracked URI together with its lifecycle status and metadata.
//
// Fields are only reachable through setters, which enforce the status
// transition table and the per-status mutability rules. Every setter
// returns whether the value actually changed.
type Resource struct {
	// ─────────────────────────────
	// Identity (write-once)
	// ─────────────────────────────

	// id is Hash(uri), assigned together with uri.
	id string

	// uri is the canonical URI being tracked.
	uri string

	// ─────────────────────────────
	// Lifecycle
	// ─────────────────────────────

	// status drives which of the fields below may change.
	status Status

	// location is the redirect target, only ever set while redirected.
	location string

	// ─────────────────────────────
	// Metadata (mutable while found)
	// ─────────────────────────────

	// tags is kept sorted and free of duplicates.
	tags []string

	// pairs maps short alphanumeric keys to bounded values.
	pairs map[string]string

	// ─────────────────────────────
	// Timestamps
	// ─────────────────────────────

	// created is the first persistence time.
	created time.Time

	// updated moves forward on any mutation.
	updated time.Time

	// ─────────────────────────────
	// Store bookkeeping
	// ─────────────────────────────

	// meta is opaque to the domain (e.g. "rev" concurrency tokens).
	meta map[string]string

	limits Limits
}

// NewResource returns an empty resource bound to the given limits.
func NewResource(limits Limits) *Resource {
	return &Resource{limits: limits}
}

func (r *Resource) ID() string         { return r.id }
func (r *Resource) URI() string        { return r.uri }
func (r *Resource) Status() Status     { return r.status }
func (r *Resource) Location() string   { return r.location }
func (r *Resource) Created() time.Time { return r.created }
func (r *Resource) Updated() time.Time { return r.updated }

// Tags returns a copy of the tag set in sorted order.
func (r *Resource) Tags() []string { return slices.Clone(r.tags) }

// Pairs returns a copy of the key-value pairs.
func (r *Resource) Pairs() map[string]string { return maps.Clone(r.pairs) }

func (r *Resource) IsFound() bool      { return r.status == StatusFound }
func (r *Resource) IsRedirected() bool { return r.status == StatusRedirected }
func (r *Resource) IsNotFound() bool   { return r.status == StatusNotFound }

// Meta returns the bookkeeping value stored under key.
func (r *Resource) Meta(key string) string {
	return r.meta[key]
}

// SetMeta stores a bookkeeping value. Meta never counts as a change.
func (r *Resource) SetMeta(key, value string) {
	if r.meta == nil {
		r.meta = make(map[string]string, 1)
	}
	r.meta[key] = value
}

// SetLimits rebinds the bounds used by later setter calls.
func (r *Resource) SetLimits(limits Limits) {
	r.limits = limits
}

// SetStatus moves the resource to the class of the given HTTP code.
func (r *Resource) SetStatus(code int) (bool, error) {
	next, err := StatusFromCode(code)
	if err != nil {
		return false, err
	}
	if r.status == StatusUnset && next != StatusFound {
		return false, NewError(CodeIllegalTransition, "status",
			"new resources must begin at status 200 not %d", code)
	}
	if !r.status.CanTransitionTo(next) {
		return false, NewError(CodeIllegalTransition, "status",
			"current status is %d - cannot change to %d", r.status.Code(), code)
	}
	if next == r.status {
		return false, nil
	}
	r.status = next
	return true, nil
}

// SetURI assigns the URI and derives the identity from it. The URI can
// only be set once.
func (r *Resource) SetURI(uri string) (bool, error) {
	if uri != "" && uri == r.uri {
		return false, nil
	}
	if r.uri != "" {
		return false, NewError(CodeImmutableField, "uri", "property 'uri' is immutable")
	}
	if err := r.checkURI("uri", uri); err != nil {
		return false, err
	}
	r.uri = uri
	r.id = Hash(uri)
	return true, nil
}

// SetLocation records the redirect target. Only allowed while redirected,
// and only once.
func (r *Resource) SetLocation(location string) (bool, error) {
	if location == r.location {
		return false, nil
	}
	if r.status != StatusRedirected {
		return false, NewError(CodeInvalidFieldState, "location",
			"cannot set location unless status is 301 (not %d)", r.status.Code())
	}
	if r.location != "" {
		return false, NewError(CodeImmutableField, "location", "location of a redirected uri is immutable")
	}
	if err := r.checkURI("location", location); err != nil {
		return false, err
	}
	r.location = location
	return true, nil
}

// SetTags replaces the tag set. Only allowed while found.
func (r *Resource) SetTags(tags []string) (bool, error) {
	normalized := normalizeTags(tags)
	if slices.Equal(normalized, r.tags) {
		return false, nil
	}
	if r.status != StatusFound {
		return false, NewError(CodeInvalidFieldState, "tags",
			"can only modify tags while status is 200 (not %d)", r.status.Code())
	}
	for _, tag := range normalized {
		if !isWord(tag, r.limits.TagMaxLen) {
			return false, NewError(CodeValidation, tag, "invalid tag '%s'", tag)
		}
	}
	r.tags = normalized
	return true, nil
}

// SetPairs replaces the key-value pairs. Only allowed while found.
func (r *Resource) SetPairs(pairs map[string]string) (bool, error) {
	if len(pairs) == 0 && len(r.pairs) == 0 {
		return false, nil
	}
	if maps.Equal(pairs, r.pairs) {
		return false, nil
	}
	if r.status != StatusFound {
		return false, NewError(CodeInvalidFieldState, "pairs",
			"can only modify pairs while status is 200 (not %d)", r.status.Code())
	}
	for _, k := range slices.Sorted(maps.Keys(pairs)) {
		if !isWord(k, r.limits.PairKeyMaxLen) {
			return false, NewError(CodeValidation, k, "invalid key '%s'", k)
		}
		if v := pairs[k]; len(v) > r.limits.PairValueMaxBytes {
			return false, NewError(CodeValidation, k,
				"value for key '%s' too large at %d bytes", k, len(v))
		}
	}
	if len(pairs) == 0 {
		r.pairs = nil
	} else {
		r.pairs = maps.Clone(pairs)
	}
	return true, nil
}

// SetCreated records the first persistence time. It can only be set once.
func (r *Resource) SetCreated(t time.Time) error {
	if !r.created.IsZero() {
		return NewError(CodeImmutableField, "created", "property 'created' is immutable")
	}
	if t.IsZero() {
		return NewError(CodeValidation, "created", "created must be a valid time")
	}
	t = t.UTC()
	if !r.updated.IsZero() && r.updated.Before(t) {
		return NewError(CodeValidation, "created", "created must not be after updated")
	}
	r.created = t
	return nil
}

// SetUpdated records the last mutation time.
func (r *Resource) SetUpdated(t time.Time) error {
	if t.IsZero() {
		return NewError(CodeValidation, "updated", "updated must be a valid time")
	}
	t = t.UTC()
	if !r.created.IsZero() && t.Before(r.created) {
		return NewError(CodeValidation, "updated", "updated must not be before created")
	}
	r.updated = t
	return nil
}

// Clone returns a deep copy sharing nothing with r.
func (r *Resource) Clone() *Resource {
	c := *r
	c.tags = slices.Clone(r.tags)
	c.pairs = maps.Clone(r.pairs)
	c.meta = maps.Clone(r.meta)
	return &c
}

func (r *Resource) checkURI(field, value string) error {
	if value == "" {
		return NewError(CodeValidation, field, "%s is required", field)
	}
	if len(value) > r.limits.URIMaxLen {
		return NewError(CodeValidation, field, "%s is too long", field)
	}
	return nil
}

// normalizeTags sorts and de-duplicates tags. Empty input yields nil.
func normalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	out := slices.Clone(tags)
	slices.Sort(out)
	return slices.Compact(out)
}

// ─────────────────────────────────────────────────────────────────
// Persisted shape
// ─────────────────────────────────────────────────────────────────

// Record is the flat, serializable form of a Resource used by stores and
// shared caches.
type Record struct {
	ID       string            `json:"id"`
	URI      string            `json:"uri"`
	Status   int               `json:"status"`
	Location string            `json:"location,omitempty"`
	Tags     []string          `json:"tags,omitempty"`
	Pairs    map[string]string `json:"pairs,omitempty"`
	Created  time.Time         `json:"created"`
	Updated  time.Time         `json:"updated"`
	Meta     map[string]string `json:"meta,omitempty"`
}

// Record exports the resource for persistence.
func (r *Resource) Record() Record {
	return Record{
		ID:       r.id,
		URI:      r.uri,
		Status:   r.status.Code(),
		Location: r.location,
		Tags:     slices.Clone(r.tags),
		Pairs:    maps.Clone(r.pairs),
		Created:  r.created,
		Updated:  r.updated,
		Meta:     maps.Clone(r.meta),
	}
}

// FromRecord rebuilds a Resource from persisted data. Stored data is trusted
// apart from its shape: the identity is recomputed from the URI and the
// status must map to a supported class.
func FromRecord(rec Record, limits Limits) (*Resource, error) {
	if rec.URI == "" {
		return nil, fmt.Errorf("record %s has no uri", rec.ID)
	}
	status, err := StatusFromCode(rec.Status)
	if err != nil {
		return nil, fmt.Errorf("record %s: %w", rec.ID, err)
	}
	r := &Resource{
		id:       Hash(rec.URI),
		uri:      rec.URI,
		status:   status,
		location: rec.Location,
		tags:     normalizeTags(rec.Tags),
		created:  rec.Created.UTC(),
		updated:  rec.Updated.UTC(),
		limits:   limits,
	}
	if len(rec.Pairs) > 0 {
		r.pairs = maps.Clone(rec.Pairs)
	}
	if len(rec.Meta) > 0 {
		r.meta = maps.Clone(rec.Meta)
	}
	return r, nil
}

// MarshalJSON encodes the resource as its Record.
func (r *Resource) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Record())
}

// UnmarshalJSON decodes a Record into r using the default limits.
func (r *Resource) UnmarshalJSON(data []byte) error {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return err
	}
	decoded, err := FromRecord(rec, DefaultLimits())
	if err != nil {
		return err
	}
	*r = *decoded
	return nil
}

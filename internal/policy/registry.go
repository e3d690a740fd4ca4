package policy

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"bargain/internal/cache"
	"bargain/pkg/logger"
)

// Document is the stored form of a policy version.
type Document struct {
	Version     string    `json:"version" bson:"_id"`
	Raw         string    `json:"document" bson:"document"`
	Checksum    string    `json:"checksum" bson:"checksum"`
	PublishedAt time.Time `json:"published_at" bson:"published_at"`
	Active      bool      `json:"active" bson:"active"`
}

// Store is the authoritative policy storage.
type Store interface {
	ActiveDocument(ctx context.Context) (*Document, error)
	Document(ctx context.Context, version string) (*Document, error)
	Publish(ctx context.Context, doc *Document) error
}

// Registry serves parsed policies. The active policy is swapped atomically
// on publish; every version ever seen stays resolvable so in-flight
// sessions keep the rules they started with.
type Registry struct {
	store Store
	cache cache.Cache
	log   *logger.Logger
	now   func() time.Time

	active atomic.Pointer[Policy]

	mu       sync.RWMutex
	versions map[string]*Policy
}

func NewRegistry(store Store, c cache.Cache, log *logger.Logger, now func() time.Time) *Registry {
	r := &Registry{
		store:    store,
		cache:    c,
		log:      log,
		now:      now,
		versions: map[string]*Policy{FallbackVersion: Fallback()},
	}
	r.active.Store(Fallback())
	return r
}

// Active never returns nil; it serves the fallback policy until a
// published one is loaded.
func (r *Registry) Active() *Policy {
	return r.active.Load()
}

// Load resolves the active policy from the cache, then the store. When
// neither yields a valid document the fallback policy stays active.
func (r *Registry) Load(ctx context.Context) error {
	if raw, err := r.cache.Get(ctx, cache.PolicyActiveKey); err == nil {
		p, perr := r.remember(raw)
		if perr == nil {
			r.activate(p)
			return nil
		}
		r.log.Warn("Cached active policy is invalid, reading store", "error", perr)
	}

	doc, err := r.store.ActiveDocument(ctx)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			r.log.Warn("No published policy, serving fallback policy")
			return nil
		}
		r.log.Error("Failed to load active policy, serving fallback policy", "error", err)
		return err
	}
	p, err := r.remember([]byte(doc.Raw))
	if err != nil {
		r.log.Error("Stored active policy is invalid, serving fallback policy", "version", doc.Version, "error", err)
		return err
	}
	r.activate(p)
	r.warm(ctx, p.Version, []byte(doc.Raw), true)
	return nil
}

// Refresh picks up a version published by another process. It reports
// whether the active version changed.
func (r *Registry) Refresh(ctx context.Context) (bool, error) {
	before := r.Active().Version
	if err := r.Load(ctx); err != nil {
		return false, err
	}
	return r.Active().Version != before, nil
}

// Version resolves a pinned version. Unknown versions yield ErrNotFound.
func (r *Registry) Version(ctx context.Context, version string) (*Policy, error) {
	r.mu.RLock()
	p, ok := r.versions[version]
	r.mu.RUnlock()
	if ok {
		return p, nil
	}

	if raw, err := r.cache.Get(ctx, cache.PolicyVersionKey(version)); err == nil {
		if p, perr := r.remember(raw); perr == nil && p.Version == version {
			return p, nil
		}
	}

	doc, err := r.store.Document(ctx, version)
	if err != nil {
		return nil, err
	}
	p, err = r.remember([]byte(doc.Raw))
	if err != nil {
		return nil, err
	}
	r.warm(ctx, version, []byte(doc.Raw), false)
	return p, nil
}

// Publish validates raw, stores it as the active version, and invalidates
// the cached active policy.
func (r *Registry) Publish(ctx context.Context, raw []byte) (*Policy, error) {
	p, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	if p.Version == FallbackVersion {
		return nil, fmt.Errorf("%w: version %q is reserved", ErrInvalidPolicy, FallbackVersion)
	}

	doc := &Document{
		Version:     p.Version,
		Raw:         string(raw),
		Checksum:    p.Checksum,
		PublishedAt: r.now(),
		Active:      true,
	}
	if err := r.store.Publish(ctx, doc); err != nil {
		return nil, err
	}

	if err := r.cache.Delete(ctx, cache.PolicyActiveKey); err != nil {
		r.log.Warn("Failed to invalidate cached active policy", "error", err)
	}
	p = r.intern(p)
	r.activate(p)
	r.warm(ctx, p.Version, raw, true)

	r.log.Info("Policy published", "version", p.Version, "checksum", p.Checksum)
	return p, nil
}

func (r *Registry) remember(raw []byte) (*Policy, error) {
	checksum := Checksum(raw)

	r.mu.RLock()
	for _, p := range r.versions {
		if p.Checksum == checksum {
			r.mu.RUnlock()
			return p, nil
		}
	}
	r.mu.RUnlock()

	p, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	return r.intern(p), nil
}

// intern keeps the first parsed instance of each version. Versions are
// immutable, so a later document reusing a version name is ignored.
func (r *Registry) intern(p *Policy) *Policy {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.versions[p.Version]; ok {
		if existing.Checksum != p.Checksum {
			r.log.Warn("Ignoring policy document with a reused version", "version", p.Version)
		}
		return existing
	}
	r.versions[p.Version] = p
	return p
}

func (r *Registry) activate(p *Policy) {
	if prev := r.active.Swap(p); prev == nil || prev.Version != p.Version {
		r.log.Info("Active policy changed", "version", p.Version)
	}
}

func (r *Registry) warm(ctx context.Context, version string, raw []byte, active bool) {
	if err := r.cache.Set(ctx, cache.PolicyVersionKey(version), raw, cache.PolicyTTL); err != nil {
		r.log.Warn("Failed to cache policy version", "version", version, "error", err)
	}
	if active {
		if err := r.cache.Set(ctx, cache.PolicyActiveKey, raw, cache.PolicyTTL); err != nil {
			r.log.Warn("Failed to cache active policy", "version", version, "error", err)
		}
	}
}

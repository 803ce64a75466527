package resolve

import (
	"context"
	"fmt"
	"time"

	"github.com/arclight-ai/capd/internal/cache"
	"github.com/arclight-ai/capd/internal/registry"
)

// ToolResolver resolves a capability identifier + profile to a loaded
// tool handle, caching results by composite key.
type ToolResolver struct {
	source  registry.Source
	runners *registry.Runners
	cache   *cache.Cache[Key, registry.Handle]
}

// NewToolResolver creates a tool resolver with the given cache bounds.
func NewToolResolver(source registry.Source, runners *registry.Runners, maxEntries int, ttl time.Duration) *ToolResolver {
	return &ToolResolver{
		source:  source,
		runners: runners,
		cache:   cache.New[Key, registry.Handle](maxEntries, ttl),
	}
}

// Resolve returns the tool handle for name under profile. A cached
// handle is returned only while its TTL is unexpired and the backing
// source signature is unchanged; otherwise discovery runs again and the
// entry is repopulated. Concurrent resolutions of the same key share a
// single discovery.
func (r *ToolResolver) Resolve(ctx context.Context, name, profile string) (registry.Handle, error) {
	handle, _, err := r.ResolveWithMeta(ctx, name, profile)
	return handle, err
}

// ResolveWithMeta is Resolve plus a flag reporting whether the handle
// was served from cache.
func (r *ToolResolver) ResolveWithMeta(ctx context.Context, name, profile string) (registry.Handle, bool, error) {
	if name == "" {
		return registry.Handle{}, false, fmt.Errorf("resolve: capability name is empty")
	}
	scope := registry.Scope{Profile: profile}.Normalize()
	key := Key{Name: name, Profile: scope.Profile}
	sig := r.source.ToolSignature(scope, name)

	return r.cache.GetOrLoad(key, sig, func() (registry.Handle, string, error) {
		handle, err := r.discover(ctx, scope, name)
		if err != nil {
			return registry.Handle{}, "", err
		}
		return handle, sig, nil
	})
}

// discover performs the uncached lookup against the backing source.
// The coordinator's fallback path calls this directly.
func (r *ToolResolver) discover(ctx context.Context, scope registry.Scope, name string) (registry.Handle, error) {
	defs, err := r.source.ListTools(ctx, scope, name)
	if err != nil {
		return registry.Handle{}, err
	}
	def, ok := pickTool(defs, scope.Profile)
	if !ok {
		return registry.Handle{}, fmt.Errorf("%w: tool %q (profile %s)", registry.ErrNotFound, name, scope.Profile)
	}
	return r.runners.Bind(def)
}

// ResolveDirect bypasses the cache entirely and re-derives the handle
// from the backing source. Cache state and counters are untouched.
func (r *ToolResolver) ResolveDirect(ctx context.Context, name, profile string) (registry.Handle, error) {
	if name == "" {
		return registry.Handle{}, fmt.Errorf("resolve: capability name is empty")
	}
	return r.discover(ctx, registry.Scope{Profile: profile}.Normalize(), name)
}

// Invalidate drops the cached resolution for name under profile.
func (r *ToolResolver) Invalidate(name, profile string) {
	scope := registry.Scope{Profile: profile}.Normalize()
	r.cache.Invalidate(Key{Name: name, Profile: scope.Profile})
}

// Clear removes every entry and resets the counters.
func (r *ToolResolver) Clear() {
	r.cache.Flush()
}

// SweepExpired drops entries past their TTL.
func (r *ToolResolver) SweepExpired() int {
	return r.cache.SweepExpired()
}

// Resize adjusts the cache bound, evicting LRU-first when shrinking.
func (r *ToolResolver) Resize(maxEntries int) {
	r.cache.Resize(maxEntries)
}

// Stats returns a snapshot of the backing cache counters.
func (r *ToolResolver) Stats() cache.Stats {
	return r.cache.Stats()
}

// Len returns the number of cached resolutions.
func (r *ToolResolver) Len() int { return r.cache.Len() }

// Cap returns the cache bound.
func (r *ToolResolver) Cap() int { return r.cache.Cap() }

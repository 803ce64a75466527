package resolve

import (
	"context"
	"fmt"
	"time"

	"github.com/arclight-ai/capd/internal/cache"
	"github.com/arclight-ai/capd/internal/registry"
)

// ExtensionResolver resolves an extension point + profile to the ordered
// hook chain for that point. An empty chain is a normal outcome, not an
// error: most points have no hooks installed.
type ExtensionResolver struct {
	source  registry.Source
	runners *registry.Runners
	cache   *cache.Cache[Key, []registry.Handle]
}

// NewExtensionResolver creates an extension resolver with the given
// cache bounds.
func NewExtensionResolver(source registry.Source, runners *registry.Runners, maxEntries int, ttl time.Duration) *ExtensionResolver {
	return &ExtensionResolver{
		source:  source,
		runners: runners,
		cache:   cache.New[Key, []registry.Handle](maxEntries, ttl),
	}
}

// Resolve returns the ordered extension handles for point under
// profile, subject to the same TTL + source-signature validity rule as
// tool resolution.
func (r *ExtensionResolver) Resolve(ctx context.Context, point, profile string) ([]registry.Handle, error) {
	if point == "" {
		return nil, fmt.Errorf("resolve: extension point is empty")
	}
	scope := registry.Scope{Profile: profile}.Normalize()
	key := Key{Name: point, Profile: scope.Profile}
	sig := r.source.ExtensionSignature(scope, point)

	handles, _, err := r.cache.GetOrLoad(key, sig, func() ([]registry.Handle, string, error) {
		chain, err := r.discover(ctx, scope, point)
		if err != nil {
			return nil, "", err
		}
		return chain, sig, nil
	})
	return handles, err
}

func (r *ExtensionResolver) discover(ctx context.Context, scope registry.Scope, point string) ([]registry.Handle, error) {
	defs, err := r.source.ListExtensions(ctx, scope, point)
	if err != nil {
		return nil, err
	}
	ordered := orderExtensions(defs, scope.Profile)
	handles := make([]registry.Handle, 0, len(ordered))
	for _, def := range ordered {
		h, err := r.runners.Bind(def)
		if err != nil {
			return nil, err
		}
		handles = append(handles, h)
	}
	return handles, nil
}

// ResolveDirect bypasses the cache and re-derives the hook chain from
// the backing source.
func (r *ExtensionResolver) ResolveDirect(ctx context.Context, point, profile string) ([]registry.Handle, error) {
	if point == "" {
		return nil, fmt.Errorf("resolve: extension point is empty")
	}
	return r.discover(ctx, registry.Scope{Profile: profile}.Normalize(), point)
}

// Invalidate drops the cached chain for point under profile.
func (r *ExtensionResolver) Invalidate(point, profile string) {
	scope := registry.Scope{Profile: profile}.Normalize()
	r.cache.Invalidate(Key{Name: point, Profile: scope.Profile})
}

// Clear removes every entry and resets the counters.
func (r *ExtensionResolver) Clear() {
	r.cache.Flush()
}

// SweepExpired drops entries past their TTL.
func (r *ExtensionResolver) SweepExpired() int {
	return r.cache.SweepExpired()
}

// Resize adjusts the cache bound, evicting LRU-first when shrinking.
func (r *ExtensionResolver) Resize(maxEntries int) {
	r.cache.Resize(maxEntries)
}

// Stats returns a snapshot of the backing cache counters.
func (r *ExtensionResolver) Stats() cache.Stats {
	return r.cache.Stats()
}

// Len returns the number of cached chains.
func (r *ExtensionResolver) Len() int { return r.cache.Len() }

// Cap returns the cache bound.
func (r *ExtensionResolver) Cap() int { return r.cache.Cap() }

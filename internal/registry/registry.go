package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Kind distinguishes the capability variants the resolver can return.
type Kind string

const (
	// KindTool is a directly invocable capability.
	KindTool Kind = "tool"
	// KindExtension is a hook invoked before or after a tool dispatch.
	KindExtension Kind = "extension"
)

var (
	// ErrNotFound means no capability definition matches the
	// identifier+profile. It is surfaced to callers as-is, never
	// masked as a generic failure.
	ErrNotFound = errors.New("registry: capability not found")

	// ErrNoRunner means a definition names a runner that was never
	// registered with the process.
	ErrNoRunner = errors.New("registry: runner not registered")

	// ErrDuplicateRunner means a runner name was registered twice.
	ErrDuplicateRunner = errors.New("registry: runner already registered")
)

// Scope identifies which agent role/configuration a resolution request
// is scoped to. An empty Profile means the default profile.
type Scope struct {
	Profile string
}

// DefaultProfile is the namespace used when a request carries no profile.
const DefaultProfile = "default"

// Normalize returns the scope with an empty profile replaced by default.
func (s Scope) Normalize() Scope {
	if s.Profile == "" {
		s.Profile = DefaultProfile
	}
	return s
}

// Definition describes one capability as declared by its backing source.
type Definition struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
	Runner      string `yaml:"runner"`
	Order       int    `yaml:"order,omitempty"` // extensions: position within the hook chain

	// Filled in by the source, not the file.
	Kind      Kind   `yaml:"-"`
	Profile   string `yaml:"-"`
	Point     string `yaml:"-"` // extensions: the extension point
	Source    string `yaml:"-"` // path of the backing definition file
	Signature string `yaml:"-"` // fingerprint of the backing file at list time
}

// Source is the capability source of truth. Listing is a data lookup
// against definition files; signatures are cheap staleness fingerprints
// (modification times) computed without a full re-discovery.
//
// Contract: implementations must be safe for concurrent use and must
// not block on network I/O.
type Source interface {
	// ListTools returns all tool definitions named name that are
	// visible to scope: profile-scoped ones and default-scoped ones.
	ListTools(ctx context.Context, scope Scope, name string) ([]Definition, error)

	// ListExtensions returns all extension definitions for point
	// visible to scope, unordered.
	ListExtensions(ctx context.Context, scope Scope, point string) ([]Definition, error)

	// ToolSignature fingerprints the backing sources for name under
	// scope. Any change to a visible definition changes the signature.
	ToolSignature(scope Scope, name string) string

	// ExtensionSignature fingerprints the backing sources for point
	// under scope.
	ExtensionSignature(scope Scope, point string) string
}

// RunnerFunc executes a capability's business logic. The result and any
// side effects on ctx's values are opaque to the caching layer.
type RunnerFunc func(ctx context.Context, args map[string]any) (any, error)

// Handle is a resolved, invocable capability: the winning definition
// bound to its registered runner.
type Handle struct {
	Definition Definition
	Run        RunnerFunc
}

// Runners maps runner names declared in definition files to Go
// implementations. It replaces the original system's dynamic class
// loading with an explicit, mockable lookup.
type Runners struct {
	mu    sync.RWMutex
	funcs map[string]RunnerFunc
}

// NewRunners creates an empty runner registry.
func NewRunners() *Runners {
	return &Runners{funcs: make(map[string]RunnerFunc)}
}

// Register binds a runner name to an implementation.
func (r *Runners) Register(name string, fn RunnerFunc) error {
	if name == "" {
		return fmt.Errorf("registry: runner name is empty")
	}
	if fn == nil {
		return fmt.Errorf("registry: runner %q is nil", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.funcs[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateRunner, name)
	}
	r.funcs[name] = fn
	return nil
}

// Lookup returns the runner bound to name.
func (r *Runners) Lookup(name string) (RunnerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.funcs[name]
	return fn, ok
}

// Bind resolves def's runner into a Handle.
func (r *Runners) Bind(def Definition) (Handle, error) {
	fn, ok := r.Lookup(def.Runner)
	if !ok {
		return Handle{}, fmt.Errorf("%w: %s (definition %s)", ErrNoRunner, def.Runner, def.Source)
	}
	return Handle{Definition: def, Run: fn}, nil
}

package auth

import (
	"cmp"
	"slices"
	"strings"
	"sync"

	"github.com/rhuss/tenantgate/pkg/api"
)

// Registry holds the named authentication schemes.
//
// Registration happens at startup. Seal is the initialization barrier: after
// it the ordered snapshot is fixed and may be read concurrently without locks.
type Registry struct {
	mu      sync.Mutex
	schemes []Scheme
	names   map[string]struct{}
	ordered []Scheme // set by Seal, read-only afterwards
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{names: make(map[string]struct{})}
}

// Register adds a scheme. Names are unique; registering after Seal fails.
func (r *Registry) Register(s Scheme) error {
	name := strings.TrimSpace(s.Name)
	if name == "" {
		return api.NewConfigError(api.MissingField, "auth.schemes.name", "scheme name is required")
	}
	if s.Verifier == nil {
		return api.NewConfigError(api.MissingField, name, "scheme has no verifier")
	}
	s.Name = name

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ordered != nil {
		return ErrRegistrySealed
	}
	if _, exists := r.names[name]; exists {
		return api.NewConfigError(api.DuplicateName, name, "scheme already registered")
	}

	r.names[name] = struct{}{}
	r.schemes = append(r.schemes, s)
	return nil
}

// MustRegister is like Register but panics on error. Intended for tests and
// static wiring.
func (r *Registry) MustRegister(s Scheme) {
	if err := r.Register(s); err != nil {
		panic(err)
	}
}

// SchemesInPriorityOrder returns the schemes sorted by descending priority.
// Equal priorities keep registration order.
func (r *Registry) SchemesInPriorityOrder() []Scheme {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ordered != nil {
		return slices.Clone(r.ordered)
	}
	return sortSchemes(r.schemes)
}

// Seal freezes the registry and returns the ordered snapshot. Calling it
// again returns the same order.
func (r *Registry) Seal() []Scheme {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ordered == nil {
		r.ordered = sortSchemes(r.schemes)
	}
	return slices.Clone(r.ordered)
}

// Sealed reports whether Seal has been called.
func (r *Registry) Sealed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ordered != nil
}

// Len returns the number of registered schemes.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.schemes)
}

// Lookup returns the scheme with the given name.
func (r *Registry) Lookup(name string) (Scheme, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.schemes {
		if s.Name == name {
			return s, true
		}
	}
	return Scheme{}, false
}

func sortSchemes(in []Scheme) []Scheme {
	out := slices.Clone(in)
	if out == nil {
		out = []Scheme{}
	}
	slices.SortStableFunc(out, func(a, b Scheme) int {
		return cmp.Compare(b.Priority, a.Priority)
	})
	return out
}

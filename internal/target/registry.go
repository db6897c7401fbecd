package target

import (
	"fmt"
	"sort"

	apperrors "github.com/apesavax/wAvaxApes/internal/pkg/errors"
)

// Registry maps target names to targets. It is populated once at startup and
// only read afterwards, so concurrent Resolve calls need no locking.
type Registry struct {
	targets     map[string]Target
	defaultName string
}

// NewRegistry registers the given targets in order.
func NewRegistry(targets ...Target) (*Registry, error) {
	r := &Registry{targets: make(map[string]Target, len(targets))}
	for _, t := range targets {
		if err := r.register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// register adds a target. Only called from NewRegistry.
func (r *Registry) register(t Target) error {
	if t.Verification != nil {
		v := *t.Verification
		t.Verification = &v
	}
	t.normalize()
	if _, exists := r.targets[t.Name]; exists {
		return fmt.Errorf("%w: %q", apperrors.ErrDuplicateTarget, t.Name)
	}
	if err := t.Validate(); err != nil {
		return err
	}
	r.targets[t.Name] = t
	return nil
}

// WithDefault returns a registry that resolves the empty name to name.
func (r *Registry) WithDefault(name string) (*Registry, error) {
	if name != "" {
		if _, ok := r.targets[name]; !ok {
			return nil, fmt.Errorf("default %w: %q", apperrors.ErrUnknownTarget, name)
		}
	}
	return &Registry{targets: r.targets, defaultName: name}, nil
}

// Resolve returns the target registered under name. An empty name resolves to
// the default target when one is configured.
func (r *Registry) Resolve(name string) (Target, error) {
	if name == "" {
		name = r.defaultName
	}
	t, ok := r.targets[name]
	if !ok {
		return Target{}, fmt.Errorf("%w: %q (known: %v)", apperrors.ErrUnknownTarget, name, r.Names())
	}
	if t.Verification != nil {
		v := *t.Verification
		t.Verification = &v
	}
	return t, nil
}

// Default returns the default target name, or "" if none.
func (r *Registry) Default() string {
	return r.defaultName
}

// Names returns all target names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.targets))
	for name := range r.targets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered targets.
func (r *Registry) Len() int {
	return len(r.targets)
}

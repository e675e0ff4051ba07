package strategy

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/costguard-framework/costguard/internal/core"
)

// ErrUnregisteredStrategy is returned when no strategy exists for a
// (provider, action) pair.
var ErrUnregisteredStrategy = errors.New("unregistered strategy")

type registryKey struct {
	provider string // lower-cased
	action   core.Action
}

// Builder accumulates strategies during process initialization. Build seals
// the table; the resulting Registry is read-only for the process lifetime and
// is injected into the orchestrator rather than accessed as a global.
type Builder struct {
	entries map[registryKey]Strategy
}

// NewBuilder creates an empty strategy builder.
func NewBuilder() *Builder {
	return &Builder{entries: make(map[registryKey]Strategy)}
}

// Register adds a strategy keyed by its Meta. Registering the same
// (provider, action) twice is a programming error and panics at startup.
func (b *Builder) Register(s Strategy) *Builder {
	meta := s.Meta()
	key := registryKey{
		provider: strings.ToLower(string(meta.Provider)),
		action:   meta.Action,
	}
	if _, exists := b.entries[key]; exists {
		panic(fmt.Sprintf("strategy already registered: %s/%s", meta.Provider, meta.Action))
	}
	b.entries[key] = s
	return b
}

// Build seals the table into an immutable Registry.
func (b *Builder) Build() *Registry {
	entries := make(map[registryKey]Strategy, len(b.entries))
	for k, v := range b.entries {
		entries[k] = v
	}
	return &Registry{entries: entries}
}

// Registry is the immutable (provider, action) → strategy table.
type Registry struct {
	entries map[registryKey]Strategy
}

// Get returns the strategy for the pair. Provider matching is
// case-insensitive.
func (r *Registry) Get(provider core.Provider, action core.Action) (Strategy, error) {
	key := registryKey{
		provider: strings.ToLower(string(provider)),
		action:   action,
	}
	s, ok := r.entries[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrUnregisteredStrategy, provider, action)
	}
	return s, nil
}

// List returns the metadata of every registered strategy, sorted by
// provider then action.
func (r *Registry) List() []Meta {
	metas := make([]Meta, 0, len(r.entries))
	for _, s := range r.entries {
		metas = append(metas, s.Meta())
	}
	sort.Slice(metas, func(i, j int) bool {
		if metas[i].Provider != metas[j].Provider {
			return metas[i].Provider < metas[j].Provider
		}
		return metas[i].Action < metas[j].Action
	})
	return metas
}

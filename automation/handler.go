package automation

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/cwbudde/algo-automation/dsp/timebase"
	"github.com/cwbudde/algo-automation/persist"
)

// Handler tracks, per track, whether one automation variant is under live
// manual control. While a track is tracking, replayed events of the
// variant are suppressed on it.
//
// Flags are read and written atomically; a reader may observe a change one
// block late.
type Handler struct {
	kind  Kind
	flags sync.Map // TrackID -> *atomic.Bool
}

// Kind returns the variant this handler belongs to.
func (h *Handler) Kind() Kind { return h.kind }

// SetTracking turns manual control of the variant on track id on or off.
func (h *Handler) SetTracking(id TrackID, on bool) {
	if v, ok := h.flags.Load(id); ok {
		v.(*atomic.Bool).Store(on)
		return
	}
	if !on {
		return
	}
	flag := &atomic.Bool{}
	v, _ := h.flags.LoadOrStore(id, flag)
	v.(*atomic.Bool).Store(on)
}

// IsTracking reports whether track id is under manual control.
func (h *Handler) IsTracking(id TrackID) bool {
	v, ok := h.flags.Load(id)
	return ok && v.(*atomic.Bool).Load()
}

// Factory builds a default event of one variant for import.
type Factory func(tb timebase.TimeBase) Event

var (
	// ErrUnknownKind reports a variant tag that was never registered.
	ErrUnknownKind = errors.New("automation: unknown kind")

	errDuplicateKind = errors.New("duplicate automation kind")
)

type registration struct {
	handler *Handler
	factory Factory
}

// Registry maps variant tags to their handler and import factory.
// Registrations are permanent.
type Registry struct {
	mu      sync.RWMutex
	entries map[Kind]*registration
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[Kind]*registration)}
}

// Register adds a variant and creates its handler.
func (r *Registry) Register(kind Kind, factory Factory) error {
	if kind == "" {
		return errors.New("empty automation kind")
	}

	if factory == nil {
		return errors.New("nil factory")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[kind]; exists {
		return fmt.Errorf("%w: %s", errDuplicateKind, kind)
	}

	r.entries[kind] = &registration{handler: &Handler{kind: kind}, factory: factory}

	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(kind Kind, factory Factory) {
	if err := r.Register(kind, factory); err != nil {
		panic("automation registry: " + err.Error())
	}
}

// Lookup returns the factory for kind, or nil.
func (r *Registry) Lookup(kind Kind) Factory {
	if e := r.entry(kind); e != nil {
		return e.factory
	}
	return nil
}

// Handler returns the handler for kind, or nil.
func (r *Registry) Handler(kind Kind) *Handler {
	if e := r.entry(kind); e != nil {
		return e.handler
	}
	return nil
}

// Kinds returns all registered variant tags in sorted order.
func (r *Registry) Kinds() []Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]Kind, 0, len(r.entries))
	for k := range r.entries {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// New creates a default event of the given kind.
func (r *Registry) New(kind Kind, tb timebase.TimeBase) (Event, error) {
	f := r.Lookup(kind)
	if f == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	return f(tb), nil
}

// Decode creates an event from a persisted element, choosing the variant
// by element name.
func (r *Registry) Decode(tb timebase.TimeBase, el persist.Element) (Event, error) {
	ev, err := r.New(Kind(el.Name), tb)
	if err != nil {
		return nil, err
	}
	if err := ev.Import(el); err != nil {
		return nil, err
	}
	return ev, nil
}

func (r *Registry) entry(kind Kind) *registration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entries[kind]
}

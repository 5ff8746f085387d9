package automation

import (
	"fmt"
	"math"
	"sync/atomic"

	"github.com/cwbudde/algo-automation/dsp/timebase"
	"github.com/cwbudde/algo-automation/persist"
)

// ParamSpec describes one scalar automatable parameter of effect type T.
type ParamSpec[T Effect] struct {
	// Kind is the event variant tag and persisted element name.
	Kind Kind
	// Effect is the kind of effect the parameter belongs to.
	Effect EffectKind
	// Attr is the attribute name holding the value.
	Attr string
	// Default is the value of an event created for import.
	Default float64

	Get func(T) float64
	Set func(T, float64)
}

// New returns an unbound event capturing value at start. The target effect
// is resolved from the track each time the event is applied.
func (s *ParamSpec[T]) New(tb timebase.TimeBase, start int64, value float64) *Param[T] {
	p := &Param[T]{spec: s}
	p.valueBits.Store(math.Float64bits(value))
	p.init(s.Kind, tb, start)
	return p
}

// Capture returns an event bound to target holding its current value at
// the current playback position.
func (s *ParamSpec[T]) Capture(tb timebase.TimeBase, target T) *Param[T] {
	var start int64
	if tb != nil {
		start = tb.Position()
	}
	p := s.New(tb, start, s.Get(target))
	p.target = target
	p.bound = true
	return p
}

// Factory returns a constructor for default events, used by import.
func (s *ParamSpec[T]) Factory() Factory {
	return func(tb timebase.TimeBase) Event {
		return s.New(tb, 0, s.Default)
	}
}

// Register adds the variant to reg.
func (s *ParamSpec[T]) Register(reg *Registry) error {
	return reg.Register(s.Kind, s.Factory())
}

// Bind returns a control handle for this parameter on target.
func (s *ParamSpec[T]) Bind(tb timebase.TimeBase, target T) Parameter {
	return &boundParam[T]{spec: s, tb: tb, target: target}
}

// Param is a scalar automation event for effect type T.
type Param[T Effect] struct {
	Base

	spec      *ParamSpec[T]
	valueBits atomic.Uint64
	target    T
	bound     bool
}

// Value returns the captured parameter value.
func (p *Param[T]) Value() float64 { return math.Float64frombits(p.valueBits.Load()) }

// Apply sets the captured value on the target effect. An unbound event
// looks the effect up on tr by kind.
func (p *Param[T]) Apply(tr Track) bool {
	target, ok := p.resolve(tr)
	if !ok {
		return false
	}
	p.spec.Set(target, p.Value())
	return true
}

func (p *Param[T]) resolve(tr Track) (T, bool) {
	if p.bound {
		return p.target, true
	}

	var zero T
	if tr == nil {
		if pl := p.Owner(); pl != nil {
			tr = pl.Track()
		}
	}
	if tr == nil {
		return zero, false
	}

	fx := tr.Effect(p.spec.Effect)
	if fx == nil {
		return zero, false
	}
	target, ok := fx.(T)
	return target, ok
}

// Export writes Time and the value attribute.
func (p *Param[T]) Export() persist.Element {
	el := persist.NewElement(string(p.spec.Kind))
	p.exportTime(&el)
	el.SetFloat(p.spec.Attr, p.Value())
	return el
}

// Import reads Time and the value attribute. Absent attributes keep their
// current values; on a malformed attribute nothing is changed.
func (p *Param[T]) Import(el persist.Element) error {
	if el.Name != "" && el.Name != string(p.spec.Kind) {
		return fmt.Errorf("%w: element %q is not %q", persist.ErrFormat, el.Name, p.spec.Kind)
	}

	start := p.StartTime()
	if _, err := el.Int64("Time", &start); err != nil {
		return err
	}
	value := p.Value()
	if _, err := el.Float(p.spec.Attr, &value); err != nil {
		return err
	}

	p.SetStartTime(start)
	p.valueBits.Store(math.Float64bits(value))
	return nil
}

func (p *Param[T]) String() string {
	return fmt.Sprintf("%s@%d %s=%g", p.spec.Kind, p.StartTime(), p.spec.Attr, p.Value())
}

// Parameter is a live control handle for one parameter of one effect
// instance.
type Parameter interface {
	Kind() Kind
	Get() float64
	Set(v float64)

	// Record returns a new event capturing the current value at the
	// current playback position.
	Record() Event
}

type boundParam[T Effect] struct {
	spec      *ParamSpec[T]
	tb     timebase.TimeBase
	target T
}

func (b *boundParam[T]) Kind() Kind { return b.spec.Kind }

func (b *boundParam[T]) Get() float64 { return b.spec.Get(b.target) }

func (b *boundParam[T]) Set(v float64) { b.spec.Set(b.target, v) }

func (b *boundParam[T]) Record() Event { return b.spec.Capture(b.tb, b.target) }

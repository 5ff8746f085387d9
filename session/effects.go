package session

import (
	"errors"
	"fmt"

	"github.com/cwbudde/algo-automation/automation"
	"github.com/cwbudde/algo-automation/dsp/effects"
	"github.com/cwbudde/algo-automation/dsp/effects/modulation"
	"github.com/cwbudde/algo-automation/dsp/timebase"
	"github.com/cwbudde/algo-automation/persist"
)

// Processor is an effect the engine can host on a track.
type Processor interface {
	automation.Effect

	Activate(channels int) error
	Deactivate()
	Process(buf [][]float64, offset, count int) bool

	Parameters() []automation.Parameter
	Export() persist.Element
	Import(el persist.Element) error
}

// EffectFactory builds one effect instance.
type EffectFactory func(tb timebase.TimeBase) (Processor, error)

// ErrUnknownEffect reports an effect kind with no registered factory.
var ErrUnknownEffect = errors.New("session: unknown effect")

var errDuplicateEffect = errors.New("duplicate effect kind")

// EffectRegistry maps effect kinds to their factories.
type EffectRegistry struct {
	factories map[automation.EffectKind]EffectFactory
}

// NewEffectRegistry creates an empty registry.
func NewEffectRegistry() *EffectRegistry {
	return &EffectRegistry{factories: make(map[automation.EffectKind]EffectFactory)}
}

// Register adds a factory for the given effect kind.
func (r *EffectRegistry) Register(kind automation.EffectKind, factory EffectFactory) error {
	if kind == "" {
		return errors.New("empty effect kind")
	}

	if factory == nil {
		return errors.New("nil factory")
	}

	if _, exists := r.factories[kind]; exists {
		return fmt.Errorf("%w: %s", errDuplicateEffect, kind)
	}

	r.factories[kind] = factory

	return nil
}

// MustRegister is like Register but panics on error.
func (r *EffectRegistry) MustRegister(kind automation.EffectKind, factory EffectFactory) {
	err := r.Register(kind, factory)
	if err != nil {
		panic("session effect registry: " + err.Error())
	}
}

// Lookup returns the factory for the given effect kind, or nil.
func (r *EffectRegistry) Lookup(kind automation.EffectKind) EffectFactory {
	return r.factories[kind]
}

// New builds an effect of the given kind.
func (r *EffectRegistry) New(kind automation.EffectKind, tb timebase.TimeBase) (Processor, error) {
	f := r.Lookup(kind)
	if f == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEffect, kind)
	}
	return f(tb)
}

// DefaultEffects returns a registry with Delay and Flanger.
func DefaultEffects() *EffectRegistry {
	r := NewEffectRegistry()
	r.MustRegister(effects.DelayKind, func(tb timebase.TimeBase) (Processor, error) {
		return effects.NewDelay(tb)
	})
	r.MustRegister(modulation.FlangerKind, func(tb timebase.TimeBase) (Processor, error) {
		return modulation.NewFlanger(tb)
	})
	return r
}

// DefaultAutomation returns an automation registry with the Delay and
// Flanger variants.
func DefaultAutomation() *automation.Registry {
	reg := automation.NewRegistry()
	if err := effects.RegisterAutomation(reg); err != nil {
		panic("session: " + err.Error())
	}
	if err := modulation.RegisterAutomation(reg); err != nil {
		panic("session: " + err.Error())
	}
	return reg
}

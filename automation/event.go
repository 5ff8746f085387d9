package automation

import (
	"fmt"
	"sync/atomic"

	"github.com/cwbudde/algo-automation/dsp/timebase"
	"github.com/cwbudde/algo-automation/persist"
)

// Kind is the variant tag of an automation event. It doubles as the
// persisted element name.
type Kind string

// EffectKind names an effect type on a track.
type EffectKind string

// TrackID identifies an audio track.
type TrackID int

// Effect is anything a track can host and automation can target.
type Effect interface {
	EffectKind() EffectKind
}

// Track is the view of an audio track the automation core needs.
type Track interface {
	ID() TrackID
	AutomationEnabled() bool
	AddAutomation(ev Event)
	Effect(kind EffectKind) Effect
}

// Event is one recorded parameter change.
type Event interface {
	Kind() Kind
	StartTime() int64
	SetStartTime(samples int64)
	Owner() *Playlist
	SameChannel(other Event) bool
	Value() float64

	// Apply pushes the captured value into the target effect on tr. It
	// reports false when no target can be resolved.
	Apply(tr Track) bool

	Export() persist.Element
	Import(el persist.Element) error

	base() *Base
}

// Base holds the state shared by all event variants.
type Base struct {
	kind  Kind
	tb    timebase.TimeBase
	start atomic.Int64
	owner atomic.Pointer[Playlist]
}

func (b *Base) init(kind Kind, tb timebase.TimeBase, start int64) {
	b.kind = kind
	b.tb = tb
	b.start.Store(start)
}

func (b *Base) base() *Base { return b }

func (b *Base) Kind() Kind { return b.kind }

// StartTime returns the start time in samples.
func (b *Base) StartTime() int64 { return b.start.Load() }

// SetStartTime moves the event. The owning playlist, if any, re-sorts.
func (b *Base) SetStartTime(samples int64) {
	if b.start.Load() == samples {
		return
	}
	if p := b.owner.Load(); p != nil {
		p.startChanged(b, samples)
		return
	}
	b.start.Store(samples)
}

// Owner returns the playlist holding the event, or nil.
func (b *Base) Owner() *Playlist { return b.owner.Load() }

// TimeBase returns the time base used for unit conversions.
func (b *Base) TimeBase() timebase.TimeBase { return b.tb }

// StartMillis returns the start time in milliseconds.
func (b *Base) StartMillis() float64 {
	if b.tb == nil {
		return 0
	}
	return b.tb.SamplesToMillis(b.StartTime())
}

// StartSeconds returns the start time in seconds.
func (b *Base) StartSeconds() float64 {
	if b.tb == nil {
		return 0
	}
	return b.tb.SamplesToSeconds(b.StartTime())
}

// SetStartMillis moves the event to the given time in milliseconds.
func (b *Base) SetStartMillis(ms float64) {
	if b.tb == nil {
		return
	}
	b.SetStartTime(int64(b.tb.MillisToSamples(ms)))
}

// SameChannel reports whether other is the same variant on the same
// playlist, i.e. automates the same parameter of the same track. Events
// outside a playlist share no channel.
func (b *Base) SameChannel(other Event) bool {
	if other == nil {
		return false
	}
	owner := b.Owner()
	return owner != nil && b.kind == other.Kind() && owner == other.Owner()
}

func (b *Base) exportTime(el *persist.Element) {
	el.SetInt("Time", b.StartTime())
}

func (b *Base) String() string {
	return fmt.Sprintf("%s@%d", b.kind, b.StartTime())
}

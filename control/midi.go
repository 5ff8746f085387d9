package control

import (
	"errors"
	"fmt"
	"sync"

	"gitlab.com/gomidi/midi/v2"

	"github.com/cwbudde/algo-automation/automation"
	"github.com/cwbudde/algo-automation/dsp/core"
)

// ErrBinding reports an invalid MIDI binding.
var ErrBinding = errors.New("control: invalid MIDI binding")

// Binding maps one MIDI controller to a parameter.
type Binding struct {
	Track     automation.Track
	Param     automation.Parameter
	Channel   uint8
	Control   uint8
	Min, Max  float64
	Touch     bool // notes on TouchNote bracket a gesture
	TouchNote uint8
}

// value maps a 7-bit controller value onto [Min, Max].
func (b *Binding) value(v uint8) float64 {
	return b.Min + (b.Max-b.Min)*float64(min(v, 127))/127
}

type ccKey struct{ channel, control uint8 }

type noteKey struct{ channel, key uint8 }

// MIDIMap routes MIDI messages to a Surface.
type MIDIMap struct {
	surface *Surface

	mu     sync.RWMutex
	byCC   map[ccKey]*Binding
	byNote map[noteKey]*Binding
}

// NewMIDIMap returns an empty map driving s.
func NewMIDIMap(s *Surface) *MIDIMap {
	return &MIDIMap{
		surface: s,
		byCC:    make(map[ccKey]*Binding),
		byNote:  make(map[noteKey]*Binding),
	}
}

// Bind adds b, replacing any binding on the same controller.
func (m *MIDIMap) Bind(b Binding) error {
	switch {
	case b.Track == nil || b.Param == nil:
		return fmt.Errorf("%w: missing track or parameter", ErrBinding)
	case b.Channel > 15 || b.Control > 127:
		return fmt.Errorf("%w: channel %d control %d", ErrBinding, b.Channel, b.Control)
	case !core.IsFinite(b.Min) || !core.IsFinite(b.Max):
		return fmt.Errorf("%w: range [%v, %v]", ErrBinding, b.Min, b.Max)
	case b.Touch && b.TouchNote > 127:
		return fmt.Errorf("%w: touch note %d", ErrBinding, b.TouchNote)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cc := ccKey{b.Channel, b.Control}
	if old := m.byCC[cc]; old != nil && old.Touch {
		delete(m.byNote, noteKey{old.Channel, old.TouchNote})
	}
	m.byCC[cc] = &b
	if b.Touch {
		m.byNote[noteKey{b.Channel, b.TouchNote}] = &b
	}
	return nil
}

// Listener returns a callback for midi.ListenTo.
func (m *MIDIMap) Listener() func(msg midi.Message, timestampms int32) {
	return func(msg midi.Message, _ int32) { m.Handle(msg) }
}

// Handle applies msg and reports whether it matched a binding.
func (m *MIDIMap) Handle(msg midi.Message) bool {
	var ch, a, b uint8

	switch {
	case msg.GetControlChange(&ch, &a, &b):
		bind := m.lookupCC(ch, a)
		if bind == nil {
			return false
		}
		m.surface.Change(bind.Track, bind.Param, bind.value(b))
		return true

	case msg.GetNoteStart(&ch, &a, &b):
		bind := m.lookupNote(ch, a)
		if bind == nil {
			return false
		}
		m.surface.Touch(bind.Track, bind.Param)
		return true

	case msg.GetNoteEnd(&ch, &a):
		bind := m.lookupNote(ch, a)
		if bind == nil {
			return false
		}
		m.surface.Release(bind.Track, bind.Param)
		return true
	}
	return false
}

func (m *MIDIMap) lookupCC(ch, cc uint8) *Binding {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.byCC[ccKey{ch, cc}]
}

func (m *MIDIMap) lookupNote(ch, key uint8) *Binding {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.byNote[noteKey{ch, key}]
}

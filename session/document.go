package session

import (
	"fmt"

	"github.com/cwbudde/algo-automation/automation"
	"github.com/cwbudde/algo-automation/dsp/core"
	"github.com/cwbudde/algo-automation/persist"
)

// minGainDB is the stored level of a muted track.
const minGainDB = -144

// FromDocument builds a stopped engine from a saved session. The
// document's sample rate and tempo override any given by opts; zero
// values keep the engine defaults.
func FromDocument(doc *persist.Document, opts ...Option) (*Engine, error) {
	if doc.SampleRate > 0 {
		opts = append(opts, WithProcessor(core.WithSampleRate(doc.SampleRate)))
	}
	if doc.Tempo > 0 {
		opts = append(opts, WithTempo(doc.Tempo))
	}

	e, err := NewEngine(opts...)
	if err != nil {
		return nil, err
	}

	for i, td := range doc.Tracks {
		t := e.AddTrack(td.Name)
		t.SetAutomationEnabled(td.Automation)
		if td.GainDB <= minGainDB {
			t.SetGain(0)
		} else {
			t.SetGain(core.DBToLinear(td.GainDB))
		}

		for _, el := range td.Effects {
			fx, err := e.AddEffect(t, automation.EffectKind(el.Name))
			if err != nil {
				return nil, fmt.Errorf("session: track %d: %w", i, err)
			}
			if err := fx.Import(el); err != nil {
				return nil, fmt.Errorf("session: track %d effect %s: %w", i, el.Name, err)
			}
		}

		for _, el := range td.Events {
			ev, err := e.reg.Decode(e.clock, el)
			if err != nil {
				return nil, fmt.Errorf("session: track %d: %w", i, err)
			}
			t.AddAutomation(ev)
		}
	}

	e.log.WithField("tracks", len(doc.Tracks)).Debug("session loaded")
	return e, nil
}

// Document exports the engine's tracks, effects and automation.
func (e *Engine) Document() *persist.Document {
	doc := &persist.Document{
		SampleRate: e.cfg.SampleRate,
		Tempo:      e.clock.Tempo(),
	}

	for _, t := range e.Tracks() {
		td := persist.Track{
			Name:       t.Name(),
			Automation: t.AutomationEnabled(),
		}
		if g := t.Gain(); g != 1 {
			td.GainDB = max(core.LinearToDB(g), minGainDB)
		}
		for _, fx := range t.Effects() {
			td.Effects = append(td.Effects, fx.Export())
		}
		for _, ev := range t.Playlist().Events() {
			td.Events = append(td.Events, ev.Export())
		}
		doc.Tracks = append(doc.Tracks, td)
	}
	return doc
}

// Open loads a session file and builds an engine from it.
func Open(path string, opts ...Option) (*Engine, error) {
	doc, err := persist.Load(path)
	if err != nil {
		return nil, err
	}
	return FromDocument(doc, opts...)
}

// Save writes the engine's session to path.
func (e *Engine) Save(path string) error {
	return persist.Save(path, e.Document())
}

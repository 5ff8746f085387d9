package automation

import (
	"testing"

	"github.com/cwbudde/algo-automation/dsp/timebase"
)

const gainKind EffectKind = "Gain"

type gainFX struct {
	level float64
	sets  int
}

func (g *gainFX) EffectKind() EffectKind { return gainKind }

type panFX struct{}

func (panFX) EffectKind() EffectKind { return gainKind }

var levelSpec = &ParamSpec[*gainFX]{
	Kind:    "GainLevel",
	Effect:  gainKind,
	Attr:    "Level",
	Default: 1,
	Get:     func(g *gainFX) float64 { return g.level },
	Set: func(g *gainFX, v float64) {
		g.level = v
		g.sets++
	},
}

var trimSpec = &ParamSpec[*gainFX]{
	Kind:    "GainTrim",
	Effect:  gainKind,
	Attr:    "Trim",
	Default: 0,
	Get:     func(g *gainFX) float64 { return g.level },
	Set:     func(g *gainFX, v float64) { g.level = v },
}

type fakeTrack struct {
	id      TrackID
	enabled bool
	effects map[EffectKind]Effect
	pl      *Playlist
}

func newFakeTrack(id TrackID, effects ...Effect) *fakeTrack {
	tr := &fakeTrack{id: id, enabled: true, effects: make(map[EffectKind]Effect)}
	for _, fx := range effects {
		tr.effects[fx.EffectKind()] = fx
	}
	tr.pl = NewPlaylist(tr)
	return tr
}

func (t *fakeTrack) ID() TrackID { return t.id }

func (t *fakeTrack) AutomationEnabled() bool { return t.enabled }

func (t *fakeTrack) AddAutomation(ev Event) { t.pl.Insert(ev) }

func (t *fakeTrack) Effect(kind EffectKind) Effect { return t.effects[kind] }

func newClock(t *testing.T) *timebase.Clock {
	t.Helper()

	c, err := timebase.NewClock(44100, 120)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func newRegistry(t *testing.T) *Registry {
	t.Helper()

	reg := NewRegistry()
	if err := levelSpec.Register(reg); err != nil {
		t.Fatal(err)
	}
	if err := trimSpec.Register(reg); err != nil {
		t.Fatal(err)
	}
	return reg
}

func starts(evs []Event) []int64 {
	out := make([]int64, len(evs))
	for i, ev := range evs {
		out[i] = ev.StartTime()
	}
	return out
}

func equalInts(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

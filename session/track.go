package session

import (
	"math"
	"sync"
	"sync/atomic"

	"github.com/cwbudde/algo-automation/automation"
)

// Track is one audio track: an input source, an effect chain, a gain and
// an automation playlist.
type Track struct {
	id   automation.TrackID
	name string

	mu      sync.RWMutex
	effects []Processor
	source  Source

	automation atomic.Bool
	gainBits   atomic.Uint64

	playlist *automation.Playlist
	cursor   *automation.Cursor
}

var _ automation.Track = (*Track)(nil)

func newTrack(id automation.TrackID, name string) *Track {
	t := &Track{id: id, name: name}
	t.gainBits.Store(math.Float64bits(1))
	t.playlist = automation.NewPlaylist(t)
	t.cursor = automation.NewCursor(t.playlist)
	return t
}

// ID returns the track identity.
func (t *Track) ID() automation.TrackID { return t.id }

// Name returns the display name.
func (t *Track) Name() string { return t.name }

// AutomationEnabled reports whether parameter changes are recorded.
func (t *Track) AutomationEnabled() bool { return t.automation.Load() }

// SetAutomationEnabled turns recording of parameter changes on or off.
func (t *Track) SetAutomationEnabled(on bool) { t.automation.Store(on) }

// AddAutomation inserts ev into the track's playlist.
func (t *Track) AddAutomation(ev automation.Event) { t.playlist.Insert(ev) }

// Playlist returns the automation playlist.
func (t *Track) Playlist() *automation.Playlist { return t.playlist }

// Effect returns the first effect of the given kind, or nil.
func (t *Track) Effect(kind automation.EffectKind) automation.Effect {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, fx := range t.effects {
		if fx.EffectKind() == kind {
			return fx
		}
	}
	return nil
}

// Effects returns a snapshot of the effect chain in processing order.
func (t *Track) Effects() []Processor {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]Processor(nil), t.effects...)
}

// SetSource sets the input audio; nil means silence.
func (t *Track) SetSource(s Source) {
	t.mu.Lock()
	t.source = s
	t.mu.Unlock()
}

// SetGain sets the linear output gain.
func (t *Track) SetGain(g float64) {
	if math.IsNaN(g) || math.IsInf(g, 0) || g < 0 {
		return
	}
	t.gainBits.Store(math.Float64bits(g))
}

// Gain returns the linear output gain.
func (t *Track) Gain() float64 { return math.Float64frombits(t.gainBits.Load()) }

func (t *Track) addEffect(p Processor) {
	t.mu.Lock()
	t.effects = append(t.effects, p)
	t.mu.Unlock()
}

// render fills buf with the track's audio for [pos, pos+frames) and runs
// the effect chain, firing automation events at their exact sample.
func (t *Track) render(rt *automation.Runtime, pos int64, buf [][]float64) {
	t.mu.RLock()
	src, chain := t.source, t.effects
	t.mu.RUnlock()

	if src != nil {
		src.Fill(pos, buf)
	}

	frames := len(buf[0])
	end := pos + int64(frames)
	for off := 0; off < frames; {
		at := pos + int64(off)
		for _, ev := range t.cursor.Collect(at, at+1) {
			rt.Fire(ev, t)
		}

		spanEnd := end
		if next, ok := t.cursor.NextStart(at+1, end); ok {
			spanEnd = next
		}
		count := int(spanEnd - at)

		for _, fx := range chain {
			fx.Process(buf, off, count)
		}
		off += count
	}
}

// chase re-applies the latest event of every variant before pos.
func (t *Track) chase(rt *automation.Runtime, pos int64) int {
	applied := 0
	for _, ev := range t.cursor.Chase(pos) {
		if rt.Fire(ev, t) {
			applied++
		}
	}
	return applied
}

package automation

import (
	"sort"
	"sync"
)

type entry struct {
	ev  Event
	seq uint64
}

func (e entry) before(start int64, seq uint64) bool {
	s := e.ev.StartTime()
	return s < start || (s == start && e.seq < seq)
}

// Playlist holds the automation events of one track ordered by start time.
// Events with equal start times keep their insertion order.
type Playlist struct {
	mu      sync.Mutex
	track   Track
	entries []entry
	nextSeq uint64
}

// NewPlaylist creates an empty playlist owned by track.
func NewPlaylist(track Track) *Playlist {
	return &Playlist{track: track}
}

// Track returns the owning track.
func (p *Playlist) Track() Track { return p.track }

// Insert adds ev, detaching it from any other playlist first. Inserting an
// event that is already in p does nothing.
func (p *Playlist) Insert(ev Event) {
	b := ev.base()
	if prev := b.owner.Load(); prev != nil {
		if prev == p {
			return
		}
		prev.Remove(ev)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	e := entry{ev: ev, seq: p.nextSeq}
	p.nextSeq++
	p.insertLocked(e)
	b.owner.Store(p)
}

// Remove detaches ev and reports whether it was present.
func (p *Playlist) Remove(ev Event) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	i := p.indexLocked(ev.base())
	if i < 0 {
		return false
	}
	p.entries = append(p.entries[:i], p.entries[i+1:]...)
	ev.base().owner.CompareAndSwap(p, nil)
	return true
}

// Len returns the number of events.
func (p *Playlist) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// At returns the i-th event in playback order.
func (p *Playlist) At(i int) Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.entries[i].ev
}

// Events returns a snapshot of all events in playback order.
func (p *Playlist) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]Event, len(p.entries))
	for i, e := range p.entries {
		out[i] = e.ev
	}
	return out
}

// Clear detaches all events.
func (p *Playlist) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, e := range p.entries {
		e.ev.base().owner.CompareAndSwap(p, nil)
	}
	p.entries = p.entries[:0]
}

func (p *Playlist) startChanged(b *Base, start int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	i := p.indexLocked(b)
	if i < 0 {
		b.start.Store(start)
		return
	}
	e := p.entries[i]
	p.entries = append(p.entries[:i], p.entries[i+1:]...)
	b.start.Store(start)
	p.insertLocked(e)
}

func (p *Playlist) insertLocked(e entry) {
	start := e.ev.StartTime()
	i := sort.Search(len(p.entries), func(i int) bool {
		return !p.entries[i].before(start, e.seq)
	})
	p.entries = append(p.entries, entry{})
	copy(p.entries[i+1:], p.entries[i:])
	p.entries[i] = e
}

func (p *Playlist) indexLocked(b *Base) int {
	for i, e := range p.entries {
		if e.ev.base() == b {
			return i
		}
	}
	return -1
}

// firstAtOrAfterLocked returns the index of the first event starting at or
// after pos.
func (p *Playlist) firstAtOrAfterLocked(pos int64) int {
	return sort.Search(len(p.entries), func(i int) bool {
		return p.entries[i].ev.StartTime() >= pos
	})
}

// Cursor walks a playlist for the render path. It reuses an internal
// slice, so results are only valid until the next call.
type Cursor struct {
	pl      *Playlist
	scratch []Event
}

// NewCursor returns a cursor over pl.
func NewCursor(pl *Playlist) *Cursor {
	return &Cursor{pl: pl, scratch: make([]Event, 0, 16)}
}

// Collect returns the events with from <= start < to in playback order.
func (c *Cursor) Collect(from, to int64) []Event {
	c.scratch = c.scratch[:0]
	if to <= from {
		return c.scratch
	}

	p := c.pl
	p.mu.Lock()
	for i := p.firstAtOrAfterLocked(from); i < len(p.entries); i++ {
		ev := p.entries[i].ev
		if ev.StartTime() >= to {
			break
		}
		c.scratch = append(c.scratch, ev)
	}
	p.mu.Unlock()

	return c.scratch
}

// NextStart returns the earliest event start in [from, to).
func (c *Cursor) NextStart(from, to int64) (int64, bool) {
	p := c.pl
	p.mu.Lock()
	defer p.mu.Unlock()

	i := p.firstAtOrAfterLocked(from)
	if i >= len(p.entries) {
		return 0, false
	}
	s := p.entries[i].ev.StartTime()
	if s >= to {
		return 0, false
	}
	return s, true
}

// Chase returns, for every variant with an event before pos, the latest
// such event, ordered by start time. Applying them restores the automated
// state at pos after a seek.
func (c *Cursor) Chase(pos int64) []Event {
	c.scratch = c.scratch[:0]

	p := c.pl
	p.mu.Lock()
	for i := p.firstAtOrAfterLocked(pos) - 1; i >= 0; i-- {
		ev := p.entries[i].ev
		if !containsKind(c.scratch, ev.Kind()) {
			c.scratch = append(c.scratch, ev)
		}
	}
	p.mu.Unlock()

	for i, j := 0, len(c.scratch)-1; i < j; i, j = i+1, j-1 {
		c.scratch[i], c.scratch[j] = c.scratch[j], c.scratch[i]
	}
	return c.scratch
}

func containsKind(evs []Event, kind Kind) bool {
	for _, ev := range evs {
		if ev.Kind() == kind {
			return true
		}
	}
	return false
}

package automation

import "testing"

func TestPlaylistOrderIsStable(t *testing.T) {
	tb := newClock(t)
	tr := newFakeTrack(1)

	a := levelSpec.New(tb, 300, 1)
	b := levelSpec.New(tb, 100, 2)
	c := levelSpec.New(tb, 300, 3)
	d := levelSpec.New(tb, 100, 4)
	for _, ev := range []Event{a, b, c, d} {
		tr.AddAutomation(ev)
	}

	got := tr.pl.Events()
	want := []Event{b, d, a, c}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Events()[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestSetStartTimeResorts(t *testing.T) {
	tb := newClock(t)
	tr := newFakeTrack(1)

	a := levelSpec.New(tb, 100, 1)
	b := levelSpec.New(tb, 200, 2)
	c := levelSpec.New(tb, 300, 3)
	tr.AddAutomation(a)
	tr.AddAutomation(b)
	tr.AddAutomation(c)

	a.SetStartTime(250)
	if got := starts(tr.pl.Events()); !equalInts(got, []int64{200, 250, 300}) {
		t.Fatalf("starts = %v, want [200 250 300]", got)
	}

	// Equal start times fall back to insertion order.
	c.SetStartTime(200)
	got := tr.pl.Events()
	if got[0] != b || got[1] != c || got[2] != a {
		t.Fatalf("order after tie = %v", got)
	}
}

func TestInsertDetachesFromPreviousOwner(t *testing.T) {
	tb := newClock(t)
	a := newFakeTrack(1)
	b := newFakeTrack(2)

	ev := levelSpec.New(tb, 10, 1)
	a.AddAutomation(ev)
	b.AddAutomation(ev)

	if a.pl.Len() != 0 {
		t.Fatalf("old playlist Len() = %d, want 0", a.pl.Len())
	}
	if b.pl.Len() != 1 || ev.Owner() != b.pl {
		t.Fatal("event not owned by new playlist")
	}

	b.AddAutomation(ev)
	if b.pl.Len() != 1 {
		t.Fatalf("re-insert duplicated event, Len() = %d", b.pl.Len())
	}
}

func TestRemoveAndClear(t *testing.T) {
	tb := newClock(t)
	tr := newFakeTrack(1)

	a := levelSpec.New(tb, 10, 1)
	b := levelSpec.New(tb, 20, 1)
	tr.AddAutomation(a)
	tr.AddAutomation(b)

	if !tr.pl.Remove(a) || a.Owner() != nil {
		t.Fatal("Remove failed to detach")
	}
	if tr.pl.Remove(a) {
		t.Fatal("second Remove reported success")
	}
	if tr.pl.At(0) != b {
		t.Fatal("At(0) is not the remaining event")
	}

	tr.pl.Clear()
	if tr.pl.Len() != 0 || b.Owner() != nil {
		t.Fatal("Clear left events attached")
	}

	// Detached events no longer notify the playlist.
	b.SetStartTime(5)
	if tr.pl.Len() != 0 {
		t.Fatal("detached event re-entered playlist")
	}
}

func TestEventsFireInOrderOnce(t *testing.T) {
	tb := newClock(t)
	fx := &gainFX{}
	tr := newFakeTrack(1, fx)
	rt := NewRuntime(newRegistry(t), nil, nil)

	tr.AddAutomation(levelSpec.New(tb, 2000, 0.75))
	tr.AddAutomation(levelSpec.New(tb, 1000, 0.25))

	cur := NewCursor(tr.pl)
	var seen []float64
	const block = 256
	for pos := int64(0); pos < 4096; pos += block {
		for _, ev := range cur.Collect(pos, pos+block) {
			if rt.Fire(ev, tr) {
				seen = append(seen, fx.level)
			}
		}
		switch {
		case pos+block <= 1000:
			if fx.sets != 0 {
				t.Fatalf("block at %d: parameter set before 1000", pos)
			}
		case pos+block <= 2000:
			if fx.level != 0.25 {
				t.Fatalf("block at %d: level = %v, want 0.25", pos, fx.level)
			}
		}
	}

	if len(seen) != 2 || seen[0] != 0.25 || seen[1] != 0.75 {
		t.Fatalf("applied values = %v, want [0.25 0.75]", seen)
	}
	if fx.sets != 2 {
		t.Fatalf("parameter set %d times, want 2", fx.sets)
	}
}

func TestCursorNextStart(t *testing.T) {
	tb := newClock(t)
	tr := newFakeTrack(1)
	tr.AddAutomation(levelSpec.New(tb, 100, 1))
	tr.AddAutomation(levelSpec.New(tb, 300, 1))
	cur := NewCursor(tr.pl)

	tests := []struct {
		from, to int64
		want     int64
		ok       bool
	}{
		{0, 512, 100, true},
		{100, 512, 100, true},
		{101, 512, 300, true},
		{101, 300, 0, false},
		{400, 512, 0, false},
	}
	for _, tc := range tests {
		got, ok := cur.NextStart(tc.from, tc.to)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("NextStart(%d, %d) = (%d, %v), want (%d, %v)",
				tc.from, tc.to, got, ok, tc.want, tc.ok)
		}
	}

	if got := cur.Collect(50, 50); len(got) != 0 {
		t.Fatalf("Collect on empty range returned %d events", len(got))
	}
}

func TestCursorChase(t *testing.T) {
	tb := newClock(t)
	tr := newFakeTrack(1)

	l1 := levelSpec.New(tb, 100, 0.1)
	t1 := trimSpec.New(tb, 150, 0.2)
	l2 := levelSpec.New(tb, 200, 0.3)
	l3 := levelSpec.New(tb, 500, 0.4)
	for _, ev := range []Event{l1, t1, l2, l3} {
		tr.AddAutomation(ev)
	}

	cur := NewCursor(tr.pl)
	got := cur.Chase(400)
	if len(got) != 2 || got[0] != t1 || got[1] != l2 {
		t.Fatalf("Chase(400) = %v, want [%v %v]", got, t1, l2)
	}

	if got := cur.Chase(100); len(got) != 0 {
		t.Fatalf("Chase(100) = %v, want none", got)
	}
}

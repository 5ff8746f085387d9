package automation

import (
	"sync"
	"testing"

	"github.com/cwbudde/algo-automation/persist"
)

func TestImportWhileFiring(t *testing.T) {
	fx := &gainFX{}
	tr := newFakeTrack(1, fx)
	rt := NewRuntime(newRegistry(t), nil, nil)

	ev := levelSpec.New(newClock(t), 100, 0)
	tr.AddAutomation(ev)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := range 500 {
			el := persist.NewElement("GainLevel")
			el.SetFloat("Level", float64(i%10)/10)
			if err := ev.Import(el); err != nil {
				t.Error(err)
				return
			}
		}
	}()

	for range 500 {
		rt.Fire(ev, tr)
		if v := ev.Value(); v < 0 || v > 0.9 {
			t.Fatalf("Value() = %v, want within [0, 0.9]", v)
		}
	}
	wg.Wait()

	if ev.StartTime() != 100 {
		t.Fatalf("StartTime() = %d, want 100", ev.StartTime())
	}
}

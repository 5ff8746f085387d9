package control

import (
	"io"

	"github.com/sirupsen/logrus"

	"github.com/cwbudde/algo-automation/automation"
)

// Surface applies gestures against a registry's tracking flags.
type Surface struct {
	reg *automation.Registry
	log logrus.FieldLogger
}

// NewSurface returns a surface using reg for tracking flags. log may be nil.
func NewSurface(reg *automation.Registry, log logrus.FieldLogger) *Surface {
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	return &Surface{reg: reg, log: log}
}

// Touch starts a gesture on p. Playback automation of p's variant is
// suspended on tr, and the current value is recorded.
func (s *Surface) Touch(tr automation.Track, p automation.Parameter) {
	s.setTracking(tr, p, true)
	s.record(tr, p)
}

// Change sets p to v and records the new value.
func (s *Surface) Change(tr automation.Track, p automation.Parameter, v float64) {
	p.Set(v)
	s.record(tr, p)
}

// Release ends a gesture on p and resumes playback automation.
func (s *Surface) Release(tr automation.Track, p automation.Parameter) {
	s.setTracking(tr, p, false)
}

// Tracking reports whether p is currently touched on tr.
func (s *Surface) Tracking(tr automation.Track, p automation.Parameter) bool {
	h := s.reg.Handler(p.Kind())
	return h != nil && h.IsTracking(tr.ID())
}

func (s *Surface) setTracking(tr automation.Track, p automation.Parameter, on bool) {
	h := s.reg.Handler(p.Kind())
	if h == nil {
		s.log.WithField("kind", p.Kind()).Warn("control: parameter kind not registered")
		return
	}
	h.SetTracking(tr.ID(), on)
}

func (s *Surface) record(tr automation.Track, p automation.Parameter) {
	if !tr.AutomationEnabled() {
		return
	}
	ev := p.Record()
	tr.AddAutomation(ev)
	s.log.WithFields(logrus.Fields{
		"track": tr.ID(),
		"kind":  ev.Kind(),
		"time":  ev.StartTime(),
	}).Debug("automation recorded")
}

package automation

import (
	"context"
	"io"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// Notification describes an applied automation event.
type Notification struct {
	Track TrackID
	Kind  Kind
	Time  int64
	Value float64
}

// DefaultQueueSize is the notification buffer used when none is given.
const DefaultQueueSize = 256

// Dispatcher delivers notifications from the render path to subscribers
// on another goroutine. Posting never blocks; when the queue is full the
// notification is dropped and counted.
type Dispatcher struct {
	queue    chan Notification
	dropped  atomic.Uint64
	reported uint64

	mu   sync.RWMutex
	subs []func(Notification)

	log logrus.FieldLogger
}

// NewDispatcher creates a dispatcher with the given queue size.
func NewDispatcher(size int, log logrus.FieldLogger) *Dispatcher {
	if size <= 0 {
		size = DefaultQueueSize
	}
	if log == nil {
		log = discardLogger()
	}
	return &Dispatcher{queue: make(chan Notification, size), log: log}
}

// Dispatch posts n without blocking and reports whether it was queued.
func (d *Dispatcher) Dispatch(n Notification) bool {
	select {
	case d.queue <- n:
		return true
	default:
		d.dropped.Add(1)
		return false
	}
}

// Dropped returns the number of notifications lost to a full queue.
func (d *Dispatcher) Dropped() uint64 { return d.dropped.Load() }

// Subscribe registers fn to receive notifications.
func (d *Dispatcher) Subscribe(fn func(Notification)) {
	d.mu.Lock()
	d.subs = append(d.subs, fn)
	d.mu.Unlock()
}

// Run delivers notifications on the calling goroutine until ctx is done.
// Run and Drain must not be used concurrently.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case n := <-d.queue:
			d.deliver(n)
		}
	}
}

// Drain delivers everything currently queued and returns the count.
func (d *Dispatcher) Drain() int {
	count := 0
	for {
		select {
		case n := <-d.queue:
			d.deliver(n)
			count++
		default:
			return count
		}
	}
}

func (d *Dispatcher) deliver(n Notification) {
	if dropped := d.dropped.Load(); dropped != d.reported {
		d.log.WithField("dropped", dropped-d.reported).Debug("automation notifications dropped")
		d.reported = dropped
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, fn := range d.subs {
		fn(n)
	}
}

// Runtime fires automation events against tracks.
type Runtime struct {
	reg  *Registry
	disp *Dispatcher
	log  logrus.FieldLogger
}

// NewRuntime wires a runtime. disp and log may be nil.
func NewRuntime(reg *Registry, disp *Dispatcher, log logrus.FieldLogger) *Runtime {
	if log == nil {
		log = discardLogger()
	}
	return &Runtime{reg: reg, disp: disp, log: log}
}

// Registry returns the registry the runtime consults for tracking flags.
func (rt *Runtime) Registry() *Registry { return rt.reg }

// Fire applies ev to tr unless tr is tracking ev's variant, then notifies
// subscribers. It reports whether the value was applied. A nil tr means
// the track owning ev's playlist.
func (rt *Runtime) Fire(ev Event, tr Track) bool {
	if tr == nil {
		if pl := ev.Owner(); pl != nil {
			tr = pl.Track()
		}
	}
	if tr == nil {
		rt.log.WithFields(logrus.Fields{
			"kind": ev.Kind(),
			"time": ev.StartTime(),
		}).Debug("automation event has no track")
		return false
	}

	if h := rt.reg.Handler(ev.Kind()); h != nil && h.IsTracking(tr.ID()) {
		return false
	}

	if !ev.Apply(tr) {
		rt.log.WithFields(logrus.Fields{
			"track": tr.ID(),
			"kind":  ev.Kind(),
			"time":  ev.StartTime(),
		}).Debug("automation target not resolvable")
		return false
	}

	if rt.disp != nil {
		rt.disp.Dispatch(Notification{
			Track: tr.ID(),
			Kind:  ev.Kind(),
			Time:  ev.StartTime(),
			Value: ev.Value(),
		})
	}
	return true
}

func discardLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

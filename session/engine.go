package session

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/cwbudde/algo-vecmath"
	"github.com/sirupsen/logrus"

	"github.com/cwbudde/algo-automation/automation"
	"github.com/cwbudde/algo-automation/dsp/buffer"
	"github.com/cwbudde/algo-automation/dsp/core"
	"github.com/cwbudde/algo-automation/dsp/timebase"
)

// Option configures an Engine.
type Option func(*engineConfig)

type engineConfig struct {
	processor  []core.ProcessorOption
	tempo      float64
	log        logrus.FieldLogger
	dispatcher *automation.Dispatcher
	registry   *automation.Registry
	effects    *EffectRegistry
}

// WithProcessor sets sample rate, block size and channel count.
func WithProcessor(opts ...core.ProcessorOption) Option {
	return func(cfg *engineConfig) {
		cfg.processor = append(cfg.processor, opts...)
	}
}

// WithTempo sets the initial tempo in beats per minute.
func WithTempo(bpm float64) Option {
	return func(cfg *engineConfig) {
		cfg.tempo = bpm
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(log logrus.FieldLogger) Option {
	return func(cfg *engineConfig) {
		cfg.log = log
	}
}

// WithDispatcher sets the notification dispatcher.
func WithDispatcher(d *automation.Dispatcher) Option {
	return func(cfg *engineConfig) {
		cfg.dispatcher = d
	}
}

// WithRegistry sets the automation registry. The registry must already
// contain every variant used by the session.
func WithRegistry(reg *automation.Registry) Option {
	return func(cfg *engineConfig) {
		cfg.registry = reg
	}
}

// WithEffects sets the effect registry.
func WithEffects(r *EffectRegistry) Option {
	return func(cfg *engineConfig) {
		cfg.effects = r
	}
}

// ErrGeometry reports an output buffer that does not match the engine.
var ErrGeometry = errors.New("session: output geometry mismatch")

// Engine renders a set of tracks in step with a playback clock.
type Engine struct {
	mu sync.Mutex

	cfg     core.ProcessorConfig
	clock   *timebase.Clock
	reg     *automation.Registry
	fx      *EffectRegistry
	disp    *automation.Dispatcher
	runtime *automation.Runtime
	log     logrus.FieldLogger
	pool    *buffer.Pool

	tracks  []*Track
	running bool
}

// NewEngine creates a stopped engine with no tracks.
func NewEngine(opts ...Option) (*Engine, error) {
	cfg := engineConfig{tempo: timebase.DefaultTempo}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	pc := core.ApplyProcessorOptions(cfg.processor...)
	clock, err := timebase.NewClock(pc.SampleRate, cfg.tempo)
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}

	if cfg.log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		cfg.log = l
	}
	if cfg.registry == nil {
		cfg.registry = DefaultAutomation()
	}
	if cfg.effects == nil {
		cfg.effects = DefaultEffects()
	}
	if cfg.dispatcher == nil {
		cfg.dispatcher = automation.NewDispatcher(automation.DefaultQueueSize, cfg.log)
	}

	return &Engine{
		cfg:     pc,
		clock:   clock,
		reg:     cfg.registry,
		fx:      cfg.effects,
		disp:    cfg.dispatcher,
		runtime: automation.NewRuntime(cfg.registry, cfg.dispatcher, cfg.log),
		log:     cfg.log,
		pool:    buffer.NewPool(),
	}, nil
}

// Config returns the processing configuration.
func (e *Engine) Config() core.ProcessorConfig { return e.cfg }

// Clock returns the playback clock.
func (e *Engine) Clock() *timebase.Clock { return e.clock }

// Registry returns the automation registry.
func (e *Engine) Registry() *automation.Registry { return e.reg }

// Dispatcher returns the notification dispatcher.
func (e *Engine) Dispatcher() *automation.Dispatcher { return e.disp }

// Runtime returns the automation runtime.
func (e *Engine) Runtime() *automation.Runtime { return e.runtime }

// AddTrack appends a new empty track.
func (e *Engine) AddTrack(name string) *Track {
	e.mu.Lock()
	defer e.mu.Unlock()

	t := newTrack(automation.TrackID(len(e.tracks)+1), name)
	e.tracks = append(e.tracks, t)
	return t
}

// Tracks returns a snapshot of all tracks.
func (e *Engine) Tracks() []*Track {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*Track(nil), e.tracks...)
}

// Track returns the track with the given id, or nil.
func (e *Engine) Track(id automation.TrackID) *Track {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, t := range e.tracks {
		if t.id == id {
			return t
		}
	}
	return nil
}

// AddEffect creates an effect of the given kind at the end of t's chain.
// The effect is activated immediately when the engine is running.
func (e *Engine) AddEffect(t *Track, kind automation.EffectKind) (Processor, error) {
	p, err := e.fx.New(kind, e.clock)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		if err := p.Activate(e.cfg.Channels); err != nil {
			return nil, err
		}
	}
	t.addEffect(p)
	return p, nil
}

// Start activates every effect and chases automation to the current
// position.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return nil
	}

	var active []Processor
	for _, t := range e.tracks {
		for _, p := range t.Effects() {
			if err := p.Activate(e.cfg.Channels); err != nil {
				for _, a := range active {
					a.Deactivate()
				}
				return fmt.Errorf("session: track %q: %w", t.name, err)
			}
			active = append(active, p)
		}
	}

	e.running = true
	pos := e.clock.Position()
	for _, t := range e.tracks {
		t.chase(e.runtime, pos)
	}

	e.log.WithFields(logrus.Fields{
		"tracks":     len(e.tracks),
		"effects":    len(active),
		"sampleRate": e.cfg.SampleRate,
		"tempo":      e.clock.Tempo(),
	}).Info("engine started")
	return nil
}

// Stop deactivates every effect.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running {
		return
	}
	for _, t := range e.tracks {
		for _, p := range t.Effects() {
			p.Deactivate()
		}
	}
	e.running = false
	e.log.Info("engine stopped")
}

// Running reports whether the engine is started.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Seek moves the playback position and chases automation on every track.
func (e *Engine) Seek(pos int64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.clock.SetPosition(pos)
	pos = e.clock.Position()

	applied := 0
	for _, t := range e.tracks {
		applied += t.chase(e.runtime, pos)
	}
	e.log.WithFields(logrus.Fields{"position": pos, "applied": applied}).Debug("seek")
}

// Render mixes one block of all tracks into out and advances the clock.
// out must have Config().Channels channels of equal length. While stopped
// Render writes silence and does not advance.
func (e *Engine) Render(out [][]float64) (int, error) {
	if len(out) != e.cfg.Channels {
		return 0, fmt.Errorf("%w: %d channels, want %d", ErrGeometry, len(out), e.cfg.Channels)
	}
	frames := len(out[0])
	for _, ch := range out {
		if len(ch) != frames {
			return 0, fmt.Errorf("%w: ragged channels", ErrGeometry)
		}
		core.Zero(ch)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running || frames == 0 {
		return 0, nil
	}

	pos := e.clock.Position()
	for _, t := range e.tracks {
		blk := e.pool.Get(len(out), frames)
		t.render(e.runtime, pos, blk.Channels())

		gain := t.Gain()
		for c, ch := range blk.Channels() {
			if gain != 1 {
				vecmath.ScaleBlock(ch, ch, gain)
			}
			vecmath.AddBlockInPlace(out[c], ch)
		}
		e.pool.Put(blk)
	}

	e.clock.Advance(frames)
	return frames, nil
}

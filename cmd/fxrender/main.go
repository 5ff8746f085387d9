// Command fxrender renders audio through an automated effects session.
//
// Usage:
//
//	fxrender [flags]
//
// The session file (.xml, .yaml or .yml) supplies tempo, tracks, effects
// and automation. Without -session a single track with a default Delay
// is used. The input is either a WAV file given with -in, applied to every
// track, or a unit impulse with -impulse, in which case the echo structure
// of the result is printed.
//
// Examples:
//
//	fxrender -session song.yaml -in dry.wav -out wet.wav
//	fxrender -session song.xml -impulse -tail 2
//	fxrender -in dry.wav -play
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"os/signal"
	"text/tabwriter"

	"github.com/sirupsen/logrus"

	"github.com/cwbudde/algo-automation/automation"
	"github.com/cwbudde/algo-automation/dsp/core"
	"github.com/cwbudde/algo-automation/dsp/effects"
	"github.com/cwbudde/algo-automation/internal/playback"
	"github.com/cwbudde/algo-automation/internal/wavfile"
	"github.com/cwbudde/algo-automation/measure/echo"
	"github.com/cwbudde/algo-automation/session"
)

type config struct {
	session  string
	in       string
	out      string
	impulse  bool
	tail     float64
	block    int
	bitDepth int
	play     bool
	maxTaps  int
}

func main() {
	var cfg config
	flag.StringVar(&cfg.session, "session", "", "session file (.xml, .yaml, .yml)")
	flag.StringVar(&cfg.in, "in", "", "input WAV file")
	flag.StringVar(&cfg.out, "out", "", "output WAV file")
	flag.BoolVar(&cfg.impulse, "impulse", false, "render a unit impulse and print echo analysis")
	flag.Float64Var(&cfg.tail, "tail", 1, "seconds rendered after the input ends")
	flag.IntVar(&cfg.block, "block", 512, "render block size in frames")
	flag.IntVar(&cfg.bitDepth, "bits", wavfile.DefaultBitDepth, "output bit depth (16, 24, 32)")
	flag.BoolVar(&cfg.play, "play", false, "play the result on the default output device")
	flag.IntVar(&cfg.maxTaps, "taps", 16, "maximum echo taps printed with -impulse")
	verbose := flag.Bool("v", false, "verbose logging")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: fxrender [flags]\n\n")
		fmt.Fprintf(os.Stderr, "Renders audio through an automated Delay/Flanger session.\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  fxrender -session song.yaml -in dry.wav -out wet.wav\n")
		fmt.Fprintf(os.Stderr, "  fxrender -session song.xml -impulse -tail 2\n")
	}
	flag.Parse()

	log := logrus.New()
	log.SetOutput(os.Stderr)
	if *verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, cfg, os.Stdout, log); err != nil {
		log.WithError(err).Error("fxrender failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config, stdout io.Writer, log logrus.FieldLogger) error {
	if (cfg.in == "") == !cfg.impulse {
		return errors.New("exactly one of -in and -impulse is required")
	}
	if cfg.tail < 0 || !core.IsFinite(cfg.tail) {
		return fmt.Errorf("invalid -tail %v", cfg.tail)
	}

	var input *wavfile.Audio
	channels, inputRate := 1, 0.0
	if cfg.in != "" {
		var err error
		if input, err = wavfile.Read(cfg.in); err != nil {
			return err
		}
		channels, inputRate = len(input.Channels), float64(input.SampleRate)
	}

	e, err := openEngine(cfg, channels, inputRate, log)
	if err != nil {
		return err
	}
	sampleRate := e.Config().SampleRate

	if input != nil && float64(input.SampleRate) != sampleRate {
		return fmt.Errorf("input is %d Hz, session is %v Hz", input.SampleRate, sampleRate)
	}
	if input == nil {
		input = &wavfile.Audio{SampleRate: int(sampleRate), Channels: [][]float64{{1}}}
	}

	for _, t := range e.Tracks() {
		t.SetSource(session.NewClip(0, input.Channels))
	}

	stopNotify := watchNotifications(ctx, e, log)
	defer stopNotify()

	frames := input.Frames() + int(cfg.tail*sampleRate)
	rendered, err := render(ctx, e, frames)
	if err != nil {
		return err
	}

	if cfg.out != "" {
		out := &wavfile.Audio{SampleRate: int(sampleRate), Channels: rendered}
		if err := wavfile.Write(cfg.out, out, cfg.bitDepth); err != nil {
			return err
		}
		log.WithFields(logrus.Fields{"path": cfg.out, "frames": frames}).Info("output written")
	}

	if cfg.impulse {
		if err := report(stdout, sampleRate, rendered[0], cfg.maxTaps); err != nil {
			return err
		}
	}

	if cfg.play {
		src := playback.NewReader(&planarRenderer{data: rendered}, len(rendered), e.Config().BlockSize, int64(frames))
		return playback.Play(ctx, src, int(sampleRate), len(rendered))
	}
	return nil
}

// openEngine loads the session, or builds a single Delay track. A session
// sample rate overrides the input's.
func openEngine(cfg config, channels int, sampleRate float64, log logrus.FieldLogger) (*session.Engine, error) {
	opts := []session.Option{
		session.WithLogger(log),
		session.WithProcessor(
			core.WithSampleRate(sampleRate),
			core.WithChannels(channels),
			core.WithBlockSize(cfg.block),
		),
	}

	if cfg.session != "" {
		return session.Open(cfg.session, opts...)
	}

	e, err := session.NewEngine(opts...)
	if err != nil {
		return nil, err
	}
	if _, err := e.AddEffect(e.AddTrack("main"), effects.DelayKind); err != nil {
		return nil, err
	}
	return e, nil
}

// watchNotifications logs applied automation on a separate goroutine.
func watchNotifications(ctx context.Context, e *session.Engine, log logrus.FieldLogger) func() {
	e.Dispatcher().Subscribe(func(n automation.Notification) {
		log.WithFields(logrus.Fields{
			"track": n.Track,
			"kind":  n.Kind,
			"time":  n.Time,
			"value": n.Value,
		}).Debug("automation applied")
	})

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = e.Dispatcher().Run(ctx)
	}()
	return func() {
		cancel()
		<-done
		e.Dispatcher().Drain()
	}
}

func render(ctx context.Context, e *session.Engine, frames int) ([][]float64, error) {
	cfg := e.Config()
	out := make([][]float64, cfg.Channels)
	for c := range out {
		out[c] = make([]float64, frames)
	}

	if err := e.Start(); err != nil {
		return nil, err
	}
	defer e.Stop()

	block := make([][]float64, cfg.Channels)
	for pos := 0; pos < frames; pos += cfg.BlockSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n := min(cfg.BlockSize, frames-pos)
		for c := range block {
			block[c] = out[c][pos : pos+n]
		}
		if _, err := e.Render(block); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func report(w io.Writer, sampleRate float64, ir []float64, maxTaps int) error {
	r, err := echo.NewAnalyzer(sampleRate).Analyze(ir)
	if err != nil && !errors.Is(err, echo.ErrNoEchoes) {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Tap\tSample\tTime [ms]\tAmplitude\tLevel [dB]\n")
	fmt.Fprintf(tw, "---\t------\t---------\t---------\t----------\n")
	for i, tap := range r.Taps[:min(len(r.Taps), maxTaps)] {
		fmt.Fprintf(tw, "%d\t%d\t%.3f\t%.6f\t%.2f\n",
			i, tap.Index, float64(tap.Index)*1000/sampleRate, tap.Amplitude, core.LinearToDB(math.Abs(tap.Amplitude)))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(r.Taps) < 2 {
		_, err = fmt.Fprintln(w, "no echoes found")
		return err
	}
	_, err = fmt.Fprintf(w, "delay %.3f ms, feedback %.4f, decay %.3f s\n", r.Delay*1000, r.Feedback, r.DecayTime)
	return err
}

// planarRenderer replays already rendered audio.
type planarRenderer struct {
	data [][]float64
	pos  int
}

func (p *planarRenderer) Render(out [][]float64) (int, error) {
	n := 0
	for c, ch := range out {
		n = copy(ch, p.data[c][min(p.pos, len(p.data[c])):])
		clear(ch[n:])
	}
	p.pos += len(out[0])
	return len(out[0]), nil
}

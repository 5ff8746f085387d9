// Package playback streams rendered audio to the system output.
package playback

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/cwbudde/algo-automation/dsp/buffer"
)

// Renderer produces planar audio blocks.
type Renderer interface {
	Render(out [][]float64) (int, error)
}

const bytesPerSample = 4

// Reader adapts a Renderer to the interleaved float32 little-endian byte
// stream an output device consumes.
type Reader struct {
	r      Renderer
	block  *buffer.Block
	inter  []float64
	frames int64 // remaining frames, negative for unbounded
	err    error
}

// NewReader reads frames frames from r in blocks of blockSize, or forever
// when frames is negative.
func NewReader(r Renderer, channels, blockSize int, frames int64) *Reader {
	return &Reader{
		r:      r,
		block:  buffer.New(channels, blockSize),
		inter:  make([]float64, channels*blockSize),
		frames: frames,
	}
}

// Read fills p with whole frames.
func (rd *Reader) Read(p []byte) (int, error) {
	if rd.err != nil {
		return 0, rd.err
	}
	if rd.frames == 0 {
		return 0, io.EOF
	}

	channels := rd.block.NumChannels()
	frameBytes := channels * bytesPerSample
	want := len(p) / frameBytes
	if want == 0 {
		return 0, io.ErrShortBuffer
	}
	want = min(want, len(rd.inter)/channels)
	if rd.frames > 0 {
		want = int(min(int64(want), rd.frames))
	}

	rd.block.Resize(channels, want)
	if _, err := rd.r.Render(rd.block.Channels()); err != nil {
		rd.err = err
		return 0, err
	}
	n := rd.block.Interleave(rd.inter)
	for i, v := range rd.inter[:n] {
		binary.LittleEndian.PutUint32(p[i*bytesPerSample:], math.Float32bits(float32(v)))
	}

	if rd.frames > 0 {
		rd.frames -= int64(want)
	}
	return n * bytesPerSample, nil
}

// Play opens the default output device and plays src until it ends or ctx
// is done.
func Play(ctx context.Context, src io.Reader, sampleRate, channels int) error {
	otoCtx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: channels,
		Format:       oto.FormatFloat32LE,
	})
	if err != nil {
		return fmt.Errorf("playback: open output: %w", err)
	}

	select {
	case <-ready:
	case <-ctx.Done():
		return ctx.Err()
	}

	player := otoCtx.NewPlayer(src)
	defer player.Close()
	player.Play()

	tick := time.NewTicker(20 * time.Millisecond)
	defer tick.Stop()
	for player.IsPlaying() {
		select {
		case <-ctx.Done():
			player.Pause()
			return ctx.Err()
		case <-tick.C:
		}
	}

	if err := player.Err(); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("playback: %w", err)
	}
	return nil
}

// Package wavfile reads and writes planar float64 audio as PCM WAV files.
package wavfile

import (
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// ErrInvalid reports a file that is not a readable PCM WAV file.
var ErrInvalid = errors.New("wavfile: invalid WAV file")

// DefaultBitDepth is the bit depth used by Write when none is given.
const DefaultBitDepth = 16

// Audio is planar audio with its sample rate.
type Audio struct {
	SampleRate int
	Channels   [][]float64
}

// Frames returns the number of frames.
func (a *Audio) Frames() int {
	if len(a.Channels) == 0 {
		return 0
	}
	return len(a.Channels[0])
}

// Read decodes a PCM WAV file into samples in [-1, 1).
func Read(path string) (*Audio, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("wavfile: open %s: %w", path, err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%w: %s", ErrInvalid, path)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("wavfile: decode %s: %w", path, err)
	}

	channels := int(dec.NumChans)
	depth := int(dec.BitDepth)
	if channels <= 0 || depth <= 0 {
		return nil, fmt.Errorf("%w: %s: %d channels, %d bits", ErrInvalid, path, channels, depth)
	}

	frames := len(buf.Data) / channels
	out := &Audio{SampleRate: int(dec.SampleRate), Channels: make([][]float64, channels)}
	for c := range out.Channels {
		out.Channels[c] = make([]float64, frames)
	}

	scale := 1 / math.Exp2(float64(depth-1))
	for i := range frames {
		for c := range channels {
			out.Channels[c][i] = float64(buf.Data[i*channels+c]) * scale
		}
	}
	return out, nil
}

// Write encodes a as integer PCM with the given bit depth (16, 24 or 32;
// 0 means DefaultBitDepth). Samples outside [-1, 1] are clipped.
func Write(path string, a *Audio, bitDepth int) (err error) {
	if bitDepth == 0 {
		bitDepth = DefaultBitDepth
	}
	switch bitDepth {
	case 16, 24, 32:
	default:
		return fmt.Errorf("wavfile: unsupported bit depth %d", bitDepth)
	}
	if len(a.Channels) == 0 || a.SampleRate <= 0 {
		return fmt.Errorf("wavfile: empty audio or sample rate %d", a.SampleRate)
	}

	channels := len(a.Channels)
	frames := a.Frames()
	fullScale := math.Exp2(float64(bitDepth - 1))

	data := make([]int, frames*channels)
	for i := range frames {
		for c, ch := range a.Channels {
			v := 0.0
			if i < len(ch) {
				v = max(-1, min(1, ch[i]))
			}
			data[i*channels+c] = int(math.Round(min(v*fullScale, fullScale-1)))
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("wavfile: create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("wavfile: close %s: %w", path, cerr)
		}
	}()

	enc := wav.NewEncoder(f, a.SampleRate, bitDepth, channels, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: a.SampleRate},
		Data:           data,
		SourceBitDepth: bitDepth,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("wavfile: encode %s: %w", path, err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("wavfile: finish %s: %w", path, err)
	}
	return nil
}

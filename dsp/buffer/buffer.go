package buffer

// Block is a planar multichannel sample buffer: one []float64 per channel,
// all of equal length. DSP functions accept the raw [][]float64 returned by
// Channels; Block only manages allocation and reuse.
type Block struct {
	channels [][]float64
	frames   int
}

// New returns a zero-filled Block with the given geometry.
func New(channels, frames int) *Block {
	b := &Block{}
	b.Resize(channels, frames)
	return b
}

// FromChannels wraps existing channel slices without copying. The frame
// count is the length of the shortest channel.
func FromChannels(ch [][]float64) *Block {
	frames := 0
	for i, c := range ch {
		if i == 0 || len(c) < frames {
			frames = len(c)
		}
	}
	return &Block{channels: ch, frames: frames}
}

// Channels returns the underlying planar slices.
func (b *Block) Channels() [][]float64 {
	return b.channels
}

// Channel returns the samples of channel c.
func (b *Block) Channel(c int) []float64 {
	return b.channels[c]
}

// NumChannels returns the channel count.
func (b *Block) NumChannels() int {
	return len(b.channels)
}

// Frames returns the number of samples per channel.
func (b *Block) Frames() int {
	return b.frames
}

// Resize sets the geometry, reusing existing capacity when possible.
// Newly exposed samples are zeroed.
func (b *Block) Resize(channels, frames int) {
	if channels < 0 {
		channels = 0
	}
	if frames < 0 {
		frames = 0
	}

	if cap(b.channels) >= channels {
		b.channels = b.channels[:channels]
	} else {
		grown := make([][]float64, channels)
		copy(grown, b.channels)
		b.channels = grown
	}

	for c := range b.channels {
		s := b.channels[c]
		oldLen := len(s)
		if cap(s) >= frames {
			s = s[:frames]
		} else {
			grown := make([]float64, frames)
			copy(grown, s)
			s = grown
		}
		for i := oldLen; i < frames; i++ {
			s[i] = 0
		}
		b.channels[c] = s
	}
	b.frames = frames
}

// Zero sets all samples to 0.
func (b *Block) Zero() {
	for _, s := range b.channels {
		for i := range s {
			s[i] = 0
		}
	}
}

// Interleave writes the block as interleaved frames into dst and returns
// the number of values written.
func (b *Block) Interleave(dst []float64) int {
	n := len(b.channels)
	if n == 0 {
		return 0
	}
	frames := b.frames
	if len(dst)/n < frames {
		frames = len(dst) / n
	}
	for c, s := range b.channels {
		for i := 0; i < frames; i++ {
			dst[i*n+c] = s[i]
		}
	}
	return frames * n
}

// Deinterleave fills the block from interleaved frames in src and returns
// the number of frames read.
func (b *Block) Deinterleave(src []float64) int {
	n := len(b.channels)
	if n == 0 {
		return 0
	}
	frames := b.frames
	if len(src)/n < frames {
		frames = len(src) / n
	}
	for c, s := range b.channels {
		for i := 0; i < frames; i++ {
			s[i] = src[i*n+c]
		}
	}
	return frames
}

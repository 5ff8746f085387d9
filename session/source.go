package session

// Source supplies a track's input audio.
type Source interface {
	// Fill writes the frames for positions [pos, pos+len(dst[c])) into dst.
	// dst is zeroed beforehand; positions without audio may be skipped.
	Fill(pos int64, dst [][]float64)
}

// Clip is planar audio placed at a fixed start position.
type Clip struct {
	Start int64
	Data  [][]float64
}

// NewClip returns a clip of data starting at start.
func NewClip(start int64, data [][]float64) *Clip {
	return &Clip{Start: start, Data: data}
}

// Len returns the clip length in frames.
func (c *Clip) Len() int {
	if len(c.Data) == 0 {
		return 0
	}
	return len(c.Data[0])
}

// Fill copies the overlapping part of the clip. A mono clip feeds every
// output channel; extra clip channels are dropped.
func (c *Clip) Fill(pos int64, dst [][]float64) {
	if len(c.Data) == 0 || len(dst) == 0 {
		return
	}

	frames := int64(len(dst[0]))
	from := max(pos, c.Start)
	to := min(pos+frames, c.Start+int64(c.Len()))
	if from >= to {
		return
	}

	for ch := range dst {
		src := c.Data[min(ch, len(c.Data)-1)]
		copy(dst[ch][from-pos:to-pos], src[from-c.Start:to-c.Start])
	}
}

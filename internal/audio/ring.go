package audio

// Ring is the preroll buffer: a preallocated fixed-capacity sample arena
// with an explicit write cursor and a filled flag. While the recorder is
// idle every frame is pushed here, continuously overwriting the oldest
// samples, so the sound immediately preceding a trigger survives into
// the recording.
type Ring struct {
	buf    []int16
	w      int
	filled bool
}

// NewRing creates a ring holding capacity samples.
func NewRing(capacity int) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring{buf: make([]int16, capacity)}
}

// Capacity returns the fixed sample capacity.
func (r *Ring) Capacity() int {
	return len(r.buf)
}

// Len returns the number of valid samples currently buffered.
func (r *Ring) Len() int {
	if r.filled {
		return len(r.buf)
	}
	return r.w
}

// Push overwrites the ring with the given samples.
func (r *Ring) Push(samples []int16) {
	for _, s := range samples {
		r.buf[r.w] = s
		r.w++
		if r.w == len(r.buf) {
			r.w = 0
			r.filled = true
		}
	}
}

// Drain returns the buffered samples oldest-first and resets the ring.
func (r *Ring) Drain() []int16 {
	n := r.Len()
	out := make([]int16, 0, n)
	if r.filled {
		out = append(out, r.buf[r.w:]...)
	}
	out = append(out, r.buf[:r.w]...)
	r.Reset()
	return out
}

// Reset discards all buffered samples.
func (r *Ring) Reset() {
	r.w = 0
	r.filled = false
}

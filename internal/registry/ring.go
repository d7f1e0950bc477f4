package registry

import "time"

// tempRing keeps the most recent CPU temperature samples of a unit. It is
// always accessed under the registry lock.
type tempRing struct {
	samples []TempSample
	pos     int
	full    bool
}

func newTempRing(size int) *tempRing {
	if size < 1 {
		size = 1
	}
	return &tempRing{samples: make([]TempSample, size)}
}

func (r *tempRing) add(at time.Time, degF float64) {
	r.samples[r.pos] = TempSample{At: at, DegF: degF}
	r.pos = (r.pos + 1) % len(r.samples)
	if r.pos == 0 {
		r.full = true
	}
}

// points returns the samples oldest first.
func (r *tempRing) points() []TempSample {
	if !r.full {
		out := make([]TempSample, r.pos)
		copy(out, r.samples[:r.pos])
		return out
	}
	out := make([]TempSample, 0, len(r.samples))
	out = append(out, r.samples[r.pos:]...)
	out = append(out, r.samples[:r.pos]...)
	return out
}

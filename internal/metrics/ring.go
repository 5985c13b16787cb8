package metrics

import "time"

// ring keeps the newest outcomes in a fixed-size buffer.
type ring struct {
	buf   []Outcome
	head  int // next write position
	count int
}

func newRing(size int) *ring {
	return &ring{buf: make([]Outcome, size)}
}

func (r *ring) push(o Outcome) {
	r.buf[r.head] = o
	r.head = (r.head + 1) % len(r.buf)
	if r.count < len(r.buf) {
		r.count++
	}
}

// items returns the retained outcomes, oldest first.
func (r *ring) items() []Outcome {
	out := make([]Outcome, 0, r.count)
	start := (r.head - r.count + len(r.buf)) % len(r.buf)
	for i := 0; i < r.count; i++ {
		out = append(out, r.buf[(start+i)%len(r.buf)])
	}
	return out
}

// series buckets request counts into fixed intervals since start. Points
// are appended in time order; once full, the oldest are discarded.
type series struct {
	start    time.Time
	interval time.Duration
	max      int
	pts      []SeriesPoint
}

func newSeries(start time.Time, interval time.Duration, max int) *series {
	return &series{start: start, interval: interval, max: max}
}

func (s *series) record(at time.Time, success bool) {
	offset := at.Sub(s.start).Truncate(s.interval)
	if offset < 0 {
		offset = 0
	}

	n := len(s.pts)
	if n == 0 || s.pts[n-1].Offset < offset {
		if n == s.max {
			copy(s.pts, s.pts[1:])
			s.pts = s.pts[:n-1]
		}
		s.pts = append(s.pts, SeriesPoint{Offset: offset})
	}

	p := &s.pts[len(s.pts)-1]
	p.Requests++
	if !success {
		p.Failures++
	}
}

func (s *series) points() []SeriesPoint {
	return append([]SeriesPoint(nil), s.pts...)
}

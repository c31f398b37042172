package metric

// Default hysteresis band for peak counting.
const (
	DefaultRising  = 95.0
	DefaultFalling = 90.0
)

// PeakCounter counts entries into a high band. The metric must rise above
// Rising to count and fall below Falling before it can count again; values
// in between keep the current state.
type PeakCounter struct {
	Rising  float64
	Falling float64

	high  bool
	count int
}

// NewPeakCounter uses the default 95/90 band.
func NewPeakCounter() *PeakCounter {
	return &PeakCounter{Rising: DefaultRising, Falling: DefaultFalling}
}

// Observe feeds one raw value and returns the running count.
func (p *PeakCounter) Observe(v float64) int {
	switch {
	case !p.high && v > p.Rising:
		p.high = true
		p.count++
	case p.high && v < p.Falling:
		p.high = false
	}
	return p.count
}

// Count returns the number of counted peaks.
func (p *PeakCounter) Count() int { return p.count }

// High reports whether the metric is currently in the high band.
func (p *PeakCounter) High() bool { return p.high }

// PeakSet holds one PeakCounter per metric name, all sharing a band.
type PeakSet struct {
	rising, falling float64
	counters        map[string]*PeakCounter
}

// NewPeakSet returns a set whose counters use the given band.
func NewPeakSet(rising, falling float64) *PeakSet {
	return &PeakSet{rising: rising, falling: falling, counters: make(map[string]*PeakCounter)}
}

// Observe feeds v to the named metric's counter, creating it on first use.
func (s *PeakSet) Observe(metric string, v float64) int {
	c, ok := s.counters[metric]
	if !ok {
		c = &PeakCounter{Rising: s.rising, Falling: s.falling}
		s.counters[metric] = c
	}
	return c.Observe(v)
}

// Count returns the named metric's count, 0 if never observed.
func (s *PeakSet) Count(metric string) int {
	if c, ok := s.counters[metric]; ok {
		return c.Count()
	}
	return 0
}

package metric

import (
	"math"

	"github.com/Dicklesworthstone/hwdash/internal/model"
)

type toleranceMode int

const (
	modeWhole toleranceMode = iota
	modeNearest
	modeWithin
)

// Tolerance decides when two values of the same metric count as equal.
type Tolerance struct {
	mode    toleranceMode
	epsilon float64
}

var (
	// Whole compares truncated integer values (41.4 and 41.6 are equal).
	Whole = Tolerance{mode: modeWhole}
	// Nearest compares values rounded to the nearest integer.
	Nearest = Tolerance{mode: modeNearest}
)

// Within compares continuous values: they differ when |a-b| > eps.
func Within(eps float64) Tolerance { return Tolerance{mode: modeWithin, epsilon: eps} }

func (t Tolerance) differs(last, next float64) bool {
	switch t.mode {
	case modeWhole:
		return math.Trunc(last) != math.Trunc(next)
	case modeNearest:
		return math.Round(last) != math.Round(next)
	default:
		return math.Abs(next-last) > t.epsilon
	}
}

type gateEntry struct {
	value float64
	cond  model.Condition
	label string
}

// Gate suppresses emissions that do not differ from the last surfaced
// value of the same key. Not safe for concurrent use.
type Gate struct {
	last map[string]gateEntry
}

// NewGate returns a gate with no baselines.
func NewGate() *Gate {
	return &Gate{last: make(map[string]gateEntry)}
}

// ShouldEmit reports whether e differs from the last surfaced emission of
// e.Key under tol, and if so records e as the new baseline. A first
// emission, a condition change or a label change always passes.
func (g *Gate) ShouldEmit(e model.Emission, tol Tolerance) bool {
	prev, seen := g.last[e.Key]
	next := gateEntry{value: e.Reading.Value, cond: e.Reading.Cond, label: e.Label}
	switch {
	case !seen, prev.cond != next.cond, prev.label != next.label:
	case next.cond != model.OK:
		return false
	case !tol.differs(prev.value, next.value):
		return false
	}
	g.last[e.Key] = next
	return true
}

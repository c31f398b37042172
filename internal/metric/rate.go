// Package metric turns raw monotonic counters and noisy gauges into
// stable derived values: per-second rates, change-gated emissions and
// hysteresis peak counts.
package metric

import (
	"errors"
	"time"

	"github.com/Dicklesworthstone/hwdash/internal/model"
)

var (
	// ErrClockAnomaly means the interval between two samples was zero or
	// negative.
	ErrClockAnomaly = errors.New("metric: non-positive sample interval")

	// ErrCounterReset means the counter went backwards (wraparound, driver
	// reset). The sample must be discarded and the baseline resynchronised.
	ErrCounterReset = errors.New("metric: counter decreased")
)

const bytesPerMiB = 1024 * 1024

// Rate returns units per second between two counter readings taken at
// prevMs and currMs (milliseconds).
func Rate(prevCounter uint64, prevMs int64, currCounter uint64, currMs int64) (float64, error) {
	if currMs <= prevMs {
		return 0, ErrClockAnomaly
	}
	if currCounter < prevCounter {
		return 0, ErrCounterReset
	}
	seconds := float64(currMs-prevMs) / 1000
	return float64(currCounter-prevCounter) / seconds, nil
}

// RateBetween is Rate over two CounterSamples.
func RateBetween(prev, curr model.CounterSample) (float64, error) {
	return Rate(prev.Value, prev.At.UnixMilli(), curr.Value, curr.At.UnixMilli())
}

// BusyPercent converts a busy-time counter (milliseconds spent busy) into
// a utilisation percentage. The busy delta can slightly exceed wall time
// because of the source's reporting granularity, so the result is clamped
// into [0, 100].
func BusyPercent(prevBusyMs uint64, prevMs int64, currBusyMs uint64, currMs int64) (float64, error) {
	msPerSecond, err := Rate(prevBusyMs, prevMs, currBusyMs, currMs)
	if err != nil {
		return 0, err
	}
	return clampPercent(msPerSecond / 10), nil
}

// MiB converts bytes per second to MB per second.
func MiB(bytesPerSecond float64) float64 { return bytesPerSecond / bytesPerMiB }

func clampPercent(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// conditionOf maps rate errors onto reading conditions.
func conditionOf(err error) model.Condition {
	switch {
	case err == nil:
		return model.OK
	case errors.Is(err, ErrClockAnomaly):
		return model.ClockAnomaly
	default:
		return model.TransientMiss
	}
}

// CounterSet keeps the previous sample of every counter it has seen so
// consecutive observations can be differenced. It is not safe for
// concurrent use; the scheduler owns it.
type CounterSet struct {
	prev map[string]model.CounterSample
}

// NewCounterSet returns an empty set.
func NewCounterSet() *CounterSet {
	return &CounterSet{prev: make(map[string]model.CounterSample)}
}

// Baseline records a sample without producing a rate.
func (c *CounterSet) Baseline(key string, value uint64, at time.Time) {
	c.prev[key] = model.CounterSample{Value: value, At: at}
}

// Observe differences the sample against the stored baseline and then
// makes it the new baseline, whatever the outcome. A key seen for the
// first time reports TransientMiss.
func (c *CounterSet) Observe(key string, value uint64, at time.Time) model.Reading {
	curr := model.CounterSample{Value: value, At: at}
	prev, ok := c.prev[key]
	c.prev[key] = curr
	if !ok {
		return model.Missing(model.TransientMiss)
	}
	rate, err := RateBetween(prev, curr)
	if err != nil {
		return model.Missing(conditionOf(err))
	}
	return model.Value(rate)
}

// ObserveBusy is Observe for busy-time counters, returning a clamped
// percentage.
func (c *CounterSet) ObserveBusy(key string, busyMs uint64, at time.Time) model.Reading {
	curr := model.CounterSample{Value: busyMs, At: at}
	prev, ok := c.prev[key]
	c.prev[key] = curr
	if !ok {
		return model.Missing(model.TransientMiss)
	}
	pct, err := BusyPercent(prev.Value, prev.At.UnixMilli(), curr.Value, curr.At.UnixMilli())
	if err != nil {
		return model.Missing(conditionOf(err))
	}
	return model.Value(pct)
}

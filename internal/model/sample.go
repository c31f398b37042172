package model

import (
	"errors"
	"time"
)

// Sentinel errors returned by sources. Anything else is treated as a
// transient miss.
var (
	ErrUnsupported = errors.New("capability not supported")
	ErrTransient   = errors.New("transient read failure")
)

// Condition is the closed set of reasons a reading carries no value.
type Condition int

const (
	OK Condition = iota
	Unavailable
	TransientMiss
	ClockAnomaly
)

func (c Condition) String() string {
	switch c {
	case OK:
		return "ok"
	case Unavailable:
		return "unavailable"
	case TransientMiss:
		return "transient_miss"
	case ClockAnomaly:
		return "clock_anomaly"
	default:
		return "unknown"
	}
}

// ConditionOf maps a source error onto a Condition. nil maps to OK.
func ConditionOf(err error) Condition {
	switch {
	case err == nil:
		return OK
	case errors.Is(err, ErrUnsupported):
		return Unavailable
	default:
		return TransientMiss
	}
}

// Reading is a single field value or the condition explaining its absence.
type Reading struct {
	Value float64
	Cond  Condition
}

// Value wraps a good reading.
func Value(v float64) Reading { return Reading{Value: v} }

// Missing returns a reading with no value.
func Missing(c Condition) Reading { return Reading{Cond: c} }

// ReadingOf builds a reading from a source return pair.
func ReadingOf(v float64, err error) Reading {
	if err != nil {
		return Missing(ConditionOf(err))
	}
	return Value(v)
}

// Valid reports whether the reading carries a value.
func (r Reading) Valid() bool { return r.Cond == OK }

// CounterSample is a monotonic counter value and when it was captured.
type CounterSample struct {
	Value uint64
	At    time.Time
}

// GPU holds one tick of device telemetry; every field fails independently.
type GPU struct {
	TempC       Reading
	UtilPercent Reading
	FanPercent  Reading
	MemUsedMB   Reading
	MemTotalMB  Reading
	ClockMHz    Reading
	PowerMilliW Reading
}

// UnavailableGPU is what a disabled GPU source reports.
func UnavailableGPU() GPU { return MissingGPU(Unavailable) }

// MissingGPU marks every field with cond.
func MissingGPU(cond Condition) GPU {
	r := Missing(cond)
	return GPU{
		TempC:       r,
		UtilPercent: r,
		FanPercent:  r,
		MemUsedMB:   r,
		MemTotalMB:  r,
		ClockMHz:    r,
		PowerMilliW: r,
	}
}

// VRAMPercent derives whole-percent memory usage.
func (g GPU) VRAMPercent() Reading {
	if !g.MemUsedMB.Valid() {
		return g.MemUsedMB
	}
	if !g.MemTotalMB.Valid() {
		return g.MemTotalMB
	}
	if g.MemTotalMB.Value <= 0 {
		return Missing(Unavailable)
	}
	return Value(float64(int(g.MemUsedMB.Value / g.MemTotalMB.Value * 100)))
}

// PowerWatts derives whole watts from milliwatts.
func (g GPU) PowerWatts() Reading {
	if !g.PowerMilliW.Valid() {
		return g.PowerMilliW
	}
	return Value(float64(int(g.PowerMilliW.Value / 1000)))
}

// DiskCounters are per-disk monotonic counters keyed by OS device name.
type DiskCounters struct {
	ReadBytes   uint64
	WriteBytes  uint64
	ReadTimeMs  uint64
	WriteTimeMs uint64
}

// BusyTimeMs is the busy-time counter used when no performance feed exists.
func (d DiskCounters) BusyTimeMs() uint64 { return d.ReadTimeMs + d.WriteTimeMs }

// MediaType classifies a physical disk.
type MediaType int

const (
	MediaUnknown MediaType = iota
	MediaSSD
	MediaHDD
)

func (m MediaType) String() string {
	switch m {
	case MediaSSD:
		return "SSD"
	case MediaHDD:
		return "HDD"
	default:
		return "Unknown"
	}
}

// NoController marks a disk whose metadata index is unknown.
const NoController = -1

// DiskIdentity is the canonical identity of one physical disk.
type DiskIdentity struct {
	BusyCounterKey  string
	ControllerIndex int
	DriveLetters    []string
	Media           MediaType
	CorrelationName string
	Label           string
}

// Degraded reports whether the identity was built without metadata.
func (d DiskIdentity) Degraded() bool { return d.ControllerIndex == NoController }

// TopEntry is one slot of the top consumer list.
type TopEntry struct {
	Name       string
	CPUPercent float64
	Empty      bool
}

// Emission is a (metricKey, value) push to the presentation layer. Label
// carries display text for keys whose value alone is not enough (disk
// labels, process names, shutdown state).
type Emission struct {
	Key     string
	Reading Reading
	Label   string
	At      time.Time
}

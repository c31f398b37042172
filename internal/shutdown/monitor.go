// Package shutdown arms an automatic OS shutdown that fires once the GPU
// has been idle for a sustained run of consecutive samples.
package shutdown

import (
	"context"

	"go.uber.org/zap"

	"github.com/Dicklesworthstone/hwdash/internal/model"
)

// DefaultIdleSamples is ~60 seconds at the 1 Hz primary cadence.
const DefaultIdleSamples = 60

// State of the monitor.
type State int

const (
	Disarmed State = iota
	Armed
	Counting
	Triggered
)

func (s State) String() string {
	switch s {
	case Disarmed:
		return "disarmed"
	case Armed:
		return "armed"
	case Counting:
		return "counting"
	case Triggered:
		return "triggered"
	default:
		return "unknown"
	}
}

// Status is what one Observe (or Arm/Disarm) leaves behind.
type Status struct {
	State     State
	Streak    int
	Remaining int
}

// Action performs the irreversible shutdown.
type Action interface {
	Shutdown(ctx context.Context) error
}

// Monitor is the idle shutdown state machine. It is not safe for
// concurrent use; the scheduler owns it.
type Monitor struct {
	idle      Predicate
	threshold int
	action    Action
	log       *zap.Logger

	state  State
	streak int
}

// NewMonitor returns a disarmed monitor that fires action after threshold
// consecutive samples satisfying idle.
func NewMonitor(idle Predicate, threshold int, action Action, log *zap.Logger) *Monitor {
	if threshold < 1 {
		threshold = DefaultIdleSamples
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Monitor{idle: idle, threshold: threshold, action: action, log: log}
}

// Arm is the operator enabling the trigger. Arming an armed monitor is a
// no-op.
func (m *Monitor) Arm() Status {
	if m.state == Disarmed {
		m.state = Armed
		m.streak = 0
		m.log.Info("idle shutdown armed", zap.Int("threshold", m.threshold))
	}
	return m.Status()
}

// Disarm is the operator cancelling the trigger; the streak is discarded.
func (m *Monitor) Disarm() Status {
	if m.state != Disarmed {
		m.log.Info("idle shutdown disarmed", zap.Int("streak", m.streak))
	}
	m.state = Disarmed
	m.streak = 0
	return m.Status()
}

// Observe evaluates one sample. When the streak reaches the threshold the
// action is invoked and the monitor is disarmed before Observe returns, so
// no later sample can fire it again. The returned status reports
// Triggered for that one sample.
func (m *Monitor) Observe(ctx context.Context, gpu model.GPU) Status {
	if m.state == Disarmed {
		return m.Status()
	}
	if !m.idle(gpu) {
		if m.streak != 0 {
			m.log.Debug("idle streak broken", zap.Int("streak", m.streak))
		}
		m.state = Armed
		m.streak = 0
		return m.Status()
	}

	m.state = Counting
	m.streak++
	if m.streak < m.threshold {
		return m.Status()
	}

	fired := Status{State: Triggered, Streak: m.streak}
	m.state = Disarmed
	m.streak = 0
	m.log.Warn("idle threshold reached, triggering shutdown", zap.Int("samples", fired.Streak))
	if m.action != nil {
		if err := m.action.Shutdown(ctx); err != nil {
			m.log.Error("shutdown action failed", zap.Error(err))
		}
	}
	return fired
}

// Status reports the current state without changing it.
func (m *Monitor) Status() Status {
	s := Status{State: m.state, Streak: m.streak}
	if m.state == Armed || m.state == Counting {
		s.Remaining = m.threshold - m.streak
	}
	return s
}

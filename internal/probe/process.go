package probe

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/Dicklesworthstone/hwdash/internal/model"
	"github.com/Dicklesworthstone/hwdash/internal/topproc"
)

type trackedProcess struct {
	proc *process.Process
	name string
}

// Processes enumerates processes through gopsutil, keeping each
// *process.Process between calls so PercentWithContext(ctx, 0) measures
// CPU since the previous enumeration. Not safe for concurrent use.
type Processes struct {
	tracked map[int32]trackedProcess
}

// NewProcesses returns an empty tracker; call Prime before the first
// Processes.
func NewProcesses() *Processes {
	return &Processes{tracked: make(map[int32]trackedProcess)}
}

func (p *Processes) Prime(ctx context.Context) error {
	_, err := p.Processes(ctx)
	return err
}

func (p *Processes) Processes(ctx context.Context) ([]topproc.Process, error) {
	pids, err := process.PidsWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("probe: list pids: %w: %v", model.ErrTransient, err)
	}

	live := make(map[int32]trackedProcess, len(pids))
	out := make([]topproc.Process, 0, len(pids))
	for _, pid := range pids {
		tp, ok := p.tracked[pid]
		if !ok {
			proc, err := process.NewProcessWithContext(ctx, pid)
			if err != nil {
				continue
			}
			name, _ := proc.NameWithContext(ctx)
			if name == "" {
				continue
			}
			tp = trackedProcess{proc: proc, name: name}
		}
		// A process seen for the first time reports 0 here and is
		// measured properly on the next enumeration.
		pct, err := tp.proc.PercentWithContext(ctx, 0)
		if err != nil {
			continue
		}
		live[pid] = tp
		out = append(out, topproc.Process{Name: tp.name, CPUPercent: pct})
	}
	p.tracked = live
	return out, nil
}

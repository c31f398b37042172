// Package topproc ranks processes by CPU share for the "top consumers"
// panel.
package topproc

import (
	"context"
	"sort"

	"github.com/Dicklesworthstone/hwdash/internal/model"
)

const (
	// DefaultSlots is the length of the ranked list.
	DefaultSlots = 3
	// VisibilityThreshold hides processes at or below this normalised share.
	VisibilityThreshold = 0.1
)

// idleNames are the placeholder processes that account for idle time.
var idleNames = map[string]struct{}{
	"System Idle Process": {},
	"idle":                {},
}

// Process is one row of the process enumeration. CPUPercent is the
// un-normalised share since the previous enumeration (100 per busy core).
type Process struct {
	Name       string
	CPUPercent float64
}

// Source enumerates processes. Per-process failures are the source's
// business; an error return means the whole enumeration failed.
type Source interface {
	// Prime takes the first CPU reading of every process so that the next
	// Processes call measures a real interval.
	Prime(ctx context.Context) error
	Processes(ctx context.Context) ([]Process, error)
}

// Rank normalises each share by cores, drops idle placeholders and
// near-zero entries, and returns exactly n entries sorted by share, padded
// with Empty entries.
func Rank(procs []Process, cores, n int) []model.TopEntry {
	if cores < 1 {
		cores = 1
	}
	ranked := make([]model.TopEntry, 0, len(procs))
	for _, p := range procs {
		if _, idle := idleNames[p.Name]; idle {
			continue
		}
		share := p.CPUPercent / float64(cores)
		if share <= VisibilityThreshold {
			continue
		}
		ranked = append(ranked, model.TopEntry{Name: p.Name, CPUPercent: share})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].CPUPercent != ranked[j].CPUPercent {
			return ranked[i].CPUPercent > ranked[j].CPUPercent
		}
		return ranked[i].Name < ranked[j].Name
	})
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	for len(ranked) < n {
		ranked = append(ranked, model.TopEntry{Empty: true})
	}
	return ranked
}

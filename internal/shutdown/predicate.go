package shutdown

import (
	"fmt"

	"github.com/Dicklesworthstone/hwdash/internal/model"
)

// Predicate reports whether one sample counts as idle. A reading that is
// not available never counts as idle.
type Predicate func(model.GPU) bool

// Predicate modes selectable from config.
const (
	ModeThermal = "thermal"
	ModeFan     = "fan"
)

// Thermal is idle when the GPU is both cool and unloaded.
func Thermal(maxTempC, maxUtil float64) Predicate {
	return func(g model.GPU) bool {
		if !g.TempC.Valid() || !g.UtilPercent.Valid() {
			return false
		}
		return g.TempC.Value < maxTempC && g.UtilPercent.Value < maxUtil
	}
}

// FanStopped is idle when the fan reports zero, as zero-RPM cards do at
// rest.
func FanStopped() Predicate {
	return func(g model.GPU) bool {
		return g.FanPercent.Valid() && g.FanPercent.Value == 0
	}
}

// ForMode builds the predicate named by a config mode.
func ForMode(mode string, maxTempC, maxUtil float64) (Predicate, error) {
	switch mode {
	case ModeThermal:
		return Thermal(maxTempC, maxUtil), nil
	case ModeFan:
		return FanStopped(), nil
	default:
		return nil, fmt.Errorf("shutdown: unknown idle mode %q", mode)
	}
}

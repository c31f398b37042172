package sampler

import (
	"context"
	"time"

	"github.com/Dicklesworthstone/hwdash/internal/diskid"
	"github.com/Dicklesworthstone/hwdash/internal/model"
	"github.com/Dicklesworthstone/hwdash/internal/topproc"
)

// CPUSource is polled once per primary tick.
type CPUSource interface {
	Percent(ctx context.Context) (float64, error)
	FrequencyMHz(ctx context.Context) (float64, error)
	Cores() int
}

// MemorySource reports RAM usage.
type MemorySource interface {
	UsedPercent(ctx context.Context) (float64, error)
}

// NetSource reports host-wide monotonic byte counters.
type NetSource interface {
	IOCounters(ctx context.Context) (sent, recv uint64, err error)
}

// DiskCounterSource reports per-disk monotonic counters keyed by device
// name. The key set seen at startup is the canonical disk set.
type DiskCounterSource interface {
	IOCounters(ctx context.Context) (map[string]model.DiskCounters, error)
}

// DiskMetaSource is the richer enumeration: static drive metadata read
// once at startup and a busy-percent feed read every tick. BusyPercent
// returns model.ErrUnsupported on platforms without such a feed.
type DiskMetaSource interface {
	Drives(ctx context.Context) ([]diskid.Drive, error)
	BusyPercent(ctx context.Context) (map[string]float64, error)
}

// GPUSource is opened once at startup and closed when the scheduler
// stops. Read never fails as a whole; each field carries its own
// condition.
type GPUSource interface {
	Open(ctx context.Context) (name string, err error)
	Read(ctx context.Context) model.GPU
	Close() error
}

// Sources bundles every collaborator. DiskMeta and GPU may be nil.
type Sources struct {
	CPU       CPUSource
	Memory    MemorySource
	Net       NetSource
	Disks     DiskCounterSource
	DiskMeta  DiskMetaSource
	GPU       GPUSource
	Processes topproc.Source
}

// Presenter receives change-gated emissions. The scheduler never reads
// from it.
type Presenter interface {
	Emit(e model.Emission)
}

// PresenterFunc adapts a function to Presenter.
type PresenterFunc func(model.Emission)

func (f PresenterFunc) Emit(e model.Emission) { f(e) }

// Presenters fans emissions out to several presenters in order.
type Presenters []Presenter

func (ps Presenters) Emit(e model.Emission) {
	for _, p := range ps {
		p.Emit(e)
	}
}

// Observer receives scheduler self-metrics.
type Observer interface {
	TickDone(cadence string, took time.Duration)
	SourceFailed(source string, cond model.Condition)
	ShutdownTriggered()
}

type nopObserver struct{}

func (nopObserver) TickDone(string, time.Duration) {}
func (nopObserver) SourceFailed(string, model.Condition) {}
func (nopObserver) ShutdownTriggered() {}

package sampler

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/Dicklesworthstone/hwdash/internal/diskid"
	"github.com/Dicklesworthstone/hwdash/internal/metric"
	"github.com/Dicklesworthstone/hwdash/internal/model"
	"github.com/Dicklesworthstone/hwdash/internal/shutdown"
	"github.com/Dicklesworthstone/hwdash/internal/topproc"
)

// Counter set keys. Distinct from emission keys so a disk named "recv"
// cannot collide with the network counters.
const (
	netSentKey = "net/sent"
	netRecvKey = "net/recv"
)

func diskReadKey(key string) string  { return "disk/" + key + "/read" }
func diskWriteKey(key string) string { return "disk/" + key + "/write" }
func diskBusyKey(key string) string  { return "disk/" + key + "/busy" }

var (
	ghzTolerance     = metric.Within(0.01)
	diskMBTolerance  = metric.Within(0.01)
	netMBTolerance   = metric.Within(0.001)
	rankingTolerance = metric.Within(0.05)
)

// tickPrimary samples every 1 Hz metric in a fixed order.
func (s *Scheduler) tickPrimary(ctx context.Context, kind tickKind) {
	start := s.clock.Now()

	s.sampleCPU(ctx, start)
	gpu := s.sampleGPU(ctx, start)
	s.evaluateShutdown(ctx, gpu, start)
	s.sampleMemory(ctx, start)
	s.sampleDisks(ctx, start)
	s.sampleNet(ctx, start)

	s.obs.TickDone("primary", s.clock.Now().Sub(start))
	if kind == kindPrimary {
		s.notify(kindPrimary)
	}
}

func (s *Scheduler) sampleCPU(ctx context.Context, at time.Time) {
	pct := model.ReadingOf(s.src.CPU.Percent(ctx))
	s.failed("cpu", pct)
	s.emit(model.KeyCPUPercent, pct, "", metric.Whole, at)
	s.observePeak(model.PeakCPU, pct, at)

	mhz, err := s.src.CPU.FrequencyMHz(ctx)
	ghz := model.ReadingOf(mhz/1000, err)
	s.failed("cpu_freq", ghz)
	s.emit(model.KeyCPUGHz, ghz, "", ghzTolerance, at)
}

func (s *Scheduler) sampleGPU(ctx context.Context, at time.Time) model.GPU {
	gpu := model.UnavailableGPU()
	if s.state.gpuEnabled {
		gpu = s.src.GPU.Read(ctx)
		s.failed("gpu", gpu.UtilPercent)
	}
	util := gpu.UtilPercent
	vram := gpu.VRAMPercent()

	s.emit(model.KeyGPUTemp, gpu.TempC, "", metric.Whole, at)
	s.emit(model.KeyGPUUtil, util, "", metric.Whole, at)
	s.emit(model.KeyGPUFan, gpu.FanPercent, "", metric.Whole, at)
	s.emit(model.KeyGPUVRAM, vram, "", metric.Whole, at)
	s.emit(model.KeyGPUClock, gpu.ClockMHz, "", metric.Whole, at)
	s.emit(model.KeyGPUPower, gpu.PowerWatts(), "", metric.Whole, at)

	s.observePeak(model.PeakGPU, util, at)
	s.observePeak(model.PeakVRAM, vram, at)
	return gpu
}

func (s *Scheduler) evaluateShutdown(ctx context.Context, gpu model.GPU, at time.Time) {
	m := s.state.Shutdown
	if m == nil {
		return
	}
	st := m.Observe(ctx, gpu)
	if st.State == shutdown.Triggered {
		s.obs.ShutdownTriggered()
	}
	s.emitShutdown(st, at)
}

func (s *Scheduler) emitShutdown(st shutdown.Status, at time.Time) {
	s.emit(model.KeyShutdown, model.Value(float64(st.Remaining)), st.State.String(), metric.Whole, at)
}

func (s *Scheduler) sampleMemory(ctx context.Context, at time.Time) {
	ram := model.ReadingOf(s.src.Memory.UsedPercent(ctx))
	s.failed("memory", ram)
	s.emit(model.KeyRAM, ram, "", metric.Whole, at)
	s.observePeak(model.PeakRAM, ram, at)
}

func (s *Scheduler) observePeak(name string, r model.Reading, at time.Time) {
	if !r.Valid() {
		return
	}
	n := s.state.Peaks.Observe(name, r.Value)
	s.emit(model.PeakKey(name), model.Value(float64(n)), "", metric.Whole, at)
}

func (s *Scheduler) sampleDisks(ctx context.Context, at time.Time) {
	st := s.state
	counters, err := s.src.Disks.IOCounters(ctx)
	if err != nil {
		s.log.Debug("disk counters", zap.Error(err))
		s.obs.SourceFailed("disk", model.ConditionOf(err))
	}

	feed, feedOK := s.busyFeed(ctx)

	for _, id := range st.Disks {
		key := id.BusyCounterKey
		c, ok := counters[key]

		read, write := model.Missing(model.TransientMiss), model.Missing(model.TransientMiss)
		busy := model.Missing(model.TransientMiss)
		if ok {
			read = mib(st.Counters.Observe(diskReadKey(key), c.ReadBytes, at))
			write = mib(st.Counters.Observe(diskWriteKey(key), c.WriteBytes, at))
			counterBusy := st.Counters.ObserveBusy(diskBusyKey(key), c.BusyTimeMs(), at)
			if st.busy == busyFromCounters || id.Degraded() {
				busy = counterBusy
			}
		}
		if st.busy == busyFromFeed && feedOK {
			if pct, found := feed.Match(id); found {
				busy = model.Value(pct)
			}
		}

		busy = s.holdLastBusy(key, busy)
		s.emit(model.DiskBusyKey(key), busy, id.Label, metric.Nearest, at)
		s.emit(model.DiskReadKey(key), read, id.Label, diskMBTolerance, at)
		s.emit(model.DiskWriteKey(key), write, id.Label, diskMBTolerance, at)
	}
}

// busyFeed fetches one tick of the performance feed. A source that reports
// ErrUnsupported switches the scheduler to counter-derived busy for good.
func (s *Scheduler) busyFeed(ctx context.Context) (diskid.Feed, bool) {
	if s.state.busy != busyFromFeed {
		return diskid.Feed{}, false
	}
	raw, err := s.src.DiskMeta.BusyPercent(ctx)
	switch {
	case errors.Is(err, model.ErrUnsupported):
		s.state.busy = busyFromCounters
		s.log.Info("disk busy feed unsupported, deriving busy from counters")
		return diskid.Feed{}, false
	case err != nil:
		s.log.Debug("disk busy feed", zap.Error(err))
		s.obs.SourceFailed("disk_busy", model.TransientMiss)
		return diskid.Feed{}, false
	}
	return diskid.NewFeed(raw), true
}

// holdLastBusy substitutes the last good value for a missed busy reading.
// A disk that has never produced one reports the miss.
func (s *Scheduler) holdLastBusy(key string, r model.Reading) model.Reading {
	if r.Valid() {
		s.state.LastBusy[key] = r.Value
		return r
	}
	if last, ok := s.state.LastBusy[key]; ok {
		return model.Value(last)
	}
	return r
}

func (s *Scheduler) sampleNet(ctx context.Context, at time.Time) {
	sent, recv, err := s.src.Net.IOCounters(ctx)
	if err != nil {
		miss := model.Missing(model.ConditionOf(err))
		s.failed("net", miss)
		s.emit(model.KeyNetDown, miss, "", netMBTolerance, at)
		s.emit(model.KeyNetUp, miss, "", netMBTolerance, at)
		return
	}
	down := mib(s.state.Counters.Observe(netRecvKey, recv, at))
	up := mib(s.state.Counters.Observe(netSentKey, sent, at))
	s.emit(model.KeyNetDown, down, "", netMBTolerance, at)
	s.emit(model.KeyNetUp, up, "", netMBTolerance, at)
}

func mib(r model.Reading) model.Reading {
	if !r.Valid() {
		return r
	}
	return model.Value(metric.MiB(r.Value))
}

// tickRanking refreshes the top consumer slots.
func (s *Scheduler) tickRanking(ctx context.Context, kind tickKind) {
	start := s.clock.Now()
	defer func() {
		s.obs.TickDone("ranking", s.clock.Now().Sub(start))
		if kind == kindRanking {
			s.notify(kindRanking)
		}
	}()

	if s.src.Processes == nil {
		return
	}
	procs, err := s.src.Processes.Processes(ctx)
	if err != nil {
		miss := model.Missing(model.ConditionOf(err))
		s.failed("processes", miss)
		for slot := 1; slot <= s.cfg.TopSlots; slot++ {
			s.emit(model.TopKey(slot), miss, "", rankingTolerance, start)
		}
		return
	}

	for i, entry := range topproc.Rank(procs, s.src.CPU.Cores(), s.cfg.TopSlots) {
		r, label := model.Value(entry.CPUPercent), entry.Name
		if entry.Empty {
			r, label = model.Value(0), ""
		}
		s.emit(model.TopKey(i+1), r, label, rankingTolerance, start)
	}
}

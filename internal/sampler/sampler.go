package sampler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/Dicklesworthstone/hwdash/internal/clock"
	"github.com/Dicklesworthstone/hwdash/internal/diskid"
	"github.com/Dicklesworthstone/hwdash/internal/metric"
	"github.com/Dicklesworthstone/hwdash/internal/model"
	"github.com/Dicklesworthstone/hwdash/internal/shutdown"
	"github.com/Dicklesworthstone/hwdash/internal/topproc"
)

var errNoDiskMeta = errors.New("sampler: no disk metadata source")

// Config holds the scheduler's cadences and thresholds.
type Config struct {
	Primary     time.Duration
	Ranking     time.Duration
	Debounce    time.Duration
	TopSlots    int
	PeakRising  float64
	PeakFalling float64
}

// DefaultConfig is 1 s metrics, 3 s ranking, 250 ms interaction debounce.
func DefaultConfig() Config {
	return Config{
		Primary:     time.Second,
		Ranking:     3 * time.Second,
		Debounce:    250 * time.Millisecond,
		TopSlots:    topproc.DefaultSlots,
		PeakRising:  metric.DefaultRising,
		PeakFalling: metric.DefaultFalling,
	}
}

// busyMode says where disk busy percent comes from.
type busyMode int

const (
	busyFromFeed busyMode = iota
	busyFromCounters
)

// EngineState is every piece of cross-tick state. Only the scheduler's
// loop goroutine touches it once Run has started.
type EngineState struct {
	Counters *metric.CounterSet
	Gate     *metric.Gate
	Peaks    *metric.PeakSet
	Shutdown *shutdown.Monitor

	Disks    []model.DiskIdentity
	LastBusy map[string]float64

	GPUName    string
	gpuEnabled bool
	busy       busyMode
}

type tickKind int

const (
	kindPrimary tickKind = iota
	kindRanking
	kindCatchUp
)

type cmdKind int

const (
	cmdBegin cmdKind = iota
	cmdEnd
	cmdArm
	cmdDisarm
)

type command struct {
	kind cmdKind
	ack  chan struct{}
}

// Scheduler drives sampling on a primary and a secondary cadence from a
// single goroutine. Interaction and arm/disarm requests from other
// goroutines are queued to that goroutine.
type Scheduler struct {
	cfg   Config
	src   Sources
	out   Presenter
	clock clock.Clock
	log   *zap.Logger
	obs   Observer

	state   *EngineState
	started bool

	cmds   chan command
	resume chan uint64
	done   chan struct{}

	primary  *clock.Ticker
	ranking  *clock.Ticker
	debounce *clock.Timer
	gen      uint64
	paused   bool

	afterTick func(tickKind)
}

// Option customises a Scheduler.
type Option func(*Scheduler)

// WithClock replaces the real clock.
func WithClock(c clock.Clock) Option { return func(s *Scheduler) { s.clock = c } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(s *Scheduler) { s.log = l } }

// WithObserver sets the self-metrics observer.
func WithObserver(o Observer) Option { return func(s *Scheduler) { s.obs = o } }

// WithShutdownMonitor enables idle shutdown evaluation.
func WithShutdownMonitor(m *shutdown.Monitor) Option {
	return func(s *Scheduler) { s.state.Shutdown = m }
}

// New builds a scheduler. Call Start (or Run, which starts it) next.
func New(cfg Config, src Sources, out Presenter, opts ...Option) *Scheduler {
	def := DefaultConfig()
	if cfg.Primary <= 0 {
		cfg.Primary = def.Primary
	}
	if cfg.Ranking <= 0 {
		cfg.Ranking = def.Ranking
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = def.Debounce
	}
	if cfg.TopSlots <= 0 {
		cfg.TopSlots = def.TopSlots
	}
	if cfg.PeakRising == 0 && cfg.PeakFalling == 0 {
		cfg.PeakRising, cfg.PeakFalling = def.PeakRising, def.PeakFalling
	}
	if out == nil {
		out = PresenterFunc(func(model.Emission) {})
	}
	s := &Scheduler{
		cfg:   cfg,
		src:   src,
		out:   out,
		clock: clock.Real(),
		log:   zap.NewNop(),
		obs:   nopObserver{},
		state: &EngineState{
			Counters: metric.NewCounterSet(),
			Gate:     metric.NewGate(),
			Peaks:    metric.NewPeakSet(cfg.PeakRising, cfg.PeakFalling),
			LastBusy: make(map[string]float64),
		},
		cmds:   make(chan command),
		resume: make(chan uint64),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start acquires counter baselines, resolves disk identities, primes the
// process list and opens the GPU. Only a baseline failure is fatal; every
// other failure leaves that source disabled.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.started {
		return nil
	}
	now := s.clock.Now()
	st := s.state

	sent, recv, err := s.src.Net.IOCounters(ctx)
	if err != nil {
		return fmt.Errorf("sampler: network baseline: %w", err)
	}
	st.Counters.Baseline(netSentKey, sent, now)
	st.Counters.Baseline(netRecvKey, recv, now)

	counters, err := s.src.Disks.IOCounters(ctx)
	if err != nil {
		return fmt.Errorf("sampler: disk baseline: %w", err)
	}
	keys := make([]string, 0, len(counters))
	for key, c := range counters {
		keys = append(keys, key)
		st.Counters.Baseline(diskReadKey(key), c.ReadBytes, now)
		st.Counters.Baseline(diskWriteKey(key), c.WriteBytes, now)
		st.Counters.Baseline(diskBusyKey(key), c.BusyTimeMs(), now)
	}
	sort.Strings(keys)

	var drives []diskid.Drive
	metaErr := errNoDiskMeta
	if s.src.DiskMeta != nil {
		drives, metaErr = s.src.DiskMeta.Drives(ctx)
	}
	st.Disks = diskid.Resolve(keys, drives, metaErr)
	if metaErr != nil {
		st.busy = busyFromCounters
		s.log.Warn("disk metadata unavailable, using raw device keys", zap.Error(metaErr))
	}
	s.log.Info("disks resolved", zap.Int("count", len(st.Disks)), zap.Strings("counter_keys", keys))

	if s.src.Processes != nil {
		if err := s.src.Processes.Prime(ctx); err != nil {
			s.log.Warn("process prime failed", zap.Error(err))
		}
	}

	switch {
	case s.src.GPU == nil:
		st.GPUName = "GPU (disabled)"
	default:
		name, err := s.src.GPU.Open(ctx)
		if err != nil {
			st.GPUName = "GPU (Error)"
			s.log.Warn("gpu telemetry disabled", zap.Error(err))
			break
		}
		st.GPUName = name
		st.gpuEnabled = true
		s.log.Info("gpu telemetry enabled", zap.String("gpu", name))
	}

	s.started = true
	return nil
}

// Disks returns the resolved disk identities. Valid after Start.
func (s *Scheduler) Disks() []model.DiskIdentity {
	return append([]model.DiskIdentity(nil), s.state.Disks...)
}

// GPUName is the display name of the GPU. Valid after Start.
func (s *Scheduler) GPUName() string { return s.state.GPUName }

// Run samples until ctx is cancelled. In-flight ticks always complete.
func (s *Scheduler) Run(ctx context.Context) error {
	defer close(s.done)
	if err := s.Start(ctx); err != nil {
		return err
	}
	defer s.closeGPU()

	s.startCadences()
	defer s.stopCadences()

	for {
		var primaryC, rankingC <-chan time.Time
		if s.primary != nil {
			primaryC, rankingC = s.primary.C, s.ranking.C
		}
		select {
		case <-ctx.Done():
			s.log.Info("sampler stopping")
			return nil
		case <-primaryC:
			s.tickPrimary(ctx, kindPrimary)
		case <-rankingC:
			s.tickRanking(ctx, kindRanking)
		case cmd := <-s.cmds:
			s.handle(cmd.kind)
			close(cmd.ack)
		case gen := <-s.resume:
			if gen != s.gen || !s.paused {
				continue
			}
			s.paused = false
			s.debounce = nil
			s.catchUp(ctx)
			s.startCadences()
		}
	}
}

// BeginInteraction stops both cadences until the interaction ends.
func (s *Scheduler) BeginInteraction() { s.send(cmdBegin) }

// EndInteraction resumes sampling once no further interaction arrives for
// the debounce window.
func (s *Scheduler) EndInteraction() { s.send(cmdEnd) }

// Arm enables idle shutdown.
func (s *Scheduler) Arm() { s.send(cmdArm) }

// Disarm cancels idle shutdown.
func (s *Scheduler) Disarm() { s.send(cmdDisarm) }

// send hands a command to the loop and waits until it has been applied.
// It returns immediately once the loop has exited.
func (s *Scheduler) send(kind cmdKind) {
	cmd := command{kind: kind, ack: make(chan struct{})}
	select {
	case s.cmds <- cmd:
	case <-s.done:
		return
	}
	select {
	case <-cmd.ack:
	case <-s.done:
	}
}

func (s *Scheduler) handle(kind cmdKind) {
	switch kind {
	case cmdBegin:
		s.stopCadences()
		s.cancelDebounce()
		if !s.paused {
			s.log.Debug("interaction began, sampling paused")
		}
		s.paused = true
	case cmdEnd:
		if !s.paused {
			return
		}
		s.cancelDebounce()
		gen := s.gen
		s.debounce = s.clock.AfterFunc(s.cfg.Debounce, func() {
			select {
			case s.resume <- gen:
			case <-s.done:
			}
		})
	case cmdArm:
		if m := s.state.Shutdown; m != nil {
			s.emitShutdown(m.Arm(), s.clock.Now())
		}
	case cmdDisarm:
		if m := s.state.Shutdown; m != nil {
			s.emitShutdown(m.Disarm(), s.clock.Now())
		}
	}
}

func (s *Scheduler) cancelDebounce() {
	s.gen++
	if s.debounce != nil {
		s.debounce.Stop()
		s.debounce = nil
	}
}

func (s *Scheduler) startCadences() {
	s.primary = s.clock.NewTicker(s.cfg.Primary)
	s.ranking = s.clock.NewTicker(s.cfg.Ranking)
}

func (s *Scheduler) stopCadences() {
	if s.primary != nil {
		s.primary.Stop()
		s.primary = nil
	}
	if s.ranking != nil {
		s.ranking.Stop()
		s.ranking = nil
	}
}

// catchUp is the one synchronous sample taken when an interaction ends.
func (s *Scheduler) catchUp(ctx context.Context) {
	s.log.Debug("interaction ended, catching up")
	s.tickPrimary(ctx, kindCatchUp)
	s.tickRanking(ctx, kindCatchUp)
	s.notify(kindCatchUp)
}

func (s *Scheduler) closeGPU() {
	if !s.state.gpuEnabled {
		return
	}
	if err := s.src.GPU.Close(); err != nil {
		s.log.Warn("gpu close", zap.Error(err))
	}
	s.state.gpuEnabled = false
}

func (s *Scheduler) notify(kind tickKind) {
	if s.afterTick != nil {
		s.afterTick(kind)
	}
}

// emit pushes e to the presenter if the gate lets it through.
func (s *Scheduler) emit(key string, r model.Reading, label string, tol metric.Tolerance, at time.Time) {
	e := model.Emission{Key: key, Reading: r, Label: label, At: at}
	if s.state.Gate.ShouldEmit(e, tol) {
		s.out.Emit(e)
	}
}

func (s *Scheduler) failed(source string, r model.Reading) {
	if !r.Valid() {
		s.obs.SourceFailed(source, r.Cond)
	}
}

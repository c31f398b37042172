// Command hwdash is a terminal hardware dashboard: CPU, GPU, memory, disk
// and network telemetry with peak counting and an optional idle shutdown.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Dicklesworthstone/hwdash/internal/config"
	"github.com/Dicklesworthstone/hwdash/internal/logging"
	"github.com/Dicklesworthstone/hwdash/internal/model"
	"github.com/Dicklesworthstone/hwdash/internal/observability"
	"github.com/Dicklesworthstone/hwdash/internal/probe"
	"github.com/Dicklesworthstone/hwdash/internal/sampler"
	"github.com/Dicklesworthstone/hwdash/internal/shutdown"
	"github.com/Dicklesworthstone/hwdash/internal/ui"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "hwdash: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := config.Load(args)
	if errors.Is(err, pflag.ErrHelp) {
		return nil
	}
	if err != nil {
		return err
	}

	log, closeLog, err := logging.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return err
	}
	defer closeLog()
	log.Info("hwdash starting",
		zap.String("config_file", cfg.ConfigFile),
		zap.Duration("interval", cfg.Interval),
		zap.Bool("gpu", cfg.EnableGPU),
		zap.Bool("json_stream", cfg.JSONStream))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	src, err := buildSources(ctx, cfg)
	if err != nil {
		return err
	}

	idle, err := shutdown.ForMode(cfg.ShutdownMode, cfg.IdleTempC, cfg.IdleUtil)
	if err != nil {
		return err
	}
	monitor := shutdown.NewMonitor(idle, cfg.IdleSamples, shutdown.NewCommandAction(cfg.ShutdownDryRun, log), log)
	if cfg.ArmShutdown {
		monitor.Arm()
	}

	opts := []sampler.Option{sampler.WithLogger(log), sampler.WithShutdownMonitor(monitor)}
	var presenters sampler.Presenters
	var prom *observability.Prom
	if cfg.MetricsAddr != "" {
		prom = observability.NewProm(prometheus.NewRegistry())
		presenters = append(presenters, prom)
		opts = append(opts, sampler.WithObserver(prom))
	}

	var tui *ui.Program
	if cfg.JSONStream {
		presenters = append(presenters, ui.NewJSONStream(os.Stdout, log))
	} else {
		presenters = append(presenters, sampler.PresenterFunc(func(e model.Emission) { tui.Emit(e) }))
	}

	sched := sampler.New(sampler.Config{
		Primary:     cfg.Interval,
		Ranking:     cfg.RankInterval,
		Debounce:    cfg.Debounce,
		TopSlots:    cfg.TopSlots,
		PeakRising:  cfg.PeakRising,
		PeakFalling: cfg.PeakFalling,
	}, src, presenters, opts...)
	if err := sched.Start(ctx); err != nil {
		return err
	}
	if fb, ok := src.Disks.(interface{ UsingFallback() bool }); ok && fb.UsingFallback() {
		log.Warn("platform disk counters unavailable, using drive-letter counters")
	}

	g, gctx := errgroup.WithContext(ctx)
	if !cfg.JSONStream {
		tui = ui.NewProgram(gctx, ui.New(sched, cfg.TopSlots))
		g.Go(func() error {
			defer cancel()
			return tui.Run()
		})
	}
	g.Go(func() error {
		if tui != nil {
			tui.Setup(sched.GPUName(), sched.Disks())
		}
		return sched.Run(gctx)
	})
	if prom != nil {
		serveMetrics(gctx, g, cfg.MetricsAddr, prom, log)
	}

	err = g.Wait()
	log.Info("hwdash stopped", zap.Error(err))
	return err
}

func buildSources(ctx context.Context, cfg config.Config) (sampler.Sources, error) {
	cpu, err := probe.NewCPU(ctx)
	if err != nil {
		return sampler.Sources{}, err
	}
	counters, meta := probe.PlatformDisks()
	src := sampler.Sources{
		CPU:       cpu,
		Memory:    probe.Memory{},
		Net:       probe.Net{},
		Disks:     counters,
		Processes: probe.NewProcesses(),
	}
	if cfg.EnableDiskMeta {
		src.DiskMeta = meta
	}
	if cfg.EnableGPU {
		src.GPU = probe.NewNvidiaSMI()
	}
	return src, nil
}

func serveMetrics(ctx context.Context, g *errgroup.Group, addr string, prom *observability.Prom, log *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", prom.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	g.Go(func() error {
		log.Info("metrics listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

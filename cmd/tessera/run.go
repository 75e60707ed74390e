package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mattjoyce/tessera/internal/api"
	"github.com/mattjoyce/tessera/internal/control"
	"github.com/mattjoyce/tessera/internal/events"
	"github.com/mattjoyce/tessera/internal/lock"
	"github.com/mattjoyce/tessera/internal/log"
	"github.com/mattjoyce/tessera/internal/metrics"
	"github.com/mattjoyce/tessera/internal/scheduler"
)

func runRun(args []string) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	jsonOut := fs.Bool("json", false, "Print the final run status as JSON on stderr")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return control.ExitError
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return control.ExitError
	}
	log.SetupWithFormat(cfg.Service.LogLevel, cfg.Service.LogFormat)
	logger := log.WithComponent("main")

	tb, err := buildPipeline(cfg, os.Stdout)
	if err != nil {
		logger.Error("failed to build pipeline", "error", err)
		return control.ExitError
	}
	if bps := tb.Breakpoints(); len(bps) > 0 {
		logger.Warn("breakpoints are set; without the API a parked run can only be interrupted", "breakpoints", bps)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := []control.Option{
		control.WithCycleTime(cfg.Controller.CycleTime),
	}
	if cfg.State.Path != "" {
		store, closeJournal, err := openJournal(ctx, cfg, logger)
		if err != nil {
			logger.Error("failed to open run journal", "path", cfg.State.Path, "error", err)
			return control.ExitError
		}
		defer closeJournal()
		opts = append(opts, control.WithRecorder(store))
	}

	c := control.New(tb, opts...)
	if err := c.Run(ctx); err != nil {
		var runErr *control.RunError
		if !errors.As(err, &runErr) {
			logger.Error("run did not start", "error", err)
			return control.ExitError
		}
	}

	st := c.Status()
	if *jsonOut {
		data, err := json.MarshalIndent(st, "", "  ")
		if err == nil {
			fmt.Fprintln(os.Stderr, string(data))
		}
	}
	return st.Code
}

func runServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	runNow := fs.Bool("run", false, "Start a run as soon as the server is up")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	log.SetupWithFormat(cfg.Service.LogLevel, cfg.Service.LogFormat)
	logger := log.WithComponent("main")
	logger.Info("tessera starting", "version", version, "config", cfg.SourcePath)

	if !cfg.API.Enabled {
		logger.Error("serve needs the API; set api.enabled: true")
		return 1
	}

	lockPath := lock.PathFor(cfg.SourcePath, cfg.State.Path)
	pidLock, err := lock.AcquirePIDLock(lockPath)
	if err != nil {
		logger.Error("failed to acquire PID lock (another instance may be running)", "path", lockPath, "error", err)
		return 1
	}
	defer pidLock.Release()
	logger.Info("acquired PID lock", "path", lockPath)

	tb, err := buildPipeline(cfg, os.Stdout)
	if err != nil {
		logger.Error("failed to build pipeline", "error", err)
		return 1
	}
	logger.Info("pipeline configured",
		"processors", len(tb.Processors()),
		"connections", len(tb.Connections()),
		"fingerprint", tb.Fingerprint())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := events.NewHub(256)
	m := metrics.New()
	m.WatchDropped(hub.Dropped)
	opts := []control.Option{
		control.WithCycleTime(cfg.Controller.CycleTime),
		control.WithEvents(hub),
		control.WithMetrics(m),
	}

	var (
		history api.RunHistory
		pruner  scheduler.Pruner
	)
	if cfg.State.Path != "" {
		store, closeJournal, err := openJournal(ctx, cfg, logger)
		if err != nil {
			logger.Error("failed to open run journal", "path", cfg.State.Path, "error", err)
			return 1
		}
		defer closeJournal()
		opts = append(opts, control.WithRecorder(store))
		history = store
		pruner = store
	}

	c := control.New(tb, opts...)
	server := api.New(api.Config{
		Listen: cfg.API.Listen,
		APIKey: cfg.API.APIKey,
		Tokens: cfg.API.Tokens,
	}, c, tb, history, hub, m.Handler(), log.Get())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("api: %w", err)
		}
	}()

	sched := scheduler.New(scheduler.Config{
		Every:     cfg.Controller.Schedule.Every,
		Jitter:    cfg.Controller.Schedule.Jitter,
		Retention: cfg.State.Retention,
	}, c, pruner, hub, log.Get())
	sched.Start(ctx)
	defer sched.Stop()

	if *runNow {
		if err := c.Start(ctx); err != nil {
			logger.Error("failed to start run", "error", err)
			return 1
		}
	}

	logger.Info("tessera serving (press Ctrl+C to stop)", "listen", cfg.API.Listen)

	code := 0
	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		logger.Error("component failed", "error", err)
		code = 1
	}
	cancel()

	if c.Status().State == control.Running {
		c.RequestCancellation(control.ExitInterrupted)
		st := c.Wait()
		logger.Info("in-flight run stopped", "run_id", st.RunID, "state", st.State)
	}

	logger.Info("tessera stopped")
	return code
}

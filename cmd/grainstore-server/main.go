package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/cuemby/grainstore/internal/config"
	"github.com/cuemby/grainstore/internal/udptransport"
	"github.com/cuemby/grainstore/pkg/adminapi"
	"github.com/cuemby/grainstore/pkg/dispatch"
	"github.com/cuemby/grainstore/pkg/events"
	"github.com/cuemby/grainstore/pkg/extcache"
	"github.com/cuemby/grainstore/pkg/extension"
	"github.com/cuemby/grainstore/pkg/heap"
	"github.com/cuemby/grainstore/pkg/log"
	"github.com/cuemby/grainstore/pkg/metrics"
	"github.com/cuemby/grainstore/pkg/scheduler"
	"github.com/cuemby/grainstore/pkg/tenant"
	"github.com/spf13/cobra"
)

var (
	// Version is set via -ldflags at build time.
	Version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "grainstore-server",
	Short:   "grainstore - a multi-tenant in-memory key/value store with sandboxed extensions",
	Version: Version,
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(serveCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")
	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start a grainstore server: scheduler, admin API, and metrics endpoints",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("config", "", "Path to a YAML config file (defaults built in if omitted)")
}

func runServe(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}

	logger := log.WithComponent("server")
	metrics.SetVersion(Version)

	fmt.Println("Starting grainstore server...")
	fmt.Printf("  RPC listen:    %s\n", cfg.Listen)
	fmt.Printf("  Admin listen:  %s\n", cfg.AdminListen)
	fmt.Printf("  Metrics listen: %s\n", cfg.MetricsListen)
	fmt.Printf("  Data dir:      %s\n", cfg.DataDir)
	fmt.Println()

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	cache, err := extcache.Open(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open extension cache: %w", err)
	}
	defer cache.Close()
	fmt.Println("✓ Extension cache opened")

	registry := tenant.NewRegistry(cfg.ShardCount)
	h := heap.New()

	extMgr := extension.NewManager(cache)
	extension.RegisterBuiltins(extMgr)
	if err := extMgr.Restore(); err != nil {
		return fmt.Errorf("restore extensions: %w", err)
	}
	fmt.Println("✓ Extension manager ready")

	admin := adminapi.New(registry, extMgr)

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	d := dispatch.New(registry, h, extMgr, cfg.TaskCyclesBudget, cfg.MaxResponsePayload)

	transport, err := udptransport.Listen(cfg.Listen)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Listen, err)
	}
	defer transport.Close()
	fmt.Printf("✓ UDP transport listening on %s\n", cfg.Listen)

	sched := scheduler.New(d, transport, transport, broker, scheduler.Config{
		ReceiveBatch: cfg.ReceiveBatch,
		TickBudget:   cfg.TickBudget,
		KeyLen:       cfg.KeyLen,
		ValLen:       cfg.ValLen,
		TickInterval: cfg.TickInterval,
	})
	sched.Start()
	defer sched.Stop()
	fmt.Println("✓ Scheduler started")

	sampler := &processSampler{registry: registry, heap: h, extensions: extMgr, sched: sched}
	collector := metrics.NewCollector(sampler)
	collector.Start()
	defer collector.Stop()
	fmt.Println("✓ Metrics collector started")

	metrics.RegisterComponent("tenants", true, "ready")
	metrics.RegisterComponent("extcache", true, "opened")
	metrics.RegisterComponent("scheduler", true, "running")
	metrics.RegisterComponent("extensions", true, "restored")
	metrics.RegisterComponent("admin", false, "initializing")

	adminServer := newAdminServer(admin)
	adminErrCh := make(chan error, 1)
	go func() {
		if err := http.ListenAndServe(cfg.AdminListen, adminServer); err != nil && err != http.ErrServerClosed {
			adminErrCh <- fmt.Errorf("admin server error: %w", err)
		}
	}()
	metrics.RegisterComponent("admin", true, "ready")
	fmt.Printf("✓ Admin API listening on %s\n", cfg.AdminListen)

	metricsErrCh := make(chan error, 1)
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		mux.Handle("/health", metrics.HealthHandler())
		mux.Handle("/ready", metrics.ReadyHandler())
		mux.Handle("/live", metrics.LivenessHandler())
		if err := http.ListenAndServe(cfg.MetricsListen, mux); err != nil && err != http.ErrServerClosed {
			metricsErrCh <- fmt.Errorf("metrics server error: %w", err)
		}
	}()
	fmt.Printf("✓ Metrics endpoint: http://%s/metrics\n", cfg.MetricsListen)
	fmt.Printf("  - Health check: http://%s/health\n", cfg.MetricsListen)
	fmt.Printf("  - Readiness:    http://%s/ready\n", cfg.MetricsListen)
	fmt.Printf("  - Liveness:     http://%s/live\n", cfg.MetricsListen)
	fmt.Println()
	fmt.Println("grainstore is running. Press Ctrl+C to stop.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		fmt.Println("\nShutting down...")
	case err := <-adminErrCh:
		logger.Error().Err(err).Msg("admin server failed")
	case err := <-metricsErrCh:
		logger.Error().Err(err).Msg("metrics server failed")
	}

	fmt.Println("✓ Shutdown complete")
	return nil
}

// processSampler assembles a metrics.Snapshot from the live components
// this process owns. It exists only here, not in pkg/metrics, to keep
// that package free of a dependency on pkg/tenant/pkg/heap/pkg/extension
// (pkg/scheduler already imports pkg/metrics, so the reverse import would
// cycle).
type processSampler struct {
	registry   *tenant.Registry
	heap       *heap.Allocator
	extensions *extension.Manager
	sched      *scheduler.Scheduler
}

func (s *processSampler) Sample() metrics.Snapshot {
	tables := 0
	s.registry.ForEach(func(t *tenant.Tenant) {
		tables += t.TableCount()
	})

	ready, waiting := s.sched.QueueDepths()

	// The scheduler doesn't keep a standing per-state task index (tasks
	// exist only on the ready-queue, the waiting-set, or nowhere once
	// terminal), so TasksByState reports only what QueueDepths can see
	// directly; the remaining states settle to 0 on the TasksTotal gauge.
	return metrics.Snapshot{
		Tenants:          s.registry.Len(),
		Tables:           tables,
		Objects:          s.heap.Len(),
		ExtensionsLoaded: s.extensions.Count(),
		TasksByState:     map[string]int{"runnable": ready, "waiting": waiting},
		ReadyQueueDepth:  ready,
		WaitingSetDepth:  waiting,
	}
}

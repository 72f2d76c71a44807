// Command controlplaned is the control-plane daemon: it brings up the
// embedded bus, hydrates every in-memory component from durable storage,
// and serves the operator HTTP/WebSocket API until interrupted.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/habitatcp/controlplane/internal/alarms"
	"github.com/habitatcp/controlplane/internal/busx"
	"github.com/habitatcp/controlplane/internal/config"
	"github.com/habitatcp/controlplane/internal/httpapi"
	"github.com/habitatcp/controlplane/internal/lifecycle"
	"github.com/habitatcp/controlplane/internal/pea"
	"github.com/habitatcp/controlplane/internal/recipe"
	"github.com/habitatcp/controlplane/internal/simulator"
	"github.com/habitatcp/controlplane/internal/store"
	"github.com/habitatcp/controlplane/internal/topology"
	"github.com/habitatcp/controlplane/internal/tscache"
)

var rootCmd = &cobra.Command{
	Use:   "controlplaned",
	Short: "controlplaned - habitat PEA control-plane daemon",
	Long: `controlplaned hosts the Bus Broker Core, Time-Series Cache, Alarm
Engine, Topology Store, PEA Registry, Lifecycle Bridge, Recipe
Orchestrator, and Simulator Manager behind a single HTTP/WebSocket API.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context())
	},
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	rootCmd.SetContext(ctx)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "controlplaned:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	log := slog.New(slog.NewTextHandler(os.Stderr, nil))
	cfg := config.FromEnv()
	subjects := busx.Subjects{Namespace: cfg.Namespace, NodeID: cfg.NodeID}

	for _, dir := range []string{cfg.PeaConfigDir, cfg.ScenarioDir, cfg.SnapshotDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("controlplaned: prepare %s: %w", dir, err)
		}
	}

	bus, err := busx.Start(busx.ServerConfig{Port: cfg.BusPort, StoreDir: cfg.BusStoreDir})
	if err != nil {
		return fmt.Errorf("controlplaned: start bus: %w", err)
	}
	defer bus.Shutdown()
	conn := bus.Conn()

	durable, err := store.OpenSQLite(cfg.DurableStorePath)
	if err != nil {
		return fmt.Errorf("controlplaned: open durable store: %w", err)
	}
	defer durable.Close()

	snapshot, err := store.NewSnapshotMirror(cfg.SnapshotDir)
	if err != nil {
		return fmt.Errorf("controlplaned: open snapshot mirror: %w", err)
	}

	cache := tscache.New(cfg.TimeSeriesCapacity)

	alarmEngine := alarms.New(alarms.Config{
		Store:         durable,
		Snapshot:      snapshot,
		Publisher:     conn,
		ActionSubject: subjects.AlarmAction(),
		Logger:        log.With("component", "alarms"),
	})
	if err := alarmEngine.LoadFromStore(ctx); err != nil {
		return fmt.Errorf("controlplaned: hydrate alarms: %w", err)
	}

	topoStore := topology.New(topology.Config{
		Store:     durable,
		Snapshot:  snapshot,
		Publisher: conn,
		Subject:   subjects.Topology(),
		Logger:    log.With("component", "topology"),
	})
	if err := topoStore.LoadFromStore(ctx); err != nil {
		return fmt.Errorf("controlplaned: hydrate topology: %w", err)
	}

	peaRegistry := pea.New(pea.Config{
		Dir:    cfg.PeaConfigDir,
		Logger: log.With("component", "pea"),
	})
	if err := peaRegistry.LoadFromDisk(); err != nil {
		return fmt.Errorf("controlplaned: hydrate pea registry: %w", err)
	}

	simManager := simulator.NewManager(subjects, conn, log.With("component", "simulator"))

	lifecycleBridge := lifecycle.New(lifecycle.Config{
		Registry:   peaRegistry,
		Publisher:  conn,
		Simulators: simManager,
		Subjects:   subjects,
		Logger:     log.With("component", "lifecycle"),
	})

	recipeOrchestrator := recipe.New(recipe.Config{
		Topology: topoStore,
		Cache:    cache,
		Pub:      conn,
		Subjects: subjects,
		Logger:   log.With("component", "recipe"),
	})

	broker := busx.New(conn, busx.BrokerConfig{
		Subjects:          subjects,
		IngestionPrefixes: cfg.IngestionPrefixes,
		Telemetry:         cache,
		Alarms:            alarmEngine,
		AlarmActions:      alarmEngine,
		Topology:          topoStore,
		Logger:            log.With("component", "busx"),
	})
	broker.Start(ctx)

	router := httpapi.New(httpapi.Config{
		Alarms:      alarmEngine,
		Topology:    topoStore,
		Peas:        peaRegistry,
		Lifecycle:   lifecycleBridge,
		Recipes:     recipeOrchestrator,
		TimeSeries:  cache,
		Simulators:  simManager,
		BusConn:     conn,
		ServiceName: "controlplaned",
		ScenarioDir: cfg.ScenarioDir,
		Logger:      log.With("component", "httpapi"),
	})

	addr := net.JoinHostPort(cfg.HTTPHost, fmt.Sprintf("%d", cfg.HTTPPort))
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("controlplaned: listening", "addr", addr, "bus_port", bus.Port())
		serveErr <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("controlplaned: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Warn("controlplaned: http shutdown", "error", err)
		}
		return nil
	case err := <-serveErr:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("controlplaned: http serve: %w", err)
		}
		return nil
	}
}

// Command simulate runs one Simulator Task scenario against a live bus
// without the rest of the daemon, for exercising the telemetry pipeline
// by hand during development.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/habitatcp/controlplane/internal/busx"
	"github.com/habitatcp/controlplane/internal/simulator"
)

var (
	natsURL    string
	namespace  string
	nodeID     string
	scenarioID string
	tickMs     int
	durationS  float64
)

var rootCmd = &cobra.Command{
	Use:   "simulate <scenario-file>",
	Short: "simulate - run one simulator scenario against a bus",
	Long: `simulate loads a scenario definition and runs it to completion (or
until interrupted), publishing telemetry, state, action, and alarm
samples the same way the daemon's Lifecycle Bridge would.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context(), args[0])
	},
}

func init() {
	rootCmd.Flags().StringVar(&natsURL, "nats-url", "", "connect to an existing bus instead of embedding one")
	rootCmd.Flags().StringVar(&namespace, "namespace", "habitat", "bus subject namespace")
	rootCmd.Flags().StringVar(&nodeID, "node-id", "node1", "bus subject node id")
	rootCmd.Flags().StringVar(&scenarioID, "pea-id", "", "PEA id to publish as (default: scenario id)")
	rootCmd.Flags().IntVar(&tickMs, "tick-ms", 0, "override the scenario's tick_ms")
	rootCmd.Flags().Float64Var(&durationS, "duration-s", 0, "override the scenario's duration_s (0 = use scenario value)")
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	rootCmd.SetContext(ctx)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "simulate:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, path string) error {
	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

	scenario, err := simulator.LoadScenarioFile(path)
	if err != nil {
		return fmt.Errorf("simulate: load scenario: %w", err)
	}
	if tickMs > 0 {
		scenario.TickMs = tickMs
	}
	if durationS > 0 {
		scenario.DurationS = durationS
	}

	peaID := scenarioID
	if peaID == "" {
		peaID = scenario.ID
	}

	conn, cleanup, err := connect(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	runner := &simulator.Runner{
		PeaID:    peaID,
		Scenario: scenario,
		Subjects: busx.Subjects{Namespace: namespace, NodeID: nodeID},
		Pub:      conn,
		Log:      log,
	}

	log.Info("simulate: running scenario", "pea_id", peaID, "scenario", scenario.Name, "tick_ms", scenario.TickMs)
	runner.Run(ctx)
	return nil
}

// connect either dials an existing bus (--nats-url) or embeds one for the
// lifetime of the run, mirroring controlplaned's own startup path so a
// scenario run exercises the identical subject wiring.
func connect(ctx context.Context) (*nats.Conn, func(), error) {
	if natsURL != "" {
		conn, err := nats.Connect(natsURL, nats.Name("simulate"))
		if err != nil {
			return nil, nil, fmt.Errorf("simulate: connect to %s: %w", natsURL, err)
		}
		return conn, func() { conn.Drain(); conn.Close() }, nil
	}

	dir, err := os.MkdirTemp("", "simulate-bus-*")
	if err != nil {
		return nil, nil, fmt.Errorf("simulate: create temp bus store: %w", err)
	}
	bus, err := busx.Start(busx.ServerConfig{Port: -1, StoreDir: dir})
	if err != nil {
		os.RemoveAll(dir)
		return nil, nil, fmt.Errorf("simulate: embed bus: %w", err)
	}
	return bus.Conn(), func() { bus.Shutdown(); os.RemoveAll(dir) }, nil
}

// Package config loads the control-plane's configuration from
// environment variables, following the env-with-defaults style of
// internal/daemon.NATSConfigFromEnv in the teacher repo: a single struct,
// a single FromEnv constructor, no layered sources, no file watching.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Config holds every value spec.md §6 names as configuration.
type Config struct {
	// Namespace is the bus subject prefix ("<ns>/..." in spec.md §6).
	// spec.md §9 notes the real prefix varies by deployment; this is
	// intentionally left as plain configuration with a placeholder default.
	Namespace string
	// NodeID identifies this control-plane instance on the bus.
	NodeID string

	// BusPort is the TCP port the embedded bus server listens on.
	BusPort int
	// BusStoreDir is the JetStream file storage directory.
	BusStoreDir string

	// IngestionPrefixes are the subject prefixes BusBrokerCore tees into
	// the TimeSeriesCache, in addition to the alarm/topology/status roles
	// it always handles.
	IngestionPrefixes []string

	// PeaConfigDir is where PeaRegistry mirrors PeaConfig documents,
	// one JSON file per id.
	PeaConfigDir string
	// ScenarioDir is where the simulator looks for YAML scenario files.
	ScenarioDir string

	// DurableStorePath is the sqlite database file backing internal/store.
	DurableStorePath string
	// SnapshotDir holds the independent JSON mirror for alarms and topology.
	SnapshotDir string

	// HTTPHost and HTTPPort are the operator API bind address.
	HTTPHost string
	HTTPPort int

	// TimeSeriesCapacity is the per-key ring buffer size.
	TimeSeriesCapacity int
}

// FromEnv builds a Config from environment variables, falling back to
// defaults sized for a single-instance local deployment.
func FromEnv() Config {
	dataDir := getEnv("HABITAT_DATA_DIR", "./data")

	cfg := Config{
		Namespace:          getEnv("HABITAT_NAMESPACE", "habitat"),
		NodeID:             getEnv("HABITAT_NODE_ID", "node1"),
		BusPort:            getEnvInt("HABITAT_BUS_PORT", 4222),
		BusStoreDir:        getEnv("HABITAT_BUS_STORE_DIR", filepath.Join(dataDir, "bus")),
		IngestionPrefixes:  getEnvList("HABITAT_INGESTION_PREFIXES", []string{"data", "swimlane"}),
		PeaConfigDir:       getEnv("HABITAT_PEA_CONFIG_DIR", filepath.Join(dataDir, "pea")),
		ScenarioDir:        getEnv("HABITAT_SCENARIO_DIR", filepath.Join(dataDir, "scenarios")),
		DurableStorePath:   getEnv("HABITAT_STORE_PATH", filepath.Join(dataDir, "controlplane.db")),
		SnapshotDir:        getEnv("HABITAT_SNAPSHOT_DIR", filepath.Join(dataDir, "snapshots")),
		HTTPHost:           getEnv("HABITAT_HTTP_HOST", "0.0.0.0"),
		HTTPPort:           getEnvInt("HABITAT_HTTP_PORT", 8080),
		TimeSeriesCapacity: getEnvInt("HABITAT_TS_CAPACITY", 86400),
	}
	return cfg
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getEnvList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}

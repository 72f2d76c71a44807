// Package pea implements the PeaRegistry of spec.md §4.4: the set of
// loaded PeaConfig documents plus the most recently observed
// PeaRuntimeStatus per PEA id.
package pea

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/habitatcp/controlplane/internal/cperrors"
	"github.com/habitatcp/controlplane/internal/types"
)

// Registry holds PeaConfig documents and PeaRuntimeStatus snapshots,
// each behind its own RWMutex per spec.md §5.
type Registry struct {
	mu      sync.RWMutex
	configs map[string]*types.PeaConfig

	statusMu sync.RWMutex
	statuses map[string]*types.PeaRuntimeStatus

	dir string
	log *slog.Logger
	now func() time.Time
}

// Config wires a Registry's collaborators.
type Config struct {
	// Dir is the directory holding one JSON file per PEA id. Required.
	Dir    string
	Logger *slog.Logger
}

// New creates a Registry backed by dir. Call LoadFromDisk to hydrate
// configs already present at startup.
func New(cfg Config) *Registry {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		configs:  make(map[string]*types.PeaConfig),
		statuses: make(map[string]*types.PeaRuntimeStatus),
		dir:      cfg.Dir,
		log:      log,
		now:      time.Now,
	}
}

// LoadFromDisk reads every `*.json` file in the registry's directory as a
// PeaConfig.
func (r *Registry) LoadFromDisk() error {
	if r.dir == "" {
		return nil
	}
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return fmt.Errorf("pea: create config dir: %w", err)
	}
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return fmt.Errorf("pea: read config dir: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(r.dir, entry.Name()))
		if err != nil {
			r.log.Warn("pea: skipping unreadable config", "file", entry.Name(), "error", err)
			continue
		}
		var cfg types.PeaConfig
		if err := json.Unmarshal(data, &cfg); err != nil {
			r.log.Warn("pea: skipping malformed config", "file", entry.Name(), "error", err)
			continue
		}
		r.configs[cfg.ID] = &cfg
	}
	return nil
}

// List returns a snapshot of every loaded PeaConfig.
func (r *Registry) List() []types.PeaConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.PeaConfig, 0, len(r.configs))
	for _, c := range r.configs {
		out = append(out, *c)
	}
	return out
}

// Get returns a snapshot of one PeaConfig by id. Safe to call without
// holding any lock the caller already has — this is the read-only path
// spec.md §4.10 requires LifecycleBridge to use before publishing.
func (r *Registry) Get(id string) (types.PeaConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.configs[id]
	if !ok {
		return types.PeaConfig{}, false
	}
	return *c, true
}

// Put validates and persists cfg, inserting or replacing by id.
func (r *Registry) Put(ctx context.Context, cfg types.PeaConfig) (types.PeaConfig, error) {
	if cfg.ID == "" {
		return types.PeaConfig{}, cperrors.Validation("pea: config must have a non-empty id")
	}
	if err := cfg.Validate(); err != nil {
		return types.PeaConfig{}, cperrors.Validation("pea: %v", err)
	}
	cfg.UpdatedAt = r.now()

	if err := r.persist(cfg); err != nil {
		return types.PeaConfig{}, err
	}

	r.mu.Lock()
	r.configs[cfg.ID] = &cfg
	r.mu.Unlock()
	return cfg, nil
}

// Delete removes a PeaConfig by id, including its durable JSON mirror.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	if _, ok := r.configs[id]; !ok {
		r.mu.Unlock()
		return cperrors.NotFound("pea: no config with id %q", id)
	}
	delete(r.configs, id)
	r.mu.Unlock()

	if r.dir == "" {
		return nil
	}
	path := filepath.Join(r.dir, id+".json")
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("pea: delete config file: %w", err)
	}
	return nil
}

func (r *Registry) persist(cfg types.PeaConfig) error {
	if r.dir == "" {
		return nil
	}
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return fmt.Errorf("pea: create config dir: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("pea: marshal config: %w", err)
	}
	path := filepath.Join(r.dir, cfg.ID+".json")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("pea: write config: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("pea: rename config into place: %w", err)
	}
	return nil
}

// Status returns the last-known runtime status for a PEA, if any.
func (r *Registry) Status(id string) (types.PeaRuntimeStatus, bool) {
	r.statusMu.RLock()
	defer r.statusMu.RUnlock()
	s, ok := r.statuses[id]
	if !ok {
		return types.PeaRuntimeStatus{}, false
	}
	return *s.Clone(), true
}

// SetStatus replaces the runtime status for a PEA. Not persisted per
// spec.md §4.4 — runtime status is reflected state, reconstructed from
// bus traffic after a restart.
func (r *Registry) SetStatus(id string, status types.PeaRuntimeStatus) {
	status.UpdatedAt = r.now()
	r.statusMu.Lock()
	r.statuses[id] = &status
	r.statusMu.Unlock()
}

// ClearStatus removes the runtime status for a PEA (used on undeploy).
func (r *Registry) ClearStatus(id string) {
	r.statusMu.Lock()
	delete(r.statuses, id)
	r.statusMu.Unlock()
}

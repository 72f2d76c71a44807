// Package topology implements the TopologyStore of spec.md §4.3: the set
// of directed edges permitting one PEA's recipe step to follow another's.
package topology

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/habitatcp/controlplane/internal/store"
	"github.com/habitatcp/controlplane/internal/types"
)

// Publisher is the narrow bus dependency Store needs to re-broadcast a
// locally-originated topology replacement.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Store holds the current topology snapshot behind a single RWMutex, per
// spec.md §5 (topology is one of the independently-lockable in-memory
// tables).
type Store struct {
	mu   sync.RWMutex
	topo types.Topology

	store    store.Store
	snapshot *store.SnapshotMirror
	pub      Publisher
	subject  string
	log      *slog.Logger

	now func() time.Time
}

// Config wires a Store's collaborators.
type Config struct {
	Store     store.Store
	Snapshot  *store.SnapshotMirror
	Publisher Publisher
	Subject   string
	Logger    *slog.Logger
}

// New creates an empty Store. Call LoadFromStore to hydrate from durable
// state at startup.
func New(cfg Config) *Store {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Store{
		store:    cfg.Store,
		snapshot: cfg.Snapshot,
		pub:      cfg.Publisher,
		subject:  cfg.Subject,
		log:      log,
		now:      time.Now,
	}
}

// LoadFromStore hydrates the topology from the durable store's edge rows.
func (s *Store) LoadFromStore(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	rows, err := s.store.LoadAll(ctx, store.TableTopology)
	if err != nil {
		return fmt.Errorf("topology: load edges: %w", err)
	}
	edges := make([]types.TopologyEdge, 0, len(rows))
	for _, row := range rows {
		var e types.TopologyEdge
		if err := json.Unmarshal(row.Data, &e); err == nil {
			edges = append(edges, e)
		}
	}
	s.mu.Lock()
	s.topo = types.Topology{Edges: edges, UpdatedAt: s.now()}
	s.mu.Unlock()
	return nil
}

// Get returns a snapshot of the current topology.
func (s *Store) Get() types.Topology {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp := s.topo
	cp.Edges = append([]types.TopologyEdge(nil), s.topo.Edges...)
	return cp
}

// Set replaces the topology atomically, persists it, and re-broadcasts on
// the topology subject (spec.md §4.3). This is the operator/HTTP-driven
// path, distinct from ApplyRemote.
func (s *Store) Set(ctx context.Context, edges []types.TopologyEdge) (types.Topology, error) {
	topo := s.replace(edges)

	if err := s.persist(ctx, topo); err != nil {
		return topo, err
	}
	s.broadcast(topo)
	return topo, nil
}

// ApplyRemote mirrors a bus-observed topology replacement into the
// in-memory snapshot without re-persisting or re-broadcasting — the
// writer that originated it already did both. This breaks the feedback
// loop spec.md §4.3 calls out explicitly.
func (s *Store) ApplyRemote(payload json.RawMessage) error {
	var topo types.Topology
	if err := json.Unmarshal(payload, &topo); err != nil {
		s.log.Debug("dropping malformed topology broadcast", "error", err)
		return nil
	}
	s.mu.Lock()
	s.topo = topo
	s.mu.Unlock()
	return nil
}

func (s *Store) replace(edges []types.TopologyEdge) types.Topology {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.topo = types.Topology{
		Edges:     append([]types.TopologyEdge(nil), edges...),
		UpdatedAt: s.now(),
	}
	cp := s.topo
	cp.Edges = append([]types.TopologyEdge(nil), s.topo.Edges...)
	return cp
}

func (s *Store) persist(ctx context.Context, topo types.Topology) error {
	rows := make([]store.Row, 0, len(topo.Edges))
	for i, e := range topo.Edges {
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("topology: marshal edge: %w", err)
		}
		rows = append(rows, store.Row{ID: strconv.Itoa(i), Data: data})
	}
	if s.store != nil {
		if err := s.store.ReplaceAll(ctx, store.TableTopology, rows); err != nil {
			s.log.Warn("durable topology replace failed", "error", err)
		}
	}
	if s.snapshot != nil {
		if err := s.snapshot.Write("topology", topo); err != nil {
			s.log.Warn("topology snapshot write failed", "error", err)
		}
	}
	return nil
}

func (s *Store) broadcast(topo types.Topology) {
	if s.pub == nil || s.subject == "" {
		return
	}
	data, err := json.Marshal(topo)
	if err != nil {
		return
	}
	if err := s.pub.Publish(s.subject, data); err != nil {
		s.log.Warn("topology broadcast failed", "error", err)
	}
}

// Has reports whether the directed edge from->to is present in the
// current topology.
func (s *Store) Has(from, to string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.topo.Has(from, to)
}

// Empty reports whether the current topology has no edges at all — used
// by RecipeOrchestrator's "topology empty" fast-fail (spec.md §4.7).
func (s *Store) Empty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.topo.Edges) == 0
}

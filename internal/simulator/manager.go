package simulator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/habitatcp/controlplane/internal/busx"
)

// Manager enforces spec.md §4.8's "at most one simulator task per PEA id
// plus one standalone instance" invariant and owns the cancel functions
// needed to abort a running task.
type Manager struct {
	mu      sync.Mutex
	running map[string]context.CancelFunc

	subjects busx.Subjects
	pub      Publisher
	log      *slog.Logger
}

// NewManager creates an empty Manager.
func NewManager(subjects busx.Subjects, pub Publisher, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		running:  make(map[string]context.CancelFunc),
		subjects: subjects,
		pub:      pub,
		log:      log,
	}
}

// Start launches a scenario for peaID, returning an error if one is
// already running for that id. The standalone instance uses a
// conventional id ("" is reserved for it by convention of the caller).
func (m *Manager) Start(ctx context.Context, peaID string, scenario Scenario) error {
	m.mu.Lock()
	if _, ok := m.running[peaID]; ok {
		m.mu.Unlock()
		return fmt.Errorf("simulator: already running for pea %q", peaID)
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.running[peaID] = cancel
	m.mu.Unlock()

	runner := &Runner{PeaID: peaID, Scenario: scenario, Subjects: m.subjects, Pub: m.pub, Log: m.log}
	go func() {
		runner.Run(runCtx)
		m.mu.Lock()
		delete(m.running, peaID)
		m.mu.Unlock()
	}()
	return nil
}

// Stop aborts the simulator task for peaID, if one is running. Cancelling
// a task releases its bus subscriptions implicitly — simulators only
// publish, never subscribe.
func (m *Manager) Stop(peaID string) {
	m.mu.Lock()
	cancel, ok := m.running[peaID]
	if ok {
		delete(m.running, peaID)
	}
	m.mu.Unlock()
	if ok {
		cancel()
	}
}

// Running reports whether a simulator task is active for peaID.
func (m *Manager) Running(peaID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.running[peaID]
	return ok
}

// Count returns the number of currently running simulator tasks, used by
// the metrics endpoint.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.running)
}

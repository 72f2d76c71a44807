// Package lifecycle implements the LifecycleBridge of spec.md §4.5: the
// deploy/undeploy/start/stop/command_service surface that translates
// operator intent into bus events, coordinating PeaRegistry and the
// per-PEA simulator lifecycle.
package lifecycle

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/habitatcp/controlplane/internal/busx"
	"github.com/habitatcp/controlplane/internal/cperrors"
	"github.com/habitatcp/controlplane/internal/simulator"
	"github.com/habitatcp/controlplane/internal/types"
)

// Registry is the narrow PeaRegistry dependency Bridge needs.
type Registry interface {
	Get(id string) (types.PeaConfig, bool)
	SetStatus(id string, status types.PeaRuntimeStatus)
	ClearStatus(id string)
}

// Publisher is the narrow bus dependency Bridge needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Simulators is the narrow simulator-lifecycle dependency Bridge needs.
type Simulators interface {
	Start(ctx context.Context, peaID string, scenario simulator.Scenario) error
	Stop(peaID string)
}

// commandCodes follows the PackML command-code convention (reset=1,
// start=2, stop=3, hold=4, unhold=5, suspend=6, unsuspend=7, abort=8,
// clear=9); commands outside this set get code 0.
var commandCodes = map[string]int{
	"reset": 1, "start": 2, "stop": 3, "hold": 4, "unhold": 5,
	"suspend": 6, "unsuspend": 7, "abort": 8, "clear": 9,
}

// Bridge is the LifecycleBridge component.
type Bridge struct {
	registry Registry
	pub      Publisher
	sims     Simulators
	subjects busx.Subjects
	log      *slog.Logger
	now      func() time.Time
}

// Config wires a Bridge's collaborators.
type Config struct {
	Registry   Registry
	Publisher  Publisher
	Simulators Simulators
	Subjects   busx.Subjects
	Logger     *slog.Logger
}

// New creates a Bridge.
func New(cfg Config) *Bridge {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Bridge{
		registry: cfg.Registry,
		pub:      cfg.Publisher,
		sims:     cfg.Simulators,
		subjects: cfg.Subjects,
		log:      log,
		now:      time.Now,
	}
}

type deployPayload struct {
	Action    string          `json:"action"`
	PeaConfig types.PeaConfig `json:"pea_config"`
}

type lifecyclePayload struct {
	Action string `json:"action"`
}

// Deploy publishes the deploy envelope carrying the *whole* PeaConfig
// (spec.md §4.10 — the device-broker agent has no other channel to learn
// service topology), then an initial Idle runtime status so consumers
// see immediate effect without waiting on the device-broker round trip.
func (b *Bridge) Deploy(ctx context.Context, peaID string) error {
	cfg, ok := b.registry.Get(peaID)
	if !ok {
		return cperrors.NotFound("lifecycle: no pea config with id %q", peaID)
	}

	data, err := json.Marshal(deployPayload{Action: "deploy", PeaConfig: cfg})
	if err != nil {
		return fmt.Errorf("lifecycle: marshal deploy envelope: %w", err)
	}
	if err := b.pub.Publish(b.subjects.Deploy(peaID), data); err != nil {
		return cperrors.Wrap(cperrors.KindTransientBus, "lifecycle: publish deploy", err)
	}

	services := make([]types.ServiceRuntimeState, 0, len(cfg.Services))
	for _, svc := range cfg.Services {
		services = append(services, types.ServiceRuntimeState{Tag: svc.Tag, State: types.StateIdle})
	}
	status := types.PeaRuntimeStatus{Deployed: true, Running: false, Services: services}
	b.registry.SetStatus(peaID, status)
	return b.publishStatus(peaID, status)
}

// Undeploy publishes undeploy, clears runtime status, and aborts any
// running simulator for the PEA.
func (b *Bridge) Undeploy(ctx context.Context, peaID string) error {
	if _, ok := b.registry.Get(peaID); !ok {
		return cperrors.NotFound("lifecycle: no pea config with id %q", peaID)
	}

	data, err := json.Marshal(lifecyclePayload{Action: "undeploy"})
	if err != nil {
		return fmt.Errorf("lifecycle: marshal undeploy: %w", err)
	}
	if err := b.pub.Publish(b.subjects.Lifecycle(peaID), data); err != nil {
		return cperrors.Wrap(cperrors.KindTransientBus, "lifecycle: publish undeploy", err)
	}

	if b.sims != nil {
		b.sims.Stop(peaID)
	}
	b.registry.ClearStatus(peaID)
	return nil
}

// Start publishes lifecycle start, spawns a simulator instance for the
// PEA so pipeline behavior is exercised absent real hardware, and
// publishes a running-state status.
func (b *Bridge) Start(ctx context.Context, peaID string, scenario simulator.Scenario) error {
	cfg, ok := b.registry.Get(peaID)
	if !ok {
		return cperrors.NotFound("lifecycle: no pea config with id %q", peaID)
	}

	data, err := json.Marshal(lifecyclePayload{Action: "start"})
	if err != nil {
		return fmt.Errorf("lifecycle: marshal start: %w", err)
	}
	if err := b.pub.Publish(b.subjects.Lifecycle(peaID), data); err != nil {
		return cperrors.Wrap(cperrors.KindTransientBus, "lifecycle: publish start", err)
	}

	if b.sims != nil {
		scenario.ID = peaID
		if err := b.sims.Start(ctx, peaID, scenario); err != nil {
			b.log.Warn("lifecycle: simulator already running", "pea_id", peaID, "error", err)
		}
	}

	services := make([]types.ServiceRuntimeState, 0, len(cfg.Services))
	for _, svc := range cfg.Services {
		services = append(services, types.ServiceRuntimeState{Tag: svc.Tag, State: types.StateExecute})
	}
	status := types.PeaRuntimeStatus{Deployed: true, Running: true, Services: services}
	b.registry.SetStatus(peaID, status)
	return b.publishStatus(peaID, status)
}

// Stop publishes lifecycle stop, aborts the PEA's simulator task if any,
// and publishes an idle status.
func (b *Bridge) Stop(ctx context.Context, peaID string) error {
	cfg, ok := b.registry.Get(peaID)
	if !ok {
		return cperrors.NotFound("lifecycle: no pea config with id %q", peaID)
	}

	data, err := json.Marshal(lifecyclePayload{Action: "stop"})
	if err != nil {
		return fmt.Errorf("lifecycle: marshal stop: %w", err)
	}
	if err := b.pub.Publish(b.subjects.Lifecycle(peaID), data); err != nil {
		return cperrors.Wrap(cperrors.KindTransientBus, "lifecycle: publish stop", err)
	}

	if b.sims != nil {
		b.sims.Stop(peaID)
	}

	services := make([]types.ServiceRuntimeState, 0, len(cfg.Services))
	for _, svc := range cfg.Services {
		services = append(services, types.ServiceRuntimeState{Tag: svc.Tag, State: types.StateIdle})
	}
	status := types.PeaRuntimeStatus{Deployed: true, Running: false, Services: services}
	b.registry.SetStatus(peaID, status)
	return b.publishStatus(peaID, status)
}

// CommandService validates that the PEA and tagged service exist, then
// publishes a command envelope on the per-service command subject.
func (b *Bridge) CommandService(ctx context.Context, peaID, serviceTag, command string, procedureID *int) error {
	cfg, ok := b.registry.Get(peaID)
	if !ok {
		return cperrors.NotFound("lifecycle: no pea config with id %q", peaID)
	}
	found := false
	for _, svc := range cfg.Services {
		if svc.Tag == serviceTag {
			found = true
			break
		}
	}
	if !found {
		return cperrors.NotFound("lifecycle: no service tagged %q in pea %q", serviceTag, peaID)
	}

	env := types.CommandEnvelope{
		Command:     command,
		CommandCode: commandCodes[command],
		ProcedureID: procedureID,
		Timestamp:   b.now(),
	}
	data, err := types.MarshalCommand(env)
	if err != nil {
		return fmt.Errorf("lifecycle: marshal command: %w", err)
	}
	if err := b.pub.Publish(b.subjects.ServiceCommand(peaID, serviceTag), data); err != nil {
		return cperrors.Wrap(cperrors.KindTransientBus, "lifecycle: publish command", err)
	}
	return nil
}

func (b *Bridge) publishStatus(peaID string, status types.PeaRuntimeStatus) error {
	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("lifecycle: marshal status: %w", err)
	}
	if err := b.pub.Publish(b.subjects.Status(peaID), data); err != nil {
		return cperrors.Wrap(cperrors.KindTransientBus, "lifecycle: publish status", err)
	}
	return nil
}

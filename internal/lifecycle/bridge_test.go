package lifecycle

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/habitatcp/controlplane/internal/busx"
	"github.com/habitatcp/controlplane/internal/simulator"
	"github.com/habitatcp/controlplane/internal/types"
)

type fakeRegistry struct {
	configs  map[string]types.PeaConfig
	statuses map[string]types.PeaRuntimeStatus
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{configs: make(map[string]types.PeaConfig), statuses: make(map[string]types.PeaRuntimeStatus)}
}

func (r *fakeRegistry) Get(id string) (types.PeaConfig, bool) {
	c, ok := r.configs[id]
	return c, ok
}
func (r *fakeRegistry) SetStatus(id string, status types.PeaRuntimeStatus) { r.statuses[id] = status }
func (r *fakeRegistry) ClearStatus(id string)                             { delete(r.statuses, id) }

type fakePublisher struct {
	published map[string][][]byte
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{published: make(map[string][][]byte)}
}

func (p *fakePublisher) Publish(subject string, data []byte) error {
	p.published[subject] = append(p.published[subject], data)
	return nil
}

type fakeSimulators struct {
	started map[string]bool
}

func newFakeSimulators() *fakeSimulators { return &fakeSimulators{started: make(map[string]bool)} }

func (s *fakeSimulators) Start(ctx context.Context, peaID string, scenario simulator.Scenario) error {
	s.started[peaID] = true
	return nil
}
func (s *fakeSimulators) Stop(peaID string) { delete(s.started, peaID) }

func newTestBridge() (*Bridge, *fakeRegistry, *fakePublisher, *fakeSimulators) {
	reg := newFakeRegistry()
	pub := newFakePublisher()
	sims := newFakeSimulators()
	subs := busx.Subjects{Namespace: "ns", NodeID: "node1"}
	b := New(Config{Registry: reg, Publisher: pub, Simulators: sims, Subjects: subs})
	return b, reg, pub, sims
}

func TestDeployPublishesFullConfigAndIdleStatus(t *testing.T) {
	b, reg, pub, _ := newTestBridge()
	cfg := types.PeaConfig{ID: "P1", Services: []types.Service{{Tag: "svc1"}}}
	reg.configs["P1"] = cfg

	if err := b.Deploy(context.Background(), "P1"); err != nil {
		t.Fatalf("deploy: %v", err)
	}

	subs := busx.Subjects{Namespace: "ns", NodeID: "node1"}
	deployMsgs := pub.published[subs.Deploy("P1")]
	if len(deployMsgs) != 1 {
		t.Fatalf("expected one deploy publish, got %d", len(deployMsgs))
	}
	var env deployPayload
	if err := json.Unmarshal(deployMsgs[0], &env); err != nil {
		t.Fatalf("unmarshal deploy envelope: %v", err)
	}
	if env.PeaConfig.ID != "P1" || len(env.PeaConfig.Services) != 1 {
		t.Fatalf("expected the whole PeaConfig in the deploy envelope, got %+v", env.PeaConfig)
	}

	status := reg.statuses["P1"]
	if !status.Deployed || status.Running {
		t.Fatalf("expected deployed=true running=false, got %+v", status)
	}
	if status.Services[0].State != types.StateIdle {
		t.Fatalf("expected initial service state Idle, got %v", status.Services[0].State)
	}
}

func TestStartSpawnsSimulatorAndSetsRunning(t *testing.T) {
	b, reg, _, sims := newTestBridge()
	reg.configs["P1"] = types.PeaConfig{ID: "P1", Services: []types.Service{{Tag: "svc1"}}}

	if err := b.Start(context.Background(), "P1", simulator.Scenario{TickMs: 100}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !sims.started["P1"] {
		t.Fatalf("expected simulator started for P1")
	}
	if !reg.statuses["P1"].Running {
		t.Fatalf("expected running status after start")
	}
}

func TestStopAbortsSimulatorAndSetsIdle(t *testing.T) {
	b, reg, _, sims := newTestBridge()
	reg.configs["P1"] = types.PeaConfig{ID: "P1", Services: []types.Service{{Tag: "svc1"}}}
	sims.started["P1"] = true

	if err := b.Stop(context.Background(), "P1"); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if sims.started["P1"] {
		t.Fatalf("expected simulator stopped")
	}
	if reg.statuses["P1"].Running {
		t.Fatalf("expected running=false after stop")
	}
}

func TestUndeployClearsStatusAndAbortsSimulator(t *testing.T) {
	b, reg, _, sims := newTestBridge()
	reg.configs["P1"] = types.PeaConfig{ID: "P1"}
	reg.statuses["P1"] = types.PeaRuntimeStatus{Deployed: true}
	sims.started["P1"] = true

	if err := b.Undeploy(context.Background(), "P1"); err != nil {
		t.Fatalf("undeploy: %v", err)
	}
	if _, ok := reg.statuses["P1"]; ok {
		t.Fatalf("expected status cleared after undeploy")
	}
	if sims.started["P1"] {
		t.Fatalf("expected simulator aborted after undeploy")
	}
}

func TestCommandServiceValidatesPeaAndService(t *testing.T) {
	b, reg, pub, _ := newTestBridge()
	reg.configs["P1"] = types.PeaConfig{ID: "P1", Services: []types.Service{{Tag: "svc1"}}}

	if err := b.CommandService(context.Background(), "P1", "missing", "start", nil); err == nil {
		t.Fatalf("expected error for unknown service tag")
	}
	if err := b.CommandService(context.Background(), "missing", "svc1", "start", nil); err == nil {
		t.Fatalf("expected error for unknown pea id")
	}

	if err := b.CommandService(context.Background(), "P1", "svc1", "start", nil); err != nil {
		t.Fatalf("command_service: %v", err)
	}
	subs := busx.Subjects{Namespace: "ns", NodeID: "node1"}
	msgs := pub.published[subs.ServiceCommand("P1", "svc1")]
	if len(msgs) != 1 {
		t.Fatalf("expected one command publish, got %d", len(msgs))
	}
	var env types.CommandEnvelope
	if err := json.Unmarshal(msgs[0], &env); err != nil {
		t.Fatalf("unmarshal command envelope: %v", err)
	}
	if env.Command != "start" || env.CommandCode != 2 {
		t.Fatalf("unexpected command envelope: %+v", env)
	}
}

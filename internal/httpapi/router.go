package httpapi

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/habitatcp/controlplane/internal/simulator"
	"github.com/habitatcp/controlplane/internal/types"
	"github.com/nats-io/nats.go"
)

// Alarms is the narrow AlarmEngine dependency the alarm/rule/blackout
// routes need.
type Alarms interface {
	List() []types.AlarmRecord
	Get(id string) (types.AlarmRecord, bool)
	Ack(ctx context.Context, id string) (*types.AlarmRecord, error)
	Shelve(ctx context.Context, id string) (*types.AlarmRecord, error)
	Action(ctx context.Context, id, action string) (*types.AlarmRecord, error)
	Delete(ctx context.Context, id string) error

	ListRules() []types.AlarmRule
	CreateRule(ctx context.Context, r types.AlarmRule) (types.AlarmRule, error)
	UpdateRule(ctx context.Context, id string, r types.AlarmRule) (types.AlarmRule, error)
	DeleteRule(ctx context.Context, id string) error

	ListBlackouts() []types.BlackoutWindow
	CreateBlackout(ctx context.Context, w types.BlackoutWindow) (types.BlackoutWindow, error)
	DeleteBlackout(ctx context.Context, id string) error
}

// Topology is the narrow TopologyStore dependency the /pol/topology route
// needs.
type Topology interface {
	Get() types.Topology
	Set(ctx context.Context, edges []types.TopologyEdge) (types.Topology, error)
}

// Peas is the narrow PeaRegistry dependency the /pea and /machines routes
// need.
type Peas interface {
	List() []types.PeaConfig
	Get(id string) (types.PeaConfig, bool)
	Put(ctx context.Context, cfg types.PeaConfig) (types.PeaConfig, error)
	Delete(id string) error
	Status(id string) (types.PeaRuntimeStatus, bool)
}

// Lifecycle is the narrow LifecycleBridge dependency the /pea/{id}/...
// lifecycle action routes need.
type Lifecycle interface {
	Deploy(ctx context.Context, peaID string) error
	Undeploy(ctx context.Context, peaID string) error
	Start(ctx context.Context, peaID string, scenario simulator.Scenario) error
	Stop(ctx context.Context, peaID string) error
	CommandService(ctx context.Context, peaID, serviceTag, command string, procedureID *int) error
}

// Recipes is the narrow RecipeOrchestrator dependency the /recipes routes
// need.
type Recipes interface {
	ListRecipes() []types.Recipe
	GetRecipe(id string) (types.Recipe, bool)
	PutRecipe(r types.Recipe)
	DeleteRecipe(id string) error
	Execute(ctx context.Context, recipeID string) (string, error)
	GetExecution(id string) (types.RecipeExecution, bool)
	ListExecutions() []types.RecipeExecution
}

// TimeSeries is the narrow TimeSeriesCache dependency the /ts routes need.
type TimeSeries interface {
	Keys() []string
	Latest(subject string) (types.TimeSeriesPoint, bool)
	Query(subject string, startMs, endMs int64) []types.TimeSeriesPoint
}

// Simulators is the narrow simulator.Manager dependency the metrics route
// needs for the active-simulator-count gauge.
type Simulators interface {
	Count() int
}

// Config wires a Router's collaborators. Logger, Simulators, ServiceName
// and ScenarioDir may be left zero: Logger and ServiceName fall back to
// defaults and a nil Simulators reports zero active simulators.
type Config struct {
	Alarms     Alarms
	Topology   Topology
	Peas       Peas
	Lifecycle  Lifecycle
	Recipes    Recipes
	TimeSeries TimeSeries
	Simulators Simulators

	// BusConn is the in-process NATS connection /ws upgrades delegate to.
	BusConn *nats.Conn
	// ServiceName is reported by GET /health.
	ServiceName string
	// ScenarioDir resolves a scenario_file name passed to
	// POST /pea/{id}/start into a path simulator.LoadScenarioFile can read.
	ScenarioDir string

	Logger *slog.Logger
}

// Router builds the http.ServeMux exposing spec.md §6's /api/v1 surface.
type Router struct {
	cfg Config
	log *slog.Logger
}

// New builds the *http.ServeMux for the control-plane's HTTP API, rooted
// at /api/v1, plus /ws and /health at top level (spec.md §6 lists both
// forms; this control-plane mounts the whole thing under one mux so a
// single http.Server can serve it, matching the teacher's single
// http.ServeMux in internal/rpc/http_server.go).
func New(cfg Config) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	rt := &Router{cfg: cfg, log: log}

	mux := http.NewServeMux()
	rt.registerHealth(mux)
	rt.registerMetrics(mux)
	rt.registerAlarms(mux)
	rt.registerTopology(mux)
	rt.registerMachines(mux)
	rt.registerPea(mux)
	rt.registerRecipes(mux)
	rt.registerTimeSeries(mux)
	rt.registerWebSocket(mux)
	return mux
}

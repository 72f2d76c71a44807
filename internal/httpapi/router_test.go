package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/habitatcp/controlplane/internal/cperrors"
	"github.com/habitatcp/controlplane/internal/simulator"
	"github.com/habitatcp/controlplane/internal/types"
)

type fakeAlarms struct {
	records   map[string]types.AlarmRecord
	rules     []types.AlarmRule
	blackouts []types.BlackoutWindow
}

func (f *fakeAlarms) List() []types.AlarmRecord {
	out := make([]types.AlarmRecord, 0, len(f.records))
	for _, r := range f.records {
		out = append(out, r)
	}
	return out
}
func (f *fakeAlarms) Get(id string) (types.AlarmRecord, bool) { r, ok := f.records[id]; return r, ok }
func (f *fakeAlarms) Ack(ctx context.Context, id string) (*types.AlarmRecord, error) {
	return f.mutate(id, types.AlarmAcknowledged)
}
func (f *fakeAlarms) Shelve(ctx context.Context, id string) (*types.AlarmRecord, error) {
	return f.mutate(id, types.AlarmShelved)
}
func (f *fakeAlarms) Action(ctx context.Context, id, action string) (*types.AlarmRecord, error) {
	return f.mutate(id, types.AlarmStatus(action))
}
func (f *fakeAlarms) mutate(id string, status types.AlarmStatus) (*types.AlarmRecord, error) {
	r, ok := f.records[id]
	if !ok {
		return nil, cperrors.NotFound("no alarm %q", id)
	}
	r.Status = status
	f.records[id] = r
	return &r, nil
}
func (f *fakeAlarms) Delete(ctx context.Context, id string) error {
	if _, ok := f.records[id]; !ok {
		return cperrors.NotFound("no alarm %q", id)
	}
	delete(f.records, id)
	return nil
}
func (f *fakeAlarms) ListRules() []types.AlarmRule { return f.rules }
func (f *fakeAlarms) CreateRule(ctx context.Context, r types.AlarmRule) (types.AlarmRule, error) {
	r.ID = "rule-1"
	f.rules = append(f.rules, r)
	return r, nil
}
func (f *fakeAlarms) UpdateRule(ctx context.Context, id string, r types.AlarmRule) (types.AlarmRule, error) {
	r.ID = id
	return r, nil
}
func (f *fakeAlarms) DeleteRule(ctx context.Context, id string) error { return nil }
func (f *fakeAlarms) ListBlackouts() []types.BlackoutWindow           { return f.blackouts }
func (f *fakeAlarms) CreateBlackout(ctx context.Context, w types.BlackoutWindow) (types.BlackoutWindow, error) {
	w.ID = "bo-1"
	return w, nil
}
func (f *fakeAlarms) DeleteBlackout(ctx context.Context, id string) error { return nil }

type fakeTopology struct{ topo types.Topology }

func (f *fakeTopology) Get() types.Topology { return f.topo }
func (f *fakeTopology) Set(ctx context.Context, edges []types.TopologyEdge) (types.Topology, error) {
	f.topo = types.Topology{Edges: edges, UpdatedAt: time.Now()}
	return f.topo, nil
}

type fakePeas struct {
	configs  map[string]types.PeaConfig
	statuses map[string]types.PeaRuntimeStatus
}

func (f *fakePeas) List() []types.PeaConfig {
	out := make([]types.PeaConfig, 0, len(f.configs))
	for _, c := range f.configs {
		out = append(out, c)
	}
	return out
}
func (f *fakePeas) Get(id string) (types.PeaConfig, bool) { c, ok := f.configs[id]; return c, ok }
func (f *fakePeas) Put(ctx context.Context, cfg types.PeaConfig) (types.PeaConfig, error) {
	if cfg.ID == "" {
		return types.PeaConfig{}, cperrors.Validation("pea config requires an id")
	}
	f.configs[cfg.ID] = cfg
	return cfg, nil
}
func (f *fakePeas) Delete(id string) error {
	if _, ok := f.configs[id]; !ok {
		return cperrors.NotFound("no pea %q", id)
	}
	delete(f.configs, id)
	return nil
}
func (f *fakePeas) Status(id string) (types.PeaRuntimeStatus, bool) {
	s, ok := f.statuses[id]
	return s, ok
}

type fakeLifecycle struct {
	deployed map[string]bool
	started  map[string]simulator.Scenario
}

func (f *fakeLifecycle) Deploy(ctx context.Context, peaID string) error {
	f.deployed[peaID] = true
	return nil
}
func (f *fakeLifecycle) Undeploy(ctx context.Context, peaID string) error {
	delete(f.deployed, peaID)
	return nil
}
func (f *fakeLifecycle) Start(ctx context.Context, peaID string, scenario simulator.Scenario) error {
	f.started[peaID] = scenario
	return nil
}
func (f *fakeLifecycle) Stop(ctx context.Context, peaID string) error {
	delete(f.started, peaID)
	return nil
}
func (f *fakeLifecycle) CommandService(ctx context.Context, peaID, serviceTag, command string, procedureID *int) error {
	if _, ok := f.deployed[peaID]; !ok {
		return cperrors.NotFound("no pea %q", peaID)
	}
	return nil
}

type fakeRecipes struct {
	recipes map[string]types.Recipe
	execs   map[string]types.RecipeExecution
}

func (f *fakeRecipes) ListRecipes() []types.Recipe {
	out := make([]types.Recipe, 0, len(f.recipes))
	for _, r := range f.recipes {
		out = append(out, r)
	}
	return out
}
func (f *fakeRecipes) GetRecipe(id string) (types.Recipe, bool) { r, ok := f.recipes[id]; return r, ok }
func (f *fakeRecipes) PutRecipe(r types.Recipe)                 { f.recipes[r.ID] = r }
func (f *fakeRecipes) DeleteRecipe(id string) error {
	if _, ok := f.recipes[id]; !ok {
		return cperrors.NotFound("no recipe %q", id)
	}
	delete(f.recipes, id)
	return nil
}
func (f *fakeRecipes) Execute(ctx context.Context, recipeID string) (string, error) {
	if _, ok := f.recipes[recipeID]; !ok {
		return "", cperrors.NotFound("no recipe %q", recipeID)
	}
	f.execs["exec-1"] = types.RecipeExecution{ExecutionID: "exec-1", RecipeID: recipeID, State: types.ExecutionRunning}
	return "exec-1", nil
}
func (f *fakeRecipes) GetExecution(id string) (types.RecipeExecution, bool) {
	e, ok := f.execs[id]
	return e, ok
}
func (f *fakeRecipes) ListExecutions() []types.RecipeExecution {
	out := make([]types.RecipeExecution, 0, len(f.execs))
	for _, e := range f.execs {
		out = append(out, e)
	}
	return out
}

type fakeTimeSeries struct {
	keys   []string
	latest map[string]types.TimeSeriesPoint
}

func (f *fakeTimeSeries) Keys() []string { return f.keys }
func (f *fakeTimeSeries) Latest(subject string) (types.TimeSeriesPoint, bool) {
	pt, ok := f.latest[subject]
	return pt, ok
}
func (f *fakeTimeSeries) Query(subject string, startMs, endMs int64) []types.TimeSeriesPoint {
	if pt, ok := f.latest[subject]; ok {
		return []types.TimeSeriesPoint{pt}
	}
	return nil
}

type fakeSimulators struct{ count int }

func (f *fakeSimulators) Count() int { return f.count }

func newTestRouter() (http.Handler, *fakeAlarms, *fakePeas, *fakeLifecycle, *fakeRecipes) {
	alarms := &fakeAlarms{records: map[string]types.AlarmRecord{
		"a1": {ID: "a1", Status: types.AlarmOpen, Source: "s", Event: "e"},
	}}
	peas := &fakePeas{
		configs:  map[string]types.PeaConfig{"P1": {ID: "P1", Name: "Pea One"}},
		statuses: map[string]types.PeaRuntimeStatus{"P1": {Deployed: true}},
	}
	lifecycle := &fakeLifecycle{deployed: map[string]bool{"P1": true}, started: map[string]simulator.Scenario{}}
	recipes := &fakeRecipes{recipes: map[string]types.Recipe{"R1": {ID: "R1", Name: "Recipe One"}}, execs: map[string]types.RecipeExecution{}}
	ts := &fakeTimeSeries{keys: []string{"k1"}, latest: map[string]types.TimeSeriesPoint{"k1": {TimestampMs: 1, Value: json.RawMessage(`1.0`)}}}

	h := New(Config{
		Alarms:      alarms,
		Topology:    &fakeTopology{},
		Peas:        peas,
		Lifecycle:   lifecycle,
		Recipes:     recipes,
		TimeSeries:  ts,
		Simulators:  &fakeSimulators{count: 2},
		ServiceName: "test-controlplane",
	})
	return h, alarms, peas, lifecycle, recipes
}

func doRequest(h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	h, _, _, _, _ := newTestRouter()
	rec := doRequest(h, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "healthy" || body["service"] != "test-controlplane" {
		t.Fatalf("unexpected health body: %+v", body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h, _, _, _, _ := newTestRouter()
	rec := doRequest(h, http.MethodGet, "/api/v1/metrics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body metricsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.OpenAlarmCount != 1 || body.ActiveSimulatorCount != 2 || body.TimeSeriesKeyCount != 1 {
		t.Fatalf("unexpected metrics: %+v", body)
	}
}

func TestAlarmAckNotFoundReturns404(t *testing.T) {
	h, _, _, _, _ := newTestRouter()
	rec := doRequest(h, http.MethodPost, "/api/v1/alarms/missing/ack", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestAlarmAckSucceeds(t *testing.T) {
	h, alarms, _, _, _ := newTestRouter()
	rec := doRequest(h, http.MethodPost, "/api/v1/alarms/a1/ack", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if alarms.records["a1"].Status != types.AlarmAcknowledged {
		t.Fatalf("expected alarm acknowledged, got %+v", alarms.records["a1"])
	}
}

func TestMachinesCombinesConfigAndStatus(t *testing.T) {
	h, _, _, _, _ := newTestRouter()
	rec := doRequest(h, http.MethodGet, "/api/v1/machines/P1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var m machine
	if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if m.ID != "P1" || m.Status == nil || !m.Status.Deployed {
		t.Fatalf("expected combined machine view, got %+v", m)
	}
}

func TestMachineUnknownReturns404(t *testing.T) {
	h, _, _, _, _ := newTestRouter()
	rec := doRequest(h, http.MethodGet, "/api/v1/machines/unknown", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestPeaCreateValidationError(t *testing.T) {
	h, _, _, _, _ := newTestRouter()
	rec := doRequest(h, http.MethodPost, "/api/v1/pea", types.PeaConfig{Name: "no id"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestPeaDeployAndStart(t *testing.T) {
	h, _, _, lifecycle, _ := newTestRouter()
	rec := doRequest(h, http.MethodPost, "/api/v1/pea/P1/deploy", nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202 on deploy, got %d", rec.Code)
	}
	rec = doRequest(h, http.MethodPost, "/api/v1/pea/P1/start", nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202 on start, got %d: %s", rec.Code, rec.Body.String())
	}
	if _, ok := lifecycle.started["P1"]; !ok {
		t.Fatalf("expected simulator started for P1")
	}
}

func TestRecipeExecuteUnknownReturns404(t *testing.T) {
	h, _, _, _, _ := newTestRouter()
	rec := doRequest(h, http.MethodPost, "/api/v1/recipes/missing/execute", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestRecipeExecuteAndFetchExecution(t *testing.T) {
	h, _, _, _, _ := newTestRouter()
	rec := doRequest(h, http.MethodPost, "/api/v1/recipes/R1/execute", nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	execID := body["execution_id"]
	if execID == "" {
		t.Fatalf("expected execution_id in response")
	}

	rec = doRequest(h, http.MethodGet, "/api/v1/recipes/executions/"+execID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 fetching execution, got %d", rec.Code)
	}
}

func TestTsQueryRequiresKey(t *testing.T) {
	h, _, _, _, _ := newTestRouter()
	rec := doRequest(h, http.MethodGet, "/api/v1/ts/query", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestTsLatestReturnsPoint(t *testing.T) {
	h, _, _, _, _ := newTestRouter()
	rec := doRequest(h, http.MethodGet, "/api/v1/ts/latest?key=k1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestTopologyGetAndPut(t *testing.T) {
	h, _, _, _, _ := newTestRouter()
	rec := doRequest(h, http.MethodPut, "/api/v1/pol/topology", putTopologyRequest{
		Edges: []types.TopologyEdge{{FromPea: "A", ToPea: "B"}},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(h, http.MethodGet, "/api/v1/pol/topology", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var topo types.Topology
	if err := json.Unmarshal(rec.Body.Bytes(), &topo); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !topo.Has("A", "B") {
		t.Fatalf("expected edge A->B after PUT, got %+v", topo)
	}
}

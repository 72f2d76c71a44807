// Package recipe implements the RecipeOrchestrator of spec.md §4.7:
// topology-validated, ordered cross-PEA command sequencing with
// service-state feedback read back from the time-series cache.
package recipe

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/habitatcp/controlplane/internal/busx"
	"github.com/habitatcp/controlplane/internal/cperrors"
	"github.com/habitatcp/controlplane/internal/types"
)

// defaultTimeoutMs is spec.md §4.7's default wait_for_state timeout.
const defaultTimeoutMs = 30000

// pollInterval is spec.md §4.7's wait_for_state poll cadence.
const pollInterval = 500 * time.Millisecond

// commandCodes mirrors the PackML command-code convention used by
// internal/lifecycle's Bridge (reset=1, start=2, stop=3, hold=4,
// unhold=5, suspend=6, unsuspend=7, abort=8, clear=9) so a recipe step's
// command envelope carries the same numeric code an operator-driven
// ServiceCommand would. Commands outside this set get code 0.
var commandCodes = map[string]int{
	"reset": 1, "start": 2, "stop": 3, "hold": 4, "unhold": 5,
	"suspend": 6, "unsuspend": 7, "abort": 8, "clear": 9,
}

// Publisher is the narrow bus dependency Orchestrator needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// TopologyChecker is the narrow TopologyStore dependency Orchestrator
// needs for step-adjacency validation.
type TopologyChecker interface {
	Has(from, to string) bool
	Empty() bool
}

// StatusReader is the narrow TimeSeriesCache dependency Orchestrator
// needs to poll wait_for_state feedback.
type StatusReader interface {
	Latest(subject string) (types.TimeSeriesPoint, bool)
}

// statusSnapshot is the subset of a PeaRuntimeStatus payload the
// orchestrator needs to evaluate wait_for_state.
type statusSnapshot struct {
	Services []types.ServiceRuntimeState `json:"services"`
}

// Orchestrator is the RecipeOrchestrator component.
type Orchestrator struct {
	recipesMu sync.RWMutex
	recipes   map[string]*types.Recipe

	execMu sync.RWMutex
	execs  map[string]*types.RecipeExecution

	topo     TopologyChecker
	cache    StatusReader
	pub      Publisher
	subjects busx.Subjects
	log      *slog.Logger
	now      func() time.Time
	sleep    func(time.Duration)
}

// Config wires an Orchestrator's collaborators.
type Config struct {
	Topology TopologyChecker
	Cache    StatusReader
	Pub      Publisher
	Subjects busx.Subjects
	Logger   *slog.Logger
}

// New creates an empty Orchestrator.
func New(cfg Config) *Orchestrator {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{
		recipes:  make(map[string]*types.Recipe),
		execs:    make(map[string]*types.RecipeExecution),
		topo:     cfg.Topology,
		cache:    cfg.Cache,
		pub:      cfg.Pub,
		subjects: cfg.Subjects,
		log:      log,
		now:      time.Now,
		sleep:    time.Sleep,
	}
}

// PutRecipe inserts or replaces a recipe definition.
func (o *Orchestrator) PutRecipe(r types.Recipe) {
	o.recipesMu.Lock()
	o.recipes[r.ID] = &r
	o.recipesMu.Unlock()
}

// ListRecipes returns every loaded recipe.
func (o *Orchestrator) ListRecipes() []types.Recipe {
	o.recipesMu.RLock()
	defer o.recipesMu.RUnlock()
	out := make([]types.Recipe, 0, len(o.recipes))
	for _, r := range o.recipes {
		out = append(out, *r)
	}
	return out
}

// GetRecipe returns one recipe definition by id.
func (o *Orchestrator) GetRecipe(id string) (types.Recipe, bool) {
	o.recipesMu.RLock()
	defer o.recipesMu.RUnlock()
	r, ok := o.recipes[id]
	if !ok {
		return types.Recipe{}, false
	}
	return *r, true
}

// DeleteRecipe removes a recipe definition by id.
func (o *Orchestrator) DeleteRecipe(id string) error {
	o.recipesMu.Lock()
	defer o.recipesMu.Unlock()
	if _, ok := o.recipes[id]; !ok {
		return cperrors.NotFound("recipe: no recipe with id %q", id)
	}
	delete(o.recipes, id)
	return nil
}

// GetExecution returns a snapshot of one execution record.
func (o *Orchestrator) GetExecution(id string) (types.RecipeExecution, bool) {
	o.execMu.RLock()
	defer o.execMu.RUnlock()
	e, ok := o.execs[id]
	if !ok {
		return types.RecipeExecution{}, false
	}
	return *e.Clone(), true
}

// ListExecutions returns a snapshot of every execution record, most
// recently started first.
func (o *Orchestrator) ListExecutions() []types.RecipeExecution {
	o.execMu.RLock()
	defer o.execMu.RUnlock()
	out := make([]types.RecipeExecution, 0, len(o.execs))
	for _, e := range o.execs {
		out = append(out, *e.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out
}

// Execute implements spec.md §4.7's execute(recipe_id) operation: it
// validates topology synchronously, creates the execution record, spawns
// the step-execution goroutine, and returns the execution id immediately.
func (o *Orchestrator) Execute(ctx context.Context, recipeID string) (string, error) {
	o.recipesMu.RLock()
	recipe, ok := o.recipes[recipeID]
	var cloned types.Recipe
	if ok {
		cloned = *recipe
		cloned.Steps = append([]types.RecipeStep(nil), recipe.Steps...)
	}
	o.recipesMu.RUnlock()
	if !ok {
		return "", cperrors.NotFound("recipe: no recipe with id %q", recipeID)
	}

	sort.SliceStable(cloned.Steps, func(i, j int) bool { return cloned.Steps[i].Order < cloned.Steps[j].Order })

	if err := o.validateTopology(cloned.Steps); err != nil {
		return "", err
	}

	now := o.now()
	exec := &types.RecipeExecution{
		ExecutionID:  uuid.NewString(),
		RecipeID:     recipeID,
		TotalSteps:   len(cloned.Steps),
		StepStatuses: make([]types.StepStatus, len(cloned.Steps)),
		State:        types.ExecutionRunning,
		StartedAt:    now,
		UpdatedAt:    now,
	}
	for i := range exec.StepStatuses {
		exec.StepStatuses[i] = types.StepPending
	}

	o.execMu.Lock()
	o.execs[exec.ExecutionID] = exec
	o.execMu.Unlock()

	go o.run(context.WithoutCancel(ctx), exec.ExecutionID, cloned.Steps)

	return exec.ExecutionID, nil
}

// validateTopology implements spec.md §4.7 step 2: adjacent steps on
// different PEAs require a topology edge between them.
func (o *Orchestrator) validateTopology(steps []types.RecipeStep) error {
	hasCrossPea := false
	for i := 1; i < len(steps); i++ {
		if steps[i-1].PeaID != steps[i].PeaID {
			hasCrossPea = true
			break
		}
	}
	if !hasCrossPea {
		return nil
	}
	if o.topo == nil || o.topo.Empty() {
		return cperrors.Validation("recipe: topology empty")
	}
	for i := 1; i < len(steps); i++ {
		prev, next := steps[i-1], steps[i]
		if prev.PeaID == next.PeaID {
			continue
		}
		if !o.topo.Has(prev.PeaID, next.PeaID) {
			return cperrors.Validation("recipe: topology violation: %s->%s", prev.PeaID, next.PeaID)
		}
	}
	return nil
}

func (o *Orchestrator) run(ctx context.Context, executionID string, steps []types.RecipeStep) {
	for i, step := range steps {
		o.setStepStatus(executionID, i, types.StepExecuting)

		env := types.CommandEnvelope{
			Command:     step.Command,
			CommandCode: commandCodes[step.Command],
			ProcedureID: step.ProcedureID,
			Parameters:  step.Parameters,
			Timestamp:   o.now(),
		}
		data, err := types.MarshalCommand(env)
		if err != nil {
			o.fail(executionID, i, fmt.Sprintf("marshal command: %v", err))
			return
		}
		if err := o.pub.Publish(o.subjects.ServiceCommand(step.PeaID, step.ServiceTag), data); err != nil {
			o.fail(executionID, i, fmt.Sprintf("publish command: %v", err))
			return
		}

		if step.WaitForState != nil {
			if !o.waitForState(ctx, step) {
				o.fail(executionID, i, fmt.Sprintf("timed out waiting for %s/%s to reach %s",
					step.PeaID, step.ServiceTag, step.WaitForState.String()))
				return
			}
		}

		o.setStepStatus(executionID, i, types.StepCompleted)
	}

	o.execMu.Lock()
	if exec, ok := o.execs[executionID]; ok {
		exec.State = types.ExecutionCompleted
		exec.UpdatedAt = o.now()
	}
	o.execMu.Unlock()
}

// waitForState polls the status subject's tail entry in the time-series
// cache until the named service reaches the wanted state or the deadline
// expires (spec.md §4.7 step 4.b).
func (o *Orchestrator) waitForState(ctx context.Context, step types.RecipeStep) bool {
	timeoutMs := int64(defaultTimeoutMs)
	if step.TimeoutMs != nil {
		timeoutMs = *step.TimeoutMs
	}
	deadline := o.now().Add(time.Duration(timeoutMs) * time.Millisecond)
	subject := o.subjects.Status(step.PeaID)

	for {
		if o.now().After(deadline) {
			return false
		}
		if pt, ok := o.cache.Latest(subject); ok {
			var snap statusSnapshot
			if err := json.Unmarshal(pt.Value, &snap); err == nil {
				for _, svc := range snap.Services {
					if svc.Tag == step.ServiceTag && svc.State == *step.WaitForState {
						return true
					}
				}
			}
		}
		select {
		case <-ctx.Done():
			return false
		default:
			o.sleep(pollInterval)
		}
	}
}

func (o *Orchestrator) setStepStatus(executionID string, idx int, status types.StepStatus) {
	o.execMu.Lock()
	defer o.execMu.Unlock()
	exec, ok := o.execs[executionID]
	if !ok {
		return
	}
	exec.StepStatuses[idx] = status
	exec.CurrentStep = idx
	exec.UpdatedAt = o.now()
}

func (o *Orchestrator) fail(executionID string, idx int, reason string) {
	o.execMu.Lock()
	defer o.execMu.Unlock()
	exec, ok := o.execs[executionID]
	if !ok {
		return
	}
	exec.StepStatuses[idx] = types.StepFailed
	exec.State = types.ExecutionFailed
	exec.Error = reason
	exec.UpdatedAt = o.now()
}

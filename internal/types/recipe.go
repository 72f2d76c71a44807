package types

import (
	"encoding/json"
	"time"
)

// RecipeStep is one command within a Recipe. WaitForState, when set,
// blocks progress until the named service reaches that state (or the
// step times out).
type RecipeStep struct {
	Order        int                       `json:"order"`
	PeaID        string                    `json:"pea_id"`
	ServiceTag   string                    `json:"service_tag"`
	Command      string                    `json:"command"`
	ProcedureID  *int                      `json:"procedure_id,omitempty"`
	Parameters   map[string]ParameterValue `json:"parameters,omitempty"`
	WaitForState *ServiceState             `json:"wait_for_state,omitempty"`
	TimeoutMs    *int64                    `json:"timeout_ms,omitempty"`
}

// Recipe is an operator-authored ordered sequence of service commands,
// possibly spanning multiple PEAs.
type Recipe struct {
	ID    string       `json:"id"`
	Name  string       `json:"name"`
	Steps []RecipeStep `json:"steps"`
}

// StepStatus is the lifecycle status of one step within a RecipeExecution.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepExecuting StepStatus = "executing"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
)

// ExecutionState is the overall lifecycle status of a RecipeExecution.
type ExecutionState string

const (
	ExecutionRunning   ExecutionState = "running"
	ExecutionCompleted ExecutionState = "completed"
	ExecutionFailed    ExecutionState = "failed"
)

// RecipeExecution tracks the progress of one in-flight or finished
// invocation of a Recipe.
type RecipeExecution struct {
	ExecutionID  string         `json:"execution_id"`
	RecipeID     string         `json:"recipe_id"`
	CurrentStep  int            `json:"current_step"`
	TotalSteps   int            `json:"total_steps"`
	StepStatuses []StepStatus   `json:"step_statuses"`
	State        ExecutionState `json:"state"`
	Error        string         `json:"error,omitempty"`
	StartedAt    time.Time      `json:"started_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// Clone returns a deep copy safe to hand to a caller without the
// orchestrator's lock held.
func (e *RecipeExecution) Clone() *RecipeExecution {
	if e == nil {
		return nil
	}
	out := *e
	out.StepStatuses = append([]StepStatus(nil), e.StepStatuses...)
	return &out
}

// CommandEnvelope is the payload published on a service's command
// subject (spec.md §6).
type CommandEnvelope struct {
	Command     string                    `json:"command"`
	CommandCode int                       `json:"command_code"`
	ProcedureID *int                      `json:"procedure_id,omitempty"`
	Parameters  map[string]ParameterValue `json:"parameters,omitempty"`
	Timestamp   time.Time                 `json:"timestamp"`
}

// MarshalCommand is a small convenience used by both the lifecycle bridge
// and the recipe orchestrator so the wire shape is defined exactly once.
func MarshalCommand(env CommandEnvelope) ([]byte, error) {
	return json.Marshal(env)
}

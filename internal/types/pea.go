package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// ServiceState is a PackML-style service state machine state. The integer
// codes follow the glossary ordering. On the wire a state is its PackML
// label string; UnmarshalJSON accepts only the label, not the integer code.
type ServiceState int

const (
	StateIdle ServiceState = iota
	StateStarting
	StateExecute
	StateCompleting
	StateCompleted
	StatePausing
	StatePaused
	StateResuming
	StateHolding
	StateHeld
	StateUnholding
	StateStopping
	StateStopped
	StateAborting
	StateAborted
	StateResetting
)

var serviceStateNames = [...]string{
	"Idle", "Starting", "Execute", "Completing", "Completed",
	"Pausing", "Paused", "Resuming", "Holding", "Held",
	"Unholding", "Stopping", "Stopped", "Aborting", "Aborted", "Resetting",
}

func (s ServiceState) String() string {
	if int(s) < 0 || int(s) >= len(serviceStateNames) {
		return fmt.Sprintf("ServiceState(%d)", int(s))
	}
	return serviceStateNames[s]
}

// ParseServiceState maps a PackML label back to its ServiceState. Unknown
// labels are a validation error for the caller to handle; this package
// never panics on bad input.
func ParseServiceState(label string) (ServiceState, error) {
	for i, name := range serviceStateNames {
		if name == label {
			return ServiceState(i), nil
		}
	}
	return 0, fmt.Errorf("types: unknown service state %q", label)
}

func (s ServiceState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *ServiceState) UnmarshalJSON(b []byte) error {
	var label string
	if err := json.Unmarshal(b, &label); err != nil {
		return err
	}
	parsed, err := ParseServiceState(label)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// OperationMode indicates how exposed a service is to operator control.
type OperationMode string

const (
	OperationOffline    OperationMode = "Offline"
	OperationOperator   OperationMode = "Operator"
	OperationAutomatic  OperationMode = "Automatic"
)

// SourceMode indicates the origin of the commands a service is currently
// accepting.
type SourceMode string

const (
	SourceInternal SourceMode = "Internal"
	SourceExternal SourceMode = "External"
)

// ParamKind discriminates the variant carried by a ParameterValue.
type ParamKind string

const (
	ParamBool   ParamKind = "bool"
	ParamInt    ParamKind = "int"
	ParamFloat  ParamKind = "float"
	ParamString ParamKind = "string"
)

// ParameterValue is a tagged union over a procedure parameter's value,
// modeling the source system's polymorphic service parameters (§9).
type ParameterValue struct {
	Kind   ParamKind `json:"kind"`
	Bool   bool      `json:"bool,omitempty"`
	Int    int64     `json:"int,omitempty"`
	Float  float64   `json:"float,omitempty"`
	String string    `json:"string,omitempty"`
}

// Protocol discriminates the transport a BusAddress is expressed in.
type Protocol string

const (
	ProtocolOPCUA  Protocol = "OPCUA"
	ProtocolModbus Protocol = "Modbus"
	ProtocolBus    Protocol = "Bus"
)

// BusAddress pairs a protocol discriminator with the protocol-specific
// address string, modeling the source system's active/indicator element
// addressing (§9). Only ProtocolBus is ever resolved by this control-plane;
// the other variants round-trip for fidelity with imported PEA configs.
type BusAddress struct {
	Protocol Protocol `json:"protocol"`
	Address  string   `json:"address"`
}

// Procedure is a parameterized operation selectable within a Service.
type Procedure struct {
	ID         int                       `json:"id"`
	Name       string                    `json:"name"`
	Parameters map[string]ParameterValue `json:"parameters,omitempty"`
}

// Service is a named unit of behavior on a PEA. Tag is unique within the
// parent PeaConfig.
type Service struct {
	Tag        string      `json:"tag"`
	Name       string      `json:"name"`
	Procedures []Procedure `json:"procedures"`
	Address    *BusAddress `json:"address,omitempty"`
}

// PeaConfig is an operator-authored PEA definition: identity, display
// metadata, and the ordered sequence of services it exposes.
type PeaConfig struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Version   string    `json:"version"`
	Services  []Service `json:"services"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks the PeaConfig invariants from spec.md §3: service tags
// unique within the PEA, procedure ids unique within their parent service.
func (c *PeaConfig) Validate() error {
	seenTags := make(map[string]struct{}, len(c.Services))
	for _, svc := range c.Services {
		if svc.Tag == "" {
			return fmt.Errorf("types: service with empty tag in pea %q", c.ID)
		}
		if _, dup := seenTags[svc.Tag]; dup {
			return fmt.Errorf("types: duplicate service tag %q in pea %q", svc.Tag, c.ID)
		}
		seenTags[svc.Tag] = struct{}{}

		seenProcs := make(map[int]struct{}, len(svc.Procedures))
		for _, proc := range svc.Procedures {
			if _, dup := seenProcs[proc.ID]; dup {
				return fmt.Errorf("types: duplicate procedure id %d in service %q of pea %q", proc.ID, svc.Tag, c.ID)
			}
			seenProcs[proc.ID] = struct{}{}
		}
	}
	return nil
}

// ServiceRuntimeState is the observed runtime state of one service,
// reflected from bus status events.
type ServiceRuntimeState struct {
	Tag              string        `json:"tag"`
	State            ServiceState  `json:"state"`
	CurrentProcedure *int          `json:"current_procedure_id,omitempty"`
	OperationMode    OperationMode `json:"operation_mode"`
	SourceMode       SourceMode    `json:"source_mode"`
}

// PeaRuntimeStatus is the reflected runtime status of a deployed PEA.
type PeaRuntimeStatus struct {
	Deployed  bool                  `json:"deployed"`
	Running   bool                  `json:"running"`
	Services  []ServiceRuntimeState `json:"services"`
	UpdatedAt time.Time             `json:"updated_at"`
}

// Clone returns a deep copy of the status, safe to hand to a caller that
// does not hold the registry's lock.
func (s *PeaRuntimeStatus) Clone() *PeaRuntimeStatus {
	if s == nil {
		return nil
	}
	out := *s
	out.Services = append([]ServiceRuntimeState(nil), s.Services...)
	return &out
}

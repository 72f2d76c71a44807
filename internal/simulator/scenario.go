// Package simulator implements the deterministic scenario-driven
// telemetry generator of spec.md §4.8, grounded on the PCG-style hash and
// sensor-drift model of the original implementation's simulator.
package simulator

import (
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

// StateStep is one entry of a scenario's state_sequence: a swimlane state
// label held for a fixed duration.
type StateStep struct {
	State     string  `yaml:"state" json:"state"`
	DurationS float64 `yaml:"duration_s" json:"duration_s"`
}

// ScheduledAlarm fires an alarm-on at a given cycle tick, auto-clearing 5
// ticks later (spec.md §4.8).
type ScheduledAlarm struct {
	CycleTick int    `yaml:"cycle_tick" json:"cycle_tick"`
	Label     string `yaml:"label" json:"label"`
	Severity  string `yaml:"severity" json:"severity"`
}

// Sensor is one simulated sensor's drift/noise/clamp parameters.
type Sensor struct {
	Tag      string  `yaml:"tag" json:"tag"`
	Base     float64 `yaml:"base" json:"base"`
	Variance float64 `yaml:"variance" json:"variance"`
	Drift    float64 `yaml:"drift" json:"drift"`
	Bias     float64 `yaml:"bias" json:"bias"`
	Min      float64 `yaml:"min" json:"min"`
	Max      float64 `yaml:"max" json:"max"`
}

// Scenario is the full scenario literal from spec.md §4.8.
type Scenario struct {
	ID            string           `yaml:"id" json:"id"`
	Name          string           `yaml:"name" json:"name"`
	DurationS     float64          `yaml:"duration_s" json:"duration_s"`
	TickMs        int              `yaml:"tick_ms" json:"tick_ms"`
	TimeRatio     float64          `yaml:"time_ratio" json:"time_ratio"`
	Sensors       []Sensor         `yaml:"sensors" json:"sensors"`
	StateSequence []StateStep      `yaml:"state_sequence" json:"state_sequence"`
	Alarms        []ScheduledAlarm `yaml:"alarms" json:"alarms"`
}

// Infinite reports whether DurationS is +Inf
// (spec.md §4.8: "duration_s = ∞ disables termination"). Run also never
// terminates on its own when DurationS <= 0; Infinite reports false then.
func (s Scenario) Infinite() bool {
	return math.IsInf(s.DurationS, 1)
}

// LoadScenarioFile reads a scenario definition from a YAML file.
// **[EXPANSION]**: scenarios may be authored externally rather than only
// constructed in code, mirroring the original implementation's scenario
// struct more completely than the distilled spec implies.
func LoadScenarioFile(path string) (Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Scenario{}, err
	}
	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Scenario{}, err
	}
	return s, nil
}

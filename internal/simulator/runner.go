package simulator

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"time"

	"github.com/habitatcp/controlplane/internal/busx"
)

// Publisher is the narrow bus dependency a Runner needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Runner drives one scenario for one PEA id, publishing telemetry, state,
// action, and alarm samples at tick resolution until the scenario's
// duration elapses or its context is cancelled (spec.md §4.8).
type Runner struct {
	PeaID    string
	Scenario Scenario
	Subjects busx.Subjects
	Pub      Publisher
	Log      *slog.Logger

	// sleep is overridable in tests to avoid real waits.
	sleep func(time.Duration)
}

type dataPayload struct {
	Value     float64 `json:"value"`
	Timestamp string  `json:"timestamp"`
}

type statePayload struct {
	State string `json:"state"`
}

type actionPayload struct {
	Action string `json:"action"`
}

type alarmPayload struct {
	Active   bool   `json:"active"`
	Alarm    string `json:"alarm"`
	Severity string `json:"severity,omitempty"`
}

// Run executes the scenario tick loop. It returns when the scenario
// completes, its duration elapses, or ctx is cancelled — whichever comes
// first. Every tick boundary is a cancellation point (spec.md §5).
func (r *Runner) Run(ctx context.Context) {
	log := r.Log
	if log == nil {
		log = slog.Default()
	}
	sleep := r.sleep
	if sleep == nil {
		sleep = time.Sleep
	}

	tickMs := r.Scenario.TickMs
	if tickMs <= 0 {
		tickMs = 1000
	}
	tickDur := time.Duration(tickMs) * time.Millisecond

	values := make([]float64, len(r.Scenario.Sensors))
	for i, s := range r.Scenario.Sensors {
		values[i] = s.Base
	}

	pendingClears := make(map[int][]ScheduledAlarm)
	stateIdx := -1
	var stateDeadlineTicks int64
	var tick uint64

	maxTicks := int64(-1)
	if !r.Scenario.Infinite() && r.Scenario.DurationS > 0 {
		maxTicks = int64(math.Ceil(r.Scenario.DurationS * 1000 / float64(tickMs)))
	}

	for {
		select {
		case <-ctx.Done():
			r.publishTerminal(log)
			return
		default:
		}

		if maxTicks >= 0 && int64(tick) >= maxTicks {
			r.publishTerminal(log)
			return
		}

		r.advanceState(&stateIdx, &stateDeadlineTicks, int64(tick), tickMs, log)

		for i, s := range r.Scenario.Sensors {
			values[i] += s.Drift
			n := (noise(tick, i) - 0.5) * 2.0 * s.Variance
			reading := values[i] + n + s.Bias
			reading = clamp(reading, s.Min, s.Max)
			rounded := math.Round(reading*10) / 10
			r.publishData(s.Tag, rounded, log)
		}

		for _, sched := range r.Scenario.Alarms {
			if int64(sched.CycleTick) == int64(tick) {
				r.publishAlarm(sched.Label, sched.Severity, true, log)
				pendingClears[sched.CycleTick+5] = append(pendingClears[sched.CycleTick+5], sched)
			}
		}
		if due, ok := pendingClears[int(tick)]; ok {
			for _, sched := range due {
				r.publishAlarm(sched.Label, "", false, log)
			}
			delete(pendingClears, int(tick))
		}

		tick++

		select {
		case <-ctx.Done():
			r.publishTerminal(log)
			return
		default:
			sleep(tickDur)
		}
	}
}

func (r *Runner) advanceState(stateIdx *int, deadlineTicks *int64, tick int64, tickMs int, log *slog.Logger) {
	if len(r.Scenario.StateSequence) == 0 {
		return
	}
	if *stateIdx == -1 || tick >= *deadlineTicks {
		*stateIdx = (*stateIdx + 1) % len(r.Scenario.StateSequence)
		step := r.Scenario.StateSequence[*stateIdx]
		*deadlineTicks = tick + int64(math.Ceil(step.DurationS*1000/float64(tickMs)))

		r.publishState(step.State, log)
		r.publishAction(step.State, log)
	}
}

func (r *Runner) publishData(sensorTag string, value float64, log *slog.Logger) {
	data, err := json.Marshal(dataPayload{Value: value, Timestamp: time.Now().UTC().Format(time.RFC3339)})
	if err != nil {
		return
	}
	if err := r.Pub.Publish(r.Subjects.Data(r.PeaID, sensorTag), data); err != nil {
		log.Debug("simulator data publish failed", "pea_id", r.PeaID, "sensor", sensorTag, "error", err)
	}
}

func (r *Runner) publishState(state string, log *slog.Logger) {
	data, err := json.Marshal(statePayload{State: state})
	if err != nil {
		return
	}
	if err := r.Pub.Publish(r.Subjects.SwimlaneState(r.PeaID), data); err != nil {
		log.Debug("simulator state publish failed", "pea_id", r.PeaID, "error", err)
	}
}

func (r *Runner) publishAction(label string, log *slog.Logger) {
	data, err := json.Marshal(actionPayload{Action: label})
	if err != nil {
		return
	}
	if err := r.Pub.Publish(r.Subjects.SwimlaneAction(r.PeaID), data); err != nil {
		log.Debug("simulator action publish failed", "pea_id", r.PeaID, "error", err)
	}
}

func (r *Runner) publishAlarm(label, severity string, active bool, log *slog.Logger) {
	data, err := json.Marshal(alarmPayload{Active: active, Alarm: label, Severity: severity})
	if err != nil {
		return
	}
	if err := r.Pub.Publish(r.Subjects.SwimlaneAlarm(r.PeaID), data); err != nil {
		log.Debug("simulator alarm publish failed", "pea_id", r.PeaID, "error", err)
	}
}

func (r *Runner) publishTerminal(log *slog.Logger) {
	data, err := json.Marshal(statePayload{State: "stopped"})
	if err != nil {
		return
	}
	if err := r.Pub.Publish(r.Subjects.SwimlaneState(r.PeaID), data); err != nil {
		log.Debug("simulator terminal publish failed", "pea_id", r.PeaID, "error", err)
	}
}

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

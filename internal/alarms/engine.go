// Package alarms implements the AlarmEngine of spec.md §4.2: rule-matched,
// blackout-aware alarm deduplication with action-driven state transitions,
// synchronized to durable storage and re-broadcast on the bus.
package alarms

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/habitatcp/controlplane/internal/cperrors"
	"github.com/habitatcp/controlplane/internal/store"
	"github.com/habitatcp/controlplane/internal/types"
)

// Publisher is the narrow bus dependency AlarmEngine needs: re-broadcast
// of action events after an operator- or bus-driven mutation.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Engine owns the alarms, alarm_rules, and blackout_windows in-memory
// tables, each guarded by its own RWMutex per spec.md §5 (every store is
// independently lockable so a reader of rules never blocks a writer of
// alarms).
type Engine struct {
	mu      sync.RWMutex
	records map[string]*types.AlarmRecord // id -> record

	rulesMu sync.RWMutex
	rules   map[string]*types.AlarmRule

	blackoutsMu sync.RWMutex
	blackouts   map[string]*types.BlackoutWindow

	store        store.Store
	snapshot     *store.SnapshotMirror
	pub          Publisher
	actionSubject string
	log          *slog.Logger

	now func() time.Time
}

// Config wires an Engine's collaborators.
type Config struct {
	Store         store.Store
	Snapshot      *store.SnapshotMirror
	Publisher     Publisher
	ActionSubject string
	Logger        *slog.Logger
}

// New creates an empty Engine. Call LoadFromStore to hydrate from durable
// state at startup.
func New(cfg Config) *Engine {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		records:       make(map[string]*types.AlarmRecord),
		rules:         make(map[string]*types.AlarmRule),
		blackouts:     make(map[string]*types.BlackoutWindow),
		store:         cfg.Store,
		snapshot:      cfg.Snapshot,
		pub:           cfg.Publisher,
		actionSubject: cfg.ActionSubject,
		log:           log,
		now:           time.Now,
	}
}

// LoadFromStore hydrates rules, blackouts, and alarm records from the
// durable store at startup.
func (e *Engine) LoadFromStore(ctx context.Context) error {
	if e.store == nil {
		return nil
	}

	ruleRows, err := e.store.LoadAll(ctx, store.TableAlarmRules)
	if err != nil {
		return fmt.Errorf("alarms: load rules: %w", err)
	}
	e.rulesMu.Lock()
	for _, row := range ruleRows {
		var r types.AlarmRule
		if err := json.Unmarshal(row.Data, &r); err == nil {
			e.rules[r.ID] = &r
		}
	}
	e.rulesMu.Unlock()

	boRows, err := e.store.LoadAll(ctx, store.TableBlackouts)
	if err != nil {
		return fmt.Errorf("alarms: load blackouts: %w", err)
	}
	e.blackoutsMu.Lock()
	for _, row := range boRows {
		var w types.BlackoutWindow
		if err := json.Unmarshal(row.Data, &w); err == nil {
			e.blackouts[w.ID] = &w
		}
	}
	e.blackoutsMu.Unlock()

	alarmRows, err := e.store.LoadAll(ctx, store.TableAlarms)
	if err != nil {
		return fmt.Errorf("alarms: load alarms: %w", err)
	}
	e.mu.Lock()
	for _, row := range alarmRows {
		var a types.AlarmRecord
		if err := json.Unmarshal(row.Data, &a); err == nil {
			e.records[a.ID] = &a
		}
	}
	e.mu.Unlock()

	return nil
}

// livePayload is the wire shape of a live-alarm sample (spec.md §4.2).
type livePayload struct {
	Active    bool    `json:"active"`
	Alarm     string  `json:"alarm"`
	Severity  *string `json:"severity,omitempty"`
	Value     *string `json:"value,omitempty"`
	Timestamp *string `json:"timestamp,omitempty"`
}

// HandleLiveAlarmSample implements spec.md §4.2's live-alarm-sample
// processing, steps 1-6. source is the originating bus subject.
func (e *Engine) HandleLiveAlarmSample(ctx context.Context, source string, payload json.RawMessage) error {
	var p livePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		e.log.Debug("dropping malformed alarm sample", "source", source, "error", err)
		return nil
	}
	if !p.Active || p.Alarm == "" {
		return nil
	}

	rules := e.snapshotEnabledRules()
	var matched *types.AlarmRule
	if len(rules) > 0 {
		for _, r := range rules {
			if strings.Contains(source, r.SourcePattern) && strings.Contains(p.Alarm, r.EventPattern) {
				matched = r
				break
			}
		}
		if matched == nil {
			return nil // opt-in semantics: rule gate drops unmatched alarms
		}
	}

	inBlackout := e.inBlackout(source, e.now())

	severity := "warning"
	if matched != nil {
		severity = matched.Severity
	} else if p.Severity != nil && *p.Severity != "" {
		severity = *p.Severity
	}

	value := ""
	if p.Value != nil {
		value = *p.Value
	}

	rec, isNew := e.upsertLive(source, p.Alarm, severity, value, inBlackout)
	return e.persistAndBroadcast(ctx, rec, isNew)
}

func (e *Engine) snapshotEnabledRules() []*types.AlarmRule {
	e.rulesMu.RLock()
	defer e.rulesMu.RUnlock()
	out := make([]*types.AlarmRule, 0, len(e.rules))
	for _, r := range e.rules {
		if r.Enabled {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out
}

func (e *Engine) inBlackout(source string, now time.Time) bool {
	e.blackoutsMu.RLock()
	defer e.blackoutsMu.RUnlock()
	for _, w := range e.blackouts {
		if w.Covers(source, now) {
			return true
		}
	}
	return false
}

// upsertLive finds an existing non-cleared record for (source, event) and
// bumps its duplicate count, or creates a new one. Returns the resulting
// record and whether it was newly created. The returned pointer is always
// a fresh clone, never the one living in e.records — callers marshal it
// after the lock is released (persistAndBroadcast), so the live record
// must stay untouched by that read.
func (e *Engine) upsertLive(source, event, severity, value string, inBlackout bool) (*types.AlarmRecord, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	for _, rec := range e.records {
		if rec.Source == source && rec.Event == event && rec.Status != types.AlarmCleared {
			rec.DuplicateCount++
			rec.Timestamp = now
			rec.Value = value
			snap := *rec
			return &snap, false
		}
	}

	status := types.AlarmOpen
	if inBlackout {
		status = types.AlarmShelved
	}
	rec := &types.AlarmRecord{
		ID:             uuid.NewString(),
		Severity:       severity,
		Status:         status,
		Source:         source,
		Event:          event,
		Value:          value,
		Description:    fmt.Sprintf("%s on %s", event, source),
		Timestamp:      now,
		DuplicateCount: 1,
	}
	e.records[rec.ID] = rec
	snap := *rec
	return &snap, true
}

// actionPayload is the wire shape of an alarm action (spec.md §4.2).
type actionPayload struct {
	AlarmID string `json:"alarm_id"`
	Action  string `json:"action"`
}

// HandleAlarmAction implements the bus-delivered alarm-action processing.
func (e *Engine) HandleAlarmAction(ctx context.Context, payload json.RawMessage) error {
	var p actionPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		e.log.Debug("dropping malformed alarm action", "error", err)
		return nil
	}
	_, err := e.applyAction(ctx, p.AlarmID, p.Action, false)
	return err
}

// Ack, Shelve, Action, Delete are the HTTP-driven equivalents of
// HandleAlarmAction (spec.md §4.2 "HTTP actions"), each followed by a
// re-broadcast so peers observe the change.
func (e *Engine) Ack(ctx context.Context, id string) (*types.AlarmRecord, error) {
	return e.applyAction(ctx, id, string(types.AlarmAcknowledged), true)
}

func (e *Engine) Shelve(ctx context.Context, id string) (*types.AlarmRecord, error) {
	return e.applyAction(ctx, id, string(types.AlarmShelved), true)
}

func (e *Engine) Action(ctx context.Context, id, action string) (*types.AlarmRecord, error) {
	return e.applyAction(ctx, id, action, true)
}

func (e *Engine) Delete(ctx context.Context, id string) error {
	_, err := e.applyAction(ctx, id, "delete", true)
	return err
}

func (e *Engine) applyAction(ctx context.Context, id, action string, broadcast bool) (*types.AlarmRecord, error) {
	if action == "delete" {
		e.mu.Lock()
		rec, ok := e.records[id]
		if !ok {
			e.mu.Unlock()
			return nil, cperrors.NotFound("alarms: no record with id %q", id)
		}
		delete(e.records, id)
		e.mu.Unlock()

		if e.store != nil {
			if err := e.store.Delete(ctx, store.TableAlarms, id); err != nil {
				e.log.Warn("durable alarm delete failed", "id", id, "error", err)
			}
		}
		e.writeSnapshot()
		if broadcast {
			e.broadcastAction(id, "delete")
		}
		return rec, nil
	}

	e.mu.Lock()
	rec, ok := e.records[id]
	if !ok {
		e.mu.Unlock()
		return nil, cperrors.NotFound("alarms: no record with id %q", id)
	}
	rec.Status = types.AlarmStatus(action)
	snap := *rec
	e.mu.Unlock()

	if err := e.persistAndBroadcast(ctx, &snap, false); err != nil {
		return nil, err
	}
	if broadcast {
		e.broadcastAction(id, action)
	}
	return &snap, nil
}

func (e *Engine) persistAndBroadcast(ctx context.Context, rec *types.AlarmRecord, isNew bool) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("alarms: marshal record: %w", err)
	}
	if e.store != nil {
		if err := e.store.Upsert(ctx, store.TableAlarms, store.Row{ID: rec.ID, Data: data}); err != nil {
			// DurableStoreFailure: keep the in-memory mutation, log only (§7).
			e.log.Warn("durable alarm upsert failed", "id", rec.ID, "error", err)
		}
	}
	e.writeSnapshot()
	return nil
}

func (e *Engine) writeSnapshot() {
	if e.snapshot == nil {
		return
	}
	if err := e.snapshot.Write("alarms", e.List()); err != nil {
		e.log.Warn("alarm snapshot write failed", "error", err)
	}
}

func (e *Engine) broadcastAction(alarmID, action string) {
	if e.pub == nil || e.actionSubject == "" {
		return
	}
	data, err := json.Marshal(actionPayload{AlarmID: alarmID, Action: action})
	if err != nil {
		return
	}
	if err := e.pub.Publish(e.actionSubject, data); err != nil {
		e.log.Warn("alarm action broadcast failed", "error", err)
	}
}

// List returns a snapshot of every alarm record.
func (e *Engine) List() []types.AlarmRecord {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]types.AlarmRecord, 0, len(e.records))
	for _, r := range e.records {
		out = append(out, *r)
	}
	return out
}

// Get returns a snapshot of one alarm record.
func (e *Engine) Get(id string) (types.AlarmRecord, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	r, ok := e.records[id]
	if !ok {
		return types.AlarmRecord{}, false
	}
	return *r, true
}

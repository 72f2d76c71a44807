package alarms

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/habitatcp/controlplane/internal/cperrors"
	"github.com/habitatcp/controlplane/internal/store"
	"github.com/habitatcp/controlplane/internal/types"
)

// ListRules returns every configured alarm rule.
func (e *Engine) ListRules() []types.AlarmRule {
	e.rulesMu.RLock()
	defer e.rulesMu.RUnlock()
	out := make([]types.AlarmRule, 0, len(e.rules))
	for _, r := range e.rules {
		out = append(out, *r)
	}
	return out
}

// CreateRule validates and persists a new alarm rule.
func (e *Engine) CreateRule(ctx context.Context, r types.AlarmRule) (types.AlarmRule, error) {
	if r.SourcePattern == "" && r.EventPattern == "" {
		return types.AlarmRule{}, cperrors.Validation("alarms: rule must have a source or event pattern")
	}
	now := e.now()
	r.ID = uuid.NewString()
	r.CreatedAt = now
	r.UpdatedAt = now

	e.rulesMu.Lock()
	e.rules[r.ID] = &r
	e.rulesMu.Unlock()

	return r, e.persistRule(ctx, r)
}

// UpdateRule replaces an existing rule's mutable fields by id.
func (e *Engine) UpdateRule(ctx context.Context, id string, r types.AlarmRule) (types.AlarmRule, error) {
	e.rulesMu.Lock()
	existing, ok := e.rules[id]
	if !ok {
		e.rulesMu.Unlock()
		return types.AlarmRule{}, cperrors.NotFound("alarms: no rule with id %q", id)
	}
	r.ID = id
	r.CreatedAt = existing.CreatedAt
	r.UpdatedAt = e.now()
	e.rules[id] = &r
	e.rulesMu.Unlock()

	return r, e.persistRule(ctx, r)
}

// DeleteRule removes a rule by id.
func (e *Engine) DeleteRule(ctx context.Context, id string) error {
	e.rulesMu.Lock()
	if _, ok := e.rules[id]; !ok {
		e.rulesMu.Unlock()
		return cperrors.NotFound("alarms: no rule with id %q", id)
	}
	delete(e.rules, id)
	e.rulesMu.Unlock()

	if e.store != nil {
		if err := e.store.Delete(ctx, store.TableAlarmRules, id); err != nil {
			e.log.Warn("durable rule delete failed", "id", id, "error", err)
		}
	}
	return nil
}

func (e *Engine) persistRule(ctx context.Context, r types.AlarmRule) error {
	if e.store == nil {
		return nil
	}
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("alarms: marshal rule: %w", err)
	}
	if err := e.store.Upsert(ctx, store.TableAlarmRules, store.Row{ID: r.ID, Data: data}); err != nil {
		e.log.Warn("durable rule upsert failed", "id", r.ID, "error", err)
	}
	return nil
}

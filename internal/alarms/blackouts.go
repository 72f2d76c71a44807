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

// ListBlackouts returns every configured blackout window.
func (e *Engine) ListBlackouts() []types.BlackoutWindow {
	e.blackoutsMu.RLock()
	defer e.blackoutsMu.RUnlock()
	out := make([]types.BlackoutWindow, 0, len(e.blackouts))
	for _, w := range e.blackouts {
		out = append(out, *w)
	}
	return out
}

// CreateBlackout validates and persists a new blackout window. Validation
// enforces spec.md §3's ends_at > starts_at invariant.
func (e *Engine) CreateBlackout(ctx context.Context, w types.BlackoutWindow) (types.BlackoutWindow, error) {
	if !w.EndsAt.After(w.StartsAt) {
		return types.BlackoutWindow{}, cperrors.Validation("alarms: blackout ends_at must be after starts_at")
	}
	w.ID = uuid.NewString()
	w.CreatedAt = e.now()

	e.blackoutsMu.Lock()
	e.blackouts[w.ID] = &w
	e.blackoutsMu.Unlock()

	if e.store == nil {
		return w, nil
	}
	data, err := json.Marshal(w)
	if err != nil {
		return w, fmt.Errorf("alarms: marshal blackout: %w", err)
	}
	if err := e.store.Upsert(ctx, store.TableBlackouts, store.Row{ID: w.ID, Data: data}); err != nil {
		e.log.Warn("durable blackout upsert failed", "id", w.ID, "error", err)
	}
	return w, nil
}

// DeleteBlackout removes a blackout window by id.
func (e *Engine) DeleteBlackout(ctx context.Context, id string) error {
	e.blackoutsMu.Lock()
	if _, ok := e.blackouts[id]; !ok {
		e.blackoutsMu.Unlock()
		return cperrors.NotFound("alarms: no blackout with id %q", id)
	}
	delete(e.blackouts, id)
	e.blackoutsMu.Unlock()

	if e.store != nil {
		if err := e.store.Delete(ctx, store.TableBlackouts, id); err != nil {
			e.log.Warn("durable blackout delete failed", "id", id, "error", err)
		}
	}
	return nil
}

package httpapi

import (
	"net/http"

	"github.com/habitatcp/controlplane/internal/types"
)

func (rt *Router) registerAlarms(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/alarms", rt.handleListAlarms)
	mux.HandleFunc("DELETE /api/v1/alarms/{id}", rt.handleDeleteAlarm)
	mux.HandleFunc("POST /api/v1/alarms/{id}/ack", rt.handleAckAlarm)
	mux.HandleFunc("POST /api/v1/alarms/{id}/shelve", rt.handleShelveAlarm)
	mux.HandleFunc("POST /api/v1/alarms/{id}/action", rt.handleAlarmAction)

	mux.HandleFunc("GET /api/v1/alarm-rules", rt.handleListRules)
	mux.HandleFunc("POST /api/v1/alarm-rules", rt.handleCreateRule)
	mux.HandleFunc("PUT /api/v1/alarm-rules/{id}", rt.handleUpdateRule)
	mux.HandleFunc("DELETE /api/v1/alarm-rules/{id}", rt.handleDeleteRule)

	mux.HandleFunc("GET /api/v1/blackouts", rt.handleListBlackouts)
	mux.HandleFunc("POST /api/v1/blackouts", rt.handleCreateBlackout)
	mux.HandleFunc("DELETE /api/v1/blackouts/{id}", rt.handleDeleteBlackout)
}

func (rt *Router) handleListAlarms(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, rt.cfg.Alarms.List())
}

func (rt *Router) handleDeleteAlarm(w http.ResponseWriter, r *http.Request) {
	if err := rt.cfg.Alarms.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) handleAckAlarm(w http.ResponseWriter, r *http.Request) {
	rec, err := rt.cfg.Alarms.Ack(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (rt *Router) handleShelveAlarm(w http.ResponseWriter, r *http.Request) {
	rec, err := rt.cfg.Alarms.Shelve(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

type alarmActionRequest struct {
	Action string `json:"action"`
}

func (rt *Router) handleAlarmAction(w http.ResponseWriter, r *http.Request) {
	var req alarmActionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	rec, err := rt.cfg.Alarms.Action(r.Context(), r.PathValue("id"), req.Action)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (rt *Router) handleListRules(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, rt.cfg.Alarms.ListRules())
}

func (rt *Router) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	var rule types.AlarmRule
	if err := decodeJSON(r, &rule); err != nil {
		writeError(w, err)
		return
	}
	created, err := rt.cfg.Alarms.CreateRule(r.Context(), rule)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (rt *Router) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	var rule types.AlarmRule
	if err := decodeJSON(r, &rule); err != nil {
		writeError(w, err)
		return
	}
	updated, err := rt.cfg.Alarms.UpdateRule(r.Context(), r.PathValue("id"), rule)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (rt *Router) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	if err := rt.cfg.Alarms.DeleteRule(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) handleListBlackouts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, rt.cfg.Alarms.ListBlackouts())
}

func (rt *Router) handleCreateBlackout(w http.ResponseWriter, r *http.Request) {
	var window types.BlackoutWindow
	if err := decodeJSON(r, &window); err != nil {
		writeError(w, err)
		return
	}
	created, err := rt.cfg.Alarms.CreateBlackout(r.Context(), window)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (rt *Router) handleDeleteBlackout(w http.ResponseWriter, r *http.Request) {
	if err := rt.cfg.Alarms.DeleteBlackout(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

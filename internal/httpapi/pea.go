package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"path/filepath"

	"github.com/habitatcp/controlplane/internal/cperrors"
	"github.com/habitatcp/controlplane/internal/simulator"
	"github.com/habitatcp/controlplane/internal/types"
)

// machine is the combined operator-facing view of a PEA: its authored
// config plus its last-observed runtime status. spec.md §6's /machines
// routes are this view; /pea is the config-only CRUD surface.
type machine struct {
	types.PeaConfig
	Status *types.PeaRuntimeStatus `json:"status,omitempty"`
}

func (rt *Router) toMachine(cfg types.PeaConfig) machine {
	m := machine{PeaConfig: cfg}
	if status, ok := rt.cfg.Peas.Status(cfg.ID); ok {
		m.Status = &status
	}
	return m
}

func (rt *Router) registerMachines(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/machines", rt.handleListMachines)
	mux.HandleFunc("GET /api/v1/machines/{id}", rt.handleGetMachine)
}

func (rt *Router) handleListMachines(w http.ResponseWriter, r *http.Request) {
	configs := rt.cfg.Peas.List()
	out := make([]machine, 0, len(configs))
	for _, cfg := range configs {
		out = append(out, rt.toMachine(cfg))
	}
	writeJSON(w, http.StatusOK, out)
}

func (rt *Router) handleGetMachine(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	cfg, ok := rt.cfg.Peas.Get(id)
	if !ok {
		writeError(w, cperrors.NotFound("httpapi: no pea with id %q", id))
		return
	}
	writeJSON(w, http.StatusOK, rt.toMachine(cfg))
}

func (rt *Router) registerPea(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/pea", rt.handleListPea)
	mux.HandleFunc("POST /api/v1/pea", rt.handleCreatePea)
	mux.HandleFunc("GET /api/v1/pea/{id}", rt.handleGetPea)
	mux.HandleFunc("PUT /api/v1/pea/{id}", rt.handlePutPea)
	mux.HandleFunc("DELETE /api/v1/pea/{id}", rt.handleDeletePea)

	mux.HandleFunc("POST /api/v1/pea/{id}/deploy", rt.handlePeaDeploy)
	mux.HandleFunc("POST /api/v1/pea/{id}/undeploy", rt.handlePeaUndeploy)
	mux.HandleFunc("POST /api/v1/pea/{id}/start", rt.handlePeaStart)
	mux.HandleFunc("POST /api/v1/pea/{id}/stop", rt.handlePeaStop)

	mux.HandleFunc("POST /api/v1/pea/{id}/services/{tag}/command", rt.handlePeaServiceCommand)
}

func (rt *Router) handleListPea(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, rt.cfg.Peas.List())
}

func (rt *Router) handleCreatePea(w http.ResponseWriter, r *http.Request) {
	var cfg types.PeaConfig
	if err := decodeJSON(r, &cfg); err != nil {
		writeError(w, err)
		return
	}
	created, err := rt.cfg.Peas.Put(r.Context(), cfg)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (rt *Router) handleGetPea(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	cfg, ok := rt.cfg.Peas.Get(id)
	if !ok {
		writeError(w, cperrors.NotFound("httpapi: no pea with id %q", id))
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (rt *Router) handlePutPea(w http.ResponseWriter, r *http.Request) {
	var cfg types.PeaConfig
	if err := decodeJSON(r, &cfg); err != nil {
		writeError(w, err)
		return
	}
	cfg.ID = r.PathValue("id")
	updated, err := rt.cfg.Peas.Put(r.Context(), cfg)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (rt *Router) handleDeletePea(w http.ResponseWriter, r *http.Request) {
	if err := rt.cfg.Peas.Delete(r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) handlePeaDeploy(w http.ResponseWriter, r *http.Request) {
	if err := rt.cfg.Lifecycle.Deploy(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (rt *Router) handlePeaUndeploy(w http.ResponseWriter, r *http.Request) {
	if err := rt.cfg.Lifecycle.Undeploy(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// startPeaRequest optionally carries an inline scenario, per SPEC_FULL.md
// §4.8's expansion — absent both fields, the bridge starts an empty,
// infinite-duration scenario so the pipeline still exercises start/stop
// without requiring an operator to author one.
type startPeaRequest struct {
	Scenario     *simulator.Scenario `json:"scenario,omitempty"`
	ScenarioFile string              `json:"scenario_file,omitempty"`
}

func (rt *Router) handlePeaStart(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req startPeaRequest
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, cperrors.Wrap(cperrors.KindValidation, "httpapi: read request body", err))
		return
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			writeError(w, cperrors.Wrap(cperrors.KindValidation, "httpapi: decode request body", err))
			return
		}
	}

	scenario := simulator.Scenario{ID: id, TickMs: 1000}
	switch {
	case req.Scenario != nil:
		scenario = *req.Scenario
	case req.ScenarioFile != "":
		loaded, err := simulator.LoadScenarioFile(filepath.Join(rt.cfg.ScenarioDir, req.ScenarioFile))
		if err != nil {
			writeError(w, cperrors.Wrap(cperrors.KindValidation, "httpapi: load scenario file", err))
			return
		}
		scenario = loaded
	}

	if err := rt.cfg.Lifecycle.Start(r.Context(), id, scenario); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (rt *Router) handlePeaStop(w http.ResponseWriter, r *http.Request) {
	if err := rt.cfg.Lifecycle.Stop(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

type serviceCommandRequest struct {
	Command     string `json:"command"`
	ProcedureID *int   `json:"procedure_id,omitempty"`
}

func (rt *Router) handlePeaServiceCommand(w http.ResponseWriter, r *http.Request) {
	var req serviceCommandRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	err := rt.cfg.Lifecycle.CommandService(r.Context(), r.PathValue("id"), r.PathValue("tag"), req.Command, req.ProcedureID)
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

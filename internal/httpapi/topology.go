package httpapi

import (
	"net/http"

	"github.com/habitatcp/controlplane/internal/types"
)

func (rt *Router) registerTopology(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/pol/topology", rt.handleGetTopology)
	mux.HandleFunc("PUT /api/v1/pol/topology", rt.handlePutTopology)
}

func (rt *Router) handleGetTopology(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, rt.cfg.Topology.Get())
}

type putTopologyRequest struct {
	Edges []types.TopologyEdge `json:"edges"`
}

func (rt *Router) handlePutTopology(w http.ResponseWriter, r *http.Request) {
	var req putTopologyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	topo, err := rt.cfg.Topology.Set(r.Context(), req.Edges)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, topo)
}

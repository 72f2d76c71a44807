package httpapi

import (
	"net/http"

	"github.com/habitatcp/controlplane/internal/types"
	"github.com/habitatcp/controlplane/internal/wsmux"
)

// metricsResponse is the **[EXPANSION]** flat gauge set from
// SPEC_FULL.md §6: cheap counts each component already tracks, in the
// teacher's habit of a /metrics-adjacent endpoint (internal/rpc/metrics.go)
// without standing up a full metrics system.
type metricsResponse struct {
	OpenAlarmCount       int `json:"open_alarm_count"`
	ActiveSimulatorCount int `json:"active_simulator_count"`
	WebSocketConnections int `json:"websocket_connections"`
	TimeSeriesKeyCount   int `json:"time_series_key_count"`
}

func (rt *Router) registerMetrics(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/metrics", rt.handleMetrics)
}

func (rt *Router) handleMetrics(w http.ResponseWriter, r *http.Request) {
	openAlarms := 0
	for _, rec := range rt.cfg.Alarms.List() {
		if rec.Status == types.AlarmOpen {
			openAlarms++
		}
	}

	activeSims := 0
	if rt.cfg.Simulators != nil {
		activeSims = rt.cfg.Simulators.Count()
	}

	writeJSON(w, http.StatusOK, metricsResponse{
		OpenAlarmCount:       openAlarms,
		ActiveSimulatorCount: activeSims,
		WebSocketConnections: int(wsmux.ActiveConnections()),
		TimeSeriesKeyCount:   len(rt.cfg.TimeSeries.Keys()),
	})
}

package httpapi

import (
	"net/http"
	"strconv"

	"github.com/habitatcp/controlplane/internal/cperrors"
)

func (rt *Router) registerTimeSeries(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/ts/keys", rt.handleTsKeys)
	mux.HandleFunc("GET /api/v1/ts/latest", rt.handleTsLatest)
	mux.HandleFunc("GET /api/v1/ts/query", rt.handleTsQuery)
}

func (rt *Router) handleTsKeys(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, rt.cfg.TimeSeries.Keys())
}

func (rt *Router) handleTsLatest(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		writeError(w, cperrors.Validation("httpapi: ts/latest requires a key query parameter"))
		return
	}
	pt, ok := rt.cfg.TimeSeries.Latest(key)
	if !ok {
		writeError(w, cperrors.NotFound("httpapi: no time-series data for key %q", key))
		return
	}
	writeJSON(w, http.StatusOK, pt)
}

func (rt *Router) handleTsQuery(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		writeError(w, cperrors.Validation("httpapi: ts/query requires a key query parameter"))
		return
	}
	startMs, err := parseMsParam(r, "start_ms", 0)
	if err != nil {
		writeError(w, err)
		return
	}
	endMs, err := parseMsParam(r, "end_ms", 1<<62)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rt.cfg.TimeSeries.Query(key, startMs, endMs))
}

func parseMsParam(r *http.Request, name string, def int64) (int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, cperrors.Wrap(cperrors.KindValidation, "httpapi: parse "+name, err)
	}
	return v, nil
}

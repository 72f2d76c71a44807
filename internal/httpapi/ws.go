package httpapi

import (
	"net/http"

	"github.com/habitatcp/controlplane/internal/wsmux"
)

func (rt *Router) registerWebSocket(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws", rt.handleWebSocket)
	mux.HandleFunc("GET /api/v1/ws", rt.handleWebSocket)
}

func (rt *Router) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if err := wsmux.Serve(w, r, rt.cfg.BusConn, rt.log); err != nil {
		rt.log.Warn("httpapi: websocket serve failed", "error", err)
	}
}

package httpapi

import "net/http"

func (rt *Router) registerHealth(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/health", rt.handleHealth)
	mux.HandleFunc("GET /health", rt.handleHealth)
}

func (rt *Router) handleHealth(w http.ResponseWriter, r *http.Request) {
	service := rt.cfg.ServiceName
	if service == "" {
		service = "controlplane"
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "service": service})
}

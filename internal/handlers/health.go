package handlers

import "net/http"

func (a *API) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":          "healthy",
		"manage_mode":     a.ManageMode,
		"process_manager": a.ProcessManager,
		"app":             a.Apps.Current().Name,
	})
}

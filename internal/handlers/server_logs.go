package handlers

import (
	"net/http"
	"strconv"

	"github.com/miroslavpejic85/mirotalk-admin/internal/logging"
)

// GetServerLogs returns the tail of the dashboard's own log file.
func (a *API) GetServerLogs(w http.ResponseWriter, r *http.Request) {
	lines := 200
	if q := r.URL.Query().Get("lines"); q != "" {
		if n, err := strconv.Atoi(q); err == nil && n > 0 {
			lines = n
		}
	}

	content, err := logging.ReadTail(lines)
	if err != nil {
		writeFailure(w, "Failed to read server logs", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"logs": content})
}

package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/miroslavpejic85/mirotalk-admin/internal/logutil"
)

func (a *API) GetAppNames(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"appNames": a.Apps.Names(),
		"current":  a.Apps.Current().Name,
	})
}

// SetAppName switches the managed app for every later command, REST and
// websocket alike.
func (a *API) SetAppName(w http.ResponseWriter, r *http.Request) {
	var body struct {
		AppName string `json:"appName"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if _, err := a.Apps.Set(body.AppName); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid app name. Must be one of: "+strings.Join(a.Apps.Names(), ", "))
		return
	}
	a.Log.Info().Str("app", logutil.SanitizeForLog(body.AppName)).Str("user", actor(r)).Msg("managed app switched")
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "appName": body.AppName})
}

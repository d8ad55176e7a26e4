package handlers

import (
	"net/http"
	"strings"

	"github.com/miroslavpejic85/mirotalk-admin/internal/commands"
)

func (a *API) CheckForServerUpdate(w http.ResponseWriter, r *http.Request) {
	out, ok := a.run(w, r, commands.CheckServerUpdate, "Failed to check for system update")
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, commands.ParseServerUpdate(out))
}

func (a *API) ServerReboot(w http.ResponseWriter, r *http.Request) {
	out, ok := a.run(w, r, commands.ServerReboot, "Reboot failed")
	if !ok {
		return
	}
	a.Log.Warn().Str("user", actor(r)).Msg("server reboot requested")
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Server rebooted successfully!",
		"output":  strings.TrimSpace(out),
	})
}

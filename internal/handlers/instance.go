package handlers

import (
	"net/http"
	"strings"

	"github.com/miroslavpejic85/mirotalk-admin/internal/commands"
)

// run resolves and runs a buffered command. On failure it has already
// written the response.
func (a *API) run(w http.ResponseWriter, r *http.Request, typ, failure string) (string, bool) {
	cmd, err := a.Resolve(typ)
	if err != nil {
		a.Log.Error().Err(err).Str("command", typ).Msg("resolve command")
		writeFailure(w, failure, err)
		return "", false
	}
	out, err := a.Exec.Run(r.Context(), cmd)
	if err != nil {
		a.Log.Error().Err(err).Str("command", typ).Msg(failure)
		writeFailure(w, failure, err)
		return "", false
	}
	return out, true
}

// Status reports whether the app is running and for how long.
func (a *API) Status(w http.ResponseWriter, r *http.Request) {
	out, ok := a.run(w, r, commands.Status, "Status check failed")
	if !ok {
		return
	}
	status, err := commands.ParseStatus(a.ProcessManager, out, a.clock())
	if err != nil {
		a.Log.Error().Err(err).Msg("parse status")
		writeFailure(w, "Status check failed", err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (a *API) Restart(w http.ResponseWriter, r *http.Request) {
	out, ok := a.run(w, r, commands.Restart, "Restart failed")
	if !ok {
		return
	}
	a.Log.Info().Str("app", a.Apps.Current().Name).Str("user", actor(r)).Msg("instance restarted")
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Instance restarted successfully!",
		"output":  strings.TrimSpace(out),
	})
}

// Update pulls the latest release of the app and restarts it.
func (a *API) Update(w http.ResponseWriter, r *http.Request) {
	out, ok := a.run(w, r, commands.Update, "Update failed")
	if !ok {
		return
	}
	a.Log.Info().Str("app", a.Apps.Current().Name).Str("user", actor(r)).Msg("instance updated and restarted")
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "MiroTalk updated and restarted",
		"logs":    out,
	})
}

// Logs returns the app's recent log lines.
func (a *API) Logs(w http.ResponseWriter, r *http.Request) {
	out, ok := a.run(w, r, commands.Logs, "Log fetch failed")
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"logs": out})
}

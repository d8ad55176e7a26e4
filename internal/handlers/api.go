// Package handlers implements the dashboard's REST endpoints.
package handlers

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/miroslavpejic85/mirotalk-admin/internal/auth"
	"github.com/miroslavpejic85/mirotalk-admin/internal/commands"
	"github.com/miroslavpejic85/mirotalk-admin/internal/config"
	"github.com/miroslavpejic85/mirotalk-admin/internal/executor"
	"github.com/miroslavpejic85/mirotalk-admin/internal/middleware"
)

// API carries what the handlers need. Commands run through Exec, resolved
// for the app currently selected in Apps.
type API struct {
	Auth           *auth.Authority
	Exec           executor.Executor
	Apps           *config.Selection
	ManageMode     string
	ProcessManager string
	Log            zerolog.Logger
	// HTTP fetches the upstream package.json; nil uses a client with a
	// 10s timeout.
	HTTP *http.Client

	now func() time.Time
}

func (a *API) resolver() commands.Resolver {
	return commands.Resolver{ProcessManager: a.ProcessManager, Apps: a.Apps}
}

// Resolve returns the shell command for typ. The websocket dispatcher shares
// it so both surfaces follow the same app selection.
func (a *API) Resolve(typ string) (string, error) {
	return a.resolver().Resolve(typ)
}

// actor names the admin behind an authenticated request for log lines.
func actor(r *http.Request) string {
	if claims := middleware.GetClaims(r); claims != nil {
		return claims.Username
	}
	return ""
}

func (a *API) clock() time.Time {
	if a.now != nil {
		return a.now()
	}
	return time.Now()
}

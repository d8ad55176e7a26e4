package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/miroslavpejic85/mirotalk-admin/internal/auth"
	"github.com/miroslavpejic85/mirotalk-admin/internal/logutil"
	"github.com/miroslavpejic85/mirotalk-admin/internal/middleware"
)

// Login checks the admin credentials and returns a bearer token for the
// REST API and the websocket events.
func (a *API) Login(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := validateUsername(body.Username); err != nil {
		writeError(w, http.StatusForbidden, err.Error())
		return
	}
	if err := validatePassword(body.Password); err != nil {
		writeError(w, http.StatusForbidden, err.Error())
		return
	}

	token, err := a.Auth.Login(body.Username, body.Password)
	if err != nil {
		a.Log.Warn().
			Str("username", logutil.SanitizeForLog(body.Username)).
			Str("ip", middleware.ClientIP(r)).
			Err(err).
			Msg("login failed")
		if errors.Is(err, auth.ErrNotConfigured) {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		writeError(w, http.StatusForbidden, "Invalid username or password")
		return
	}

	a.Log.Info().
		Str("username", logutil.SanitizeForLog(body.Username)).
		Str("ip", middleware.ClientIP(r)).
		Msg("login successful")
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/miroslavpejic85/mirotalk-admin/internal/config"
)

// managedFile picks one of the selected app's editable files.
type managedFile struct {
	label string
	path  func(config.App) string
}

var (
	envFile    = managedFile{label: ".env file", path: config.App.EnvPath}
	configFile = managedFile{label: "config file", path: config.App.ConfigPath}
)

func (a *API) GetEnv(w http.ResponseWriter, r *http.Request)     { a.readFile(w, r, envFile) }
func (a *API) SaveEnv(w http.ResponseWriter, r *http.Request)    { a.writeFile(w, r, envFile) }
func (a *API) GetConfig(w http.ResponseWriter, r *http.Request)  { a.readFile(w, r, configFile) }
func (a *API) SaveConfig(w http.ResponseWriter, r *http.Request) { a.writeFile(w, r, configFile) }

func (a *API) filePath(f managedFile) (string, error) {
	app := a.Apps.Current()
	p := f.path(app)
	if p == "" {
		return "", errors.New(f.label + " path not set for " + app.Name)
	}
	return p, nil
}

func (a *API) readFile(w http.ResponseWriter, r *http.Request, f managedFile) {
	p, err := a.filePath(f)
	if err != nil {
		writeFailure(w, "Failed to read "+f.label, err)
		return
	}
	data, err := a.Exec.ReadFile(r.Context(), p)
	if err != nil {
		a.Log.Error().Err(err).Str("path", p).Msg("read file")
		writeFailure(w, "Failed to read "+f.label, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"content": string(data)})
}

func (a *API) writeFile(w http.ResponseWriter, r *http.Request, f managedFile) {
	var body struct {
		Content *string `json:"content"`
	}
	r.Body = http.MaxBytesReader(w, r.Body, 2*maxFileContent)
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := validateFileContent(body.Content); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	p, err := a.filePath(f)
	if err != nil {
		writeFailure(w, "Failed to write "+f.label, err)
		return
	}
	if err := a.Exec.WriteFile(r.Context(), p, []byte(*body.Content)); err != nil {
		a.Log.Error().Err(err).Str("path", p).Msg("write file")
		writeFailure(w, "Failed to write "+f.label, err)
		return
	}
	a.Log.Info().Str("path", p).Str("user", actor(r)).Msg("file updated")
	writeJSON(w, http.StatusOK, map[string]string{"message": f.label + " updated successfully"})
}

package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/miroslavpejic85/mirotalk-admin/internal/config"
)

const maxManifestSize = 1 << 20

var defaultHTTPClient = &http.Client{Timeout: 10 * time.Second}

type VersionInfo struct {
	LocalVersion  string `json:"localVersion"`
	RemoteVersion string `json:"remoteVersion"`
	IsUpToDate    bool   `json:"isUpToDate"`
}

type packageManifest struct {
	Version string `json:"version"`
}

// Version compares the installed app's package.json with the upstream one.
func (a *API) Version(w http.ResponseWriter, r *http.Request) {
	app := a.Apps.Current()
	info, err := a.compareVersions(r.Context(), app)
	if err != nil {
		a.Log.Error().Err(err).Str("app", app.Name).Msg("compare versions")
		writeFailure(w, "Failed to compare versions", err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (a *API) compareVersions(ctx context.Context, app config.App) (VersionInfo, error) {
	if app.PackageURL == "" {
		return VersionInfo{}, fmt.Errorf("%s has no package_url", app.Name)
	}

	data, err := a.Exec.ReadFile(ctx, app.PackagePath())
	if err != nil {
		return VersionInfo{}, fmt.Errorf("read local package.json: %w", err)
	}
	var local packageManifest
	if err := json.Unmarshal(data, &local); err != nil {
		return VersionInfo{}, fmt.Errorf("parse local package.json: %w", err)
	}

	remote, err := a.fetchManifest(ctx, app.PackageURL)
	if err != nil {
		return VersionInfo{}, err
	}

	return VersionInfo{
		LocalVersion:  local.Version,
		RemoteVersion: remote.Version,
		IsUpToDate:    local.Version == remote.Version,
	}, nil
}

func (a *API) fetchManifest(ctx context.Context, url string) (packageManifest, error) {
	var m packageManifest
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return m, fmt.Errorf("build package.json request: %w", err)
	}

	client := a.HTTP
	if client == nil {
		client = defaultHTTPClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return m, fmt.Errorf("fetch remote package.json: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return m, fmt.Errorf("fetch remote package.json: %s", resp.Status)
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxManifestSize)).Decode(&m); err != nil {
		return m, fmt.Errorf("parse remote package.json: %w", err)
	}
	return m, nil
}

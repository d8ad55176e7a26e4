package commands

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/miroslavpejic85/mirotalk-admin/internal/config"
)

// ProcessStatus is the parsed result of the status command.
type ProcessStatus struct {
	Status     string `json:"status"`
	Uptime     string `json:"uptime"`
	StartedAt  string `json:"startedAt"`
	FinishedAt string `json:"finishedAt"`
}

func unknownStatus() ProcessStatus {
	return ProcessStatus{Status: "unknown", Uptime: "00:00:00", StartedAt: "n/a", FinishedAt: "n/a"}
}

// ParseStatus parses status command output for the given process manager.
func ParseStatus(processManager, output string, now time.Time) (ProcessStatus, error) {
	switch processManager {
	case config.ModePM2:
		return parsePM2Status(output, now), nil
	case config.ModeDocker:
		return parseDockerStatus(output, now)
	default:
		return ProcessStatus{}, fmt.Errorf("unsupported process manager %q", processManager)
	}
}

// parsePM2Status reads the box-drawn table printed by `pm2 show`.
func parsePM2Status(output string, now time.Time) ProcessStatus {
	st := unknownStatus()
	lines := strings.Split(output, "\n")
	value := func(key string) string {
		for _, line := range lines {
			line = strings.TrimSpace(line)
			if !strings.Contains(line, "│ "+key) {
				continue
			}
			parts := strings.Split(line, "│")
			if len(parts) < 3 {
				return ""
			}
			return strings.TrimSpace(parts[2])
		}
		return ""
	}

	if v := value("status"); v != "" {
		st.Status = v
	}
	if created, err := time.Parse(time.RFC3339, value("created at")); err == nil {
		st.StartedAt = created.Format(time.RFC3339)
		st.FinishedAt = st.StartedAt
		st.Uptime = formatUptime(now.Sub(created))
	}
	return st
}

type dockerState struct {
	Status     string `json:"Status"`
	StartedAt  string `json:"StartedAt"`
	FinishedAt string `json:"FinishedAt"`
}

func parseDockerStatus(output string, now time.Time) (ProcessStatus, error) {
	st := unknownStatus()
	var state dockerState
	if err := json.Unmarshal([]byte(strings.TrimSpace(output)), &state); err != nil {
		return st, fmt.Errorf("parse docker status: %w", err)
	}
	if state.Status != "" {
		st.Status = state.Status
	}
	if started, err := time.Parse(time.RFC3339Nano, state.StartedAt); err == nil {
		st.StartedAt = started.Format(time.RFC3339)
		st.FinishedAt = st.StartedAt
		st.Uptime = formatUptime(now.Sub(started))
	}
	if finished, err := time.Parse(time.RFC3339Nano, state.FinishedAt); err == nil {
		st.FinishedAt = finished.Format(time.RFC3339)
	}
	return st, nil
}

// formatUptime renders d as HH:MM:SS; hours are not wrapped at 24.
func formatUptime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int64(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", secs/3600, (secs/60)%60, secs%60)
}

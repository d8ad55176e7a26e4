// Package outputfilter strips progress noise from the output of update
// commands (docker pulls, npm installs, apt upgrades) before it is streamed
// to the dashboard.
package outputfilter

import (
	"regexp"
	"strings"
)

var (
	barePercent = regexp.MustCompile(`^\d+%$`)
	onlyPunct   = regexp.MustCompile(`^[\s\-=*.]+$`)
	bracketBar  = regexp.MustCompile(`\[[=>#\-\s]*\]\s*\d+%`)
)

var dropped = []string{
	// docker pull progress
	"Downloading [",
	"Extracting [",
	// redundant docker layer chatter
	"Already exists",
	"Waiting",
	"Pulling fs layer",
	"Verifying Checksum",
	"Download complete",
	// npm / apt block bars
	"░", "█", "▓",
}

var kept = []string{
	// docker
	"Pull complete", "Pulled", "Container", "Total reclaimed space", "Deleted Images", "Image",
	// git
	"From https://", "From git://", "Updating", "Fast-forward", "files changed", "insertions(+)", "deletions(-)",
	// pm2
	"[PM2]", "pm2", "stopping", "starting", "restarting", "online", "stopped", "✓", "✗",
}

var keptPrefixes = []string{"create mode", "delete mode", "rename "}

var npmSummary = []string{"added", "removed", "updated", "audited", "packages"}

// Clean filters text line by line. Lines are never rewritten, only kept or
// dropped. The result is empty when nothing worth showing remains. Patterns
// split across two chunks are not recognized.
func Clean(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if keep(line) {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

func keep(line string) bool {
	trimmed := strings.TrimSpace(line)

	if containsAny(line, dropped) || barePercent.MatchString(trimmed) || bracketBar.MatchString(line) {
		return false
	}

	if containsAny(line, kept) || hasAnyPrefix(trimmed, keptPrefixes) {
		return true
	}
	if strings.Contains(line, "npm") && containsAny(line, npmSummary) {
		return true
	}
	lower := strings.ToLower(line)
	if strings.Contains(lower, "error") || strings.Contains(lower, "warning") || strings.Contains(lower, "failed") {
		return true
	}

	return trimmed != "" && !onlyPunct.MatchString(line)
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

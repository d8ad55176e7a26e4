package commands

import (
	"regexp"
	"strconv"
)

// ServerUpdateStatus summarises the output of the CheckServerUpdate command.
type ServerUpdateStatus struct {
	UpdateAvailable bool `json:"updateAvailable"`
	UpgradableCount int  `json:"upgradableCount"`
}

var (
	motdUpdates = regexp.MustCompile(`(\d+) updates can be applied immediately`)
	aptSummary  = regexp.MustCompile(`(\d+)\s+upgraded,.*?(\d+)\s+newly installed,.*?(\d+)\s+to remove,.*?(\d+)\s+not upgraded\.`)
)

// ParseServerUpdate reads the pending package count from the Ubuntu MOTD
// line, falling back to the apt-get upgrade summary. Output matching
// neither means nothing to upgrade.
func ParseServerUpdate(output string) ServerUpdateStatus {
	count := 0
	if m := motdUpdates.FindStringSubmatch(output); m != nil {
		count, _ = strconv.Atoi(m[1])
	} else if m := aptSummary.FindStringSubmatch(output); m != nil {
		count, _ = strconv.Atoi(m[1])
	}
	return ServerUpdateStatus{UpdateAvailable: count > 0, UpgradableCount: count}
}

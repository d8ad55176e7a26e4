// Package commands maps logical operations to the shell command strings that
// perform them for the configured process manager.
package commands

import (
	"fmt"
	"strings"

	"github.com/miroslavpejic85/mirotalk-admin/internal/config"
)

// Operation types.
const (
	Restart           = "restart"
	Logs              = "logs"
	RealTimeLogs      = "realTimeLogs"
	Status            = "status"
	Update            = "update"
	CheckServerUpdate = "checkServerUpdate"
	ServerUpdate      = "serverUpdate"
	ServerReboot      = "serverReboot"
)

const (
	logsLines         = 1000
	realTimeLogsLines = 300
)

type builder func(app config.App) string

var pm2Commands = map[string]builder{
	Restart: func(app config.App) string { return "pm2 restart " + app.Name },
	Logs: func(app config.App) string {
		return fmt.Sprintf("pm2 logs %s --lines %d --nostream", app.Name, logsLines)
	},
	RealTimeLogs: func(app config.App) string {
		return fmt.Sprintf("pm2 logs %s --lines %d", app.Name, realTimeLogsLines)
	},
	Status: func(app config.App) string { return "pm2 show " + app.Name },
	Update: func(app config.App) string {
		return strings.Join([]string{
			"cd " + app.Dir,
			"git pull",
			"npm ci",
			"pm2 restart " + app.Name,
		}, " && ")
	},
}

var dockerCommands = map[string]builder{
	Restart: func(app config.App) string { return "docker restart " + app.Name },
	Logs: func(app config.App) string {
		return fmt.Sprintf("docker logs --tail %d %s", logsLines, app.Name)
	},
	RealTimeLogs: func(app config.App) string {
		return fmt.Sprintf("docker logs -f --tail %d %s", realTimeLogsLines, app.Name)
	},
	Status: func(app config.App) string {
		return fmt.Sprintf(`docker inspect %s --format "{{json .State}}"`, app.Name)
	},
	Update: func(app config.App) string {
		return strings.Join([]string{
			"cd " + app.Dir,
			"git pull",
			"docker-compose down",
			"docker-compose pull",
			"docker image prune -f",
			"docker-compose up -d",
		}, " && ")
	},
}

// Generic commands act on the host rather than the app and ignore the
// process manager.
var genericCommands = map[string]func() string{
	CheckServerUpdate: func() string {
		return strings.Join([]string{
			"sudo apt-get update -y",
			`apt-get -s upgrade | grep -E "^[0-9]+ upgraded" || echo "0 upgraded, 0 newly installed, 0 to remove, 0 not upgraded."`,
		}, " && ")
	},
	ServerUpdate: func() string {
		return strings.Join([]string{
			"sudo apt-get update -y",
			"sudo apt-get upgrade -y",
			"sudo apt-get dist-upgrade -y",
			"lsb_release -a",
		}, " && ")
	},
	ServerReboot: func() string { return "sudo shutdown -r now || exit $?" },
}

// Resolve returns the shell command for typ under the given process manager
// (config.ModePM2 or config.ModeDocker).
func Resolve(typ, processManager string, app config.App) (string, error) {
	if gen, ok := genericCommands[typ]; ok {
		return gen(), nil
	}
	var table map[string]builder
	switch processManager {
	case config.ModePM2:
		table = pm2Commands
	case config.ModeDocker:
		table = dockerCommands
	default:
		return "", fmt.Errorf("unsupported process manager %q", processManager)
	}
	b, ok := table[typ]
	if !ok {
		return "", fmt.Errorf("unknown command type %q", typ)
	}
	return b(app), nil
}

// AppSource yields the app commands are built for. *config.Selection
// satisfies it.
type AppSource interface {
	Current() config.App
}

// Resolver binds Resolve to a process manager and the currently selected
// app. The app is read on every call.
type Resolver struct {
	ProcessManager string
	Apps           AppSource
}

func (r Resolver) Resolve(typ string) (string, error) {
	return Resolve(typ, r.ProcessManager, r.Apps.Current())
}

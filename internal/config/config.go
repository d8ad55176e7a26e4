package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Manage modes. ModeSSH manages the app on another host and uses SSHManageMode
// to pick the process manager over there.
const (
	ModeSSH    = "ssh"
	ModePM2    = "pm2"
	ModeDocker = "docker"
)

type Settings struct {
	Port             int           `envconfig:"ADMIN_PORT" default:"9999"`
	DashboardEnabled bool          `envconfig:"ADMIN_DASHBOARD_ENABLED" default:"false"`
	JWTSecret        string        `envconfig:"ADMIN_JWT_SECRET" default:""`
	JWTExpiresIn     time.Duration `envconfig:"ADMIN_JWT_EXPIRES_IN" default:"1h"`
	Username         string        `envconfig:"ADMIN_USERNAME" default:""`
	PasswordHash     string        `envconfig:"ADMIN_PASSWORD_HASH" default:""`
	AllowedIPs       string        `envconfig:"ADMIN_ALLOWED_IPS" default:"*"`
	TrustProxy       bool          `envconfig:"TRUST_PROXY" default:"false"`
	// Origins accepted on the websocket upgrade.
	WSOrigins []string `envconfig:"ADMIN_WS_ORIGINS" default:"*"`

	AppName    string `envconfig:"APP_NAME" default:"mirotalksfu"`
	AppsFile   string `envconfig:"APPS_FILE" default:""`
	ManageMode string `envconfig:"APP_MANAGE_MODE" default:"ssh"`

	// Remote host settings, read once at startup.
	SSHManageMode  string        `envconfig:"SSH_MANAGE_MODE" default:"docker"`
	SSHHost        string        `envconfig:"SSH_HOST" default:""`
	SSHPort        int           `envconfig:"SSH_PORT" default:"22"`
	SSHUser        string        `envconfig:"SSH_USER" default:"root"`
	SSHPassword    string        `envconfig:"SSH_PASSWORD" default:""`
	SSHPrivateKey  string        `envconfig:"SSH_PRIVATE_KEY_PATH" default:""`
	SSHKnownHosts  string        `envconfig:"SSH_KNOWN_HOSTS" default:""`
	SSHDialTimeout time.Duration `envconfig:"SSH_DIAL_TIMEOUT" default:"30s"`

	LogPath   string `envconfig:"LOG_PATH" default:""`
	LogsDebug bool   `envconfig:"LOGS_DEBUG" default:"true"`
	LogsJSON  bool   `envconfig:"LOGS_JSON" default:"false"`
}

var Cfg Settings

// Load populates Cfg from the environment and exits on invalid values.
func Load() {
	s, err := Parse()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	Cfg = s
}

// Parse reads Settings from the environment without touching Cfg.
func Parse() (Settings, error) {
	var s Settings
	if err := envconfig.Process("", &s); err != nil {
		return s, err
	}
	s.AppName = strings.TrimSpace(strings.Split(s.AppName, ",")[0])
	if err := s.validate(); err != nil {
		return s, err
	}
	return s, nil
}

func (s Settings) validate() error {
	switch s.ManageMode {
	case ModeSSH, ModePM2, ModeDocker:
	default:
		return fmt.Errorf("APP_MANAGE_MODE must be one of ssh, pm2, docker (got %q)", s.ManageMode)
	}
	switch s.SSHManageMode {
	case ModePM2, ModeDocker:
	default:
		return fmt.Errorf("SSH_MANAGE_MODE must be pm2 or docker (got %q)", s.SSHManageMode)
	}
	return nil
}

// Remote reports whether commands run on the SSH host.
func (s Settings) Remote() bool {
	return s.ManageMode == ModeSSH
}

// ProcessManager returns the process manager that owns the app (pm2 or docker).
func (s Settings) ProcessManager() string {
	if s.Remote() {
		return s.SSHManageMode
	}
	return s.ManageMode
}

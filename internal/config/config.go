package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// General
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Slack (Socket Mode)
	// Prefixed with BRIDGE_ so other tooling on the host does not pick the
	// tokens up by accident.
	SlackBotToken string `envconfig:"BRIDGE_SLACK_BOT_TOKEN"`
	SlackAppToken string `envconfig:"BRIDGE_SLACK_APP_TOKEN"` // xapp- token for Socket Mode

	// Comma-separated Slack user IDs allowed to adopt unmapped threads and
	// issue project commands. Empty means everyone is allowed.
	AllowedUsers string `envconfig:"BRIDGE_ALLOWED_USERS"`

	// Sessions
	SessionPrefix    string        `envconfig:"SESSION_PREFIX" default:"claude-session"`
	SessionCommand   string        `envconfig:"SESSION_COMMAND" default:"claude"`
	SessionGrace     time.Duration `envconfig:"SESSION_GRACE" default:"4s"` // wait after spawn before first delivery
	CaptureLines     int           `envconfig:"CAPTURE_LINES" default:"200"`
	ResponseSettle   time.Duration `envconfig:"RESPONSE_SETTLE" default:"2s"`
	ResponseDeadline time.Duration `envconfig:"RESPONSE_DEADLINE" default:"10m"`

	// Projects
	ProjectsDir      string        `envconfig:"PROJECTS_DIR" default:"~/projects"`
	DevDir           string        `envconfig:"DEV_DIR" default:"~/dev"`
	TemplatesDir     string        `envconfig:"BRIDGE_TEMPLATES_DIR"` // optional scaffold copied into new workspaces
	GitBranch        string        `envconfig:"GIT_BRANCH" default:"main"`
	GitTimeout       time.Duration `envconfig:"GIT_TIMEOUT" default:"60s"`
	ProvisionTimeout time.Duration `envconfig:"PROVISION_TIMEOUT" default:"120s"`

	// GitHub (PAT)
	GitHubToken string `envconfig:"GITHUB_TOKEN"`
	GitHubOwner string `envconfig:"GITHUB_OWNER"` // defaults to the token's user when empty

	// Store
	SQLitePath string `envconfig:"SQLITE_PATH" default:"bridge.db"`

	// Management API
	MgmtListenAddr  string `envconfig:"MGMT_LISTEN_ADDR" default:":8090"`
	MgmtAPIKey      string `envconfig:"MGMT_API_KEY"`
	MgmtCORSOrigins string `envconfig:"MGMT_CORS_ORIGINS"`

	// Prompt template overrides (optional YAML file)
	PromptsPath string `envconfig:"PROMPTS_PATH"`
}

// SlackEnabled returns true if Slack tokens are configured.
func (c *Config) SlackEnabled() bool {
	return c.SlackBotToken != "" && c.SlackAppToken != ""
}

// GitHubEnabled returns true if a GitHub token is configured.
func (c *Config) GitHubEnabled() bool {
	return c.GitHubToken != ""
}

// AllowedUserList returns the parsed list of allowed Slack user IDs.
// Returns nil if not configured (everyone allowed).
func (c *Config) AllowedUserList() []string {
	if c.AllowedUsers == "" {
		return nil
	}
	parts := strings.Split(c.AllowedUsers, ",")
	users := make([]string, 0, len(parts))
	for _, u := range parts {
		u = strings.TrimSpace(u)
		if u != "" {
			users = append(users, u)
		}
	}
	return users
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return &cfg, nil
}

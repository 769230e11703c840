package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "claude-session", cfg.SessionPrefix)
	assert.Equal(t, "main", cfg.GitBranch)
	assert.Equal(t, ":8090", cfg.MgmtListenAddr)
	assert.False(t, cfg.SlackEnabled())
	assert.False(t, cfg.GitHubEnabled())
	assert.Equal(t, 60*time.Second, cfg.GitTimeout)
	assert.Equal(t, 120*time.Second, cfg.ProvisionTimeout)
	assert.Empty(t, cfg.TemplatesDir)
}

func TestTemplatesDirFromEnv(t *testing.T) {
	t.Setenv("BRIDGE_TEMPLATES_DIR", "/opt/bridge/scaffold")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "/opt/bridge/scaffold", cfg.TemplatesDir)
}

func TestSlackEnabled(t *testing.T) {
	t.Setenv("BRIDGE_SLACK_BOT_TOKEN", "xoxb-test")
	t.Setenv("BRIDGE_SLACK_APP_TOKEN", "xapp-test")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.SlackEnabled())
}

func TestAllowedUserList(t *testing.T) {
	cfg := &Config{}
	assert.Nil(t, cfg.AllowedUserList())

	cfg.AllowedUsers = "U111, U222 ,,U333"
	assert.Equal(t, []string{"U111", "U222", "U333"}, cfg.AllowedUserList())
}

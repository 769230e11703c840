package slack

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCommand(t *testing.T) {
	cmd, ok := ParseCommand("!idea todo-app a todo list with reminders")
	require.True(t, ok)
	assert.Equal(t, "idea", cmd.Name)
	assert.Equal(t, []string{"todo-app", "a", "todo", "list", "with", "reminders"}, cmd.Args)
	assert.Equal(t, "a todo list with reminders", cmd.Rest)

	cmd, ok = ParseCommand("  !COMPLETE  ")
	require.True(t, ok)
	assert.Equal(t, "complete", cmd.Name)
	assert.Empty(t, cmd.Args)
}

func TestParseCommandNotACommand(t *testing.T) {
	_, ok := ParseCommand("just chatting about !idea stuff")
	assert.False(t, ok)

	_, ok = ParseCommand("")
	assert.False(t, ok)

	_, ok = ParseCommand("!")
	assert.False(t, ok)
}

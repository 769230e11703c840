package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStageOrder(t *testing.T) {
	got := Stages()
	require.Equal(t, []Stage{StageIdea, StageRequirements, StageDesign, StageTasks, StageDevelopment}, got)
}

func TestStageNext(t *testing.T) {
	next, ok := StageIdea.Next()
	require.True(t, ok)
	assert.Equal(t, StageRequirements, next)

	next, ok = StageTasks.Next()
	require.True(t, ok)
	assert.Equal(t, StageDevelopment, next)

	_, ok = StageDevelopment.Next()
	assert.False(t, ok)
}

func TestStageChannel(t *testing.T) {
	assert.Equal(t, "1-idea", StageIdea.Channel())
	assert.Equal(t, "2-requirements", StageRequirements.Channel())
	assert.Equal(t, "5-development", StageDevelopment.Channel())
}

func TestStageFromChannel(t *testing.T) {
	st, ok := StageFromChannel("3-design")
	require.True(t, ok)
	assert.Equal(t, StageDesign, st)

	_, ok = StageFromChannel("general")
	assert.False(t, ok)
}

func TestParseStage(t *testing.T) {
	st, err := ParseStage(" Design ")
	require.NoError(t, err)
	assert.Equal(t, StageDesign, st)

	_, err = ParseStage("shipping")
	assert.Error(t, err)
}

func TestStageDocument(t *testing.T) {
	assert.Equal(t, "idea.md", StageIdea.Document())
	assert.Equal(t, "", StageDevelopment.Document())
}

func TestValidateProjectName(t *testing.T) {
	assert.NoError(t, ValidateProjectName("todo-app"))
	assert.NoError(t, ValidateProjectName("app2"))

	assert.Error(t, ValidateProjectName(""))
	assert.Error(t, ValidateProjectName("Todo-App"))
	assert.Error(t, ValidateProjectName("has space"))
	assert.Error(t, ValidateProjectName("-leading"))
	assert.Error(t, ValidateProjectName("waaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaay-too-long-name"))
}

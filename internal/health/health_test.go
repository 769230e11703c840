package health

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestRunAll(t *testing.T) {
	c := NewChecker(zerolog.Nop())
	c.Register("store", func(ctx context.Context) Status { return StatusOK })
	c.Register("tmux", func(ctx context.Context) Status { return StatusDegraded })

	results := c.RunAll(context.Background())
	assert.Equal(t, StatusOK, results["store"])
	assert.Equal(t, StatusDegraded, results["tmux"])
}

func TestIsReady(t *testing.T) {
	c := NewChecker(zerolog.Nop())
	c.Register("store", func(ctx context.Context) Status { return StatusOK })
	assert.True(t, c.IsReady(context.Background()))

	c.Register("slack", func(ctx context.Context) Status { return StatusDown })
	assert.False(t, c.IsReady(context.Background()))
}

func TestDegradedIsStillReady(t *testing.T) {
	c := NewChecker(zerolog.Nop())
	c.Register("github", func(ctx context.Context) Status { return StatusDegraded })
	assert.True(t, c.IsReady(context.Background()))
}

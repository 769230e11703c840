// Package session manages the lifecycle of numbered assistant sessions.
// Each conversation context owns one tmux session named
// "<prefix>-<number>"; the controller spawns, feeds, observes, and
// tears down those sessions.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/akd-tools/sdd-bridge/internal/registry"
	"github.com/akd-tools/sdd-bridge/internal/tmux"
)

// Options tune the controller; zero values fall back to sane defaults.
type Options struct {
	Prefix       string        // session name prefix
	Command      string        // command started inside a new session
	Grace        time.Duration // wait after spawn before the first delivery
	CaptureLines int
	Settle       time.Duration // output must be quiet this long to count as a response
	Deadline     time.Duration // give up waiting for a response after this long
}

func (o *Options) defaults() {
	if o.Prefix == "" {
		o.Prefix = "claude-session"
	}
	if o.Command == "" {
		o.Command = "claude"
	}
	if o.CaptureLines <= 0 {
		o.CaptureLines = 200
	}
	if o.Settle <= 0 {
		o.Settle = 2 * time.Second
	}
	if o.Deadline <= 0 {
		o.Deadline = 10 * time.Minute
	}
}

// Status describes one session as seen by list and status queries.
type Status struct {
	ContextID  string `json:"context_id"`
	SessionNum int    `json:"session_num"`
	Name       string `json:"name"`
	Alive      bool   `json:"alive"`
}

// Controller owns the context-to-session mapping and the tmux sessions
// behind it. All operations on the same session number are serialized.
type Controller struct {
	reg    *registry.Registry
	tmux   tmux.Client
	opts   Options
	logger zerolog.Logger

	mu    sync.Mutex
	locks map[int]*sync.Mutex
}

// NewController creates a controller.
func NewController(reg *registry.Registry, tc tmux.Client, opts Options, logger zerolog.Logger) *Controller {
	opts.defaults()
	return &Controller{
		reg:    reg,
		tmux:   tc,
		opts:   opts,
		logger: logger.With().Str("component", "session").Logger(),
		locks:  make(map[int]*sync.Mutex),
	}
}

// Name returns the tmux session name for a session number.
func (c *Controller) Name(num int) string {
	return fmt.Sprintf("%s-%d", c.opts.Prefix, num)
}

func (c *Controller) lockFor(num int) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.locks[num]
	if !ok {
		l = &sync.Mutex{}
		c.locks[num] = l
	}
	return l
}

// Ensure returns the session number for contextID, spawning the tmux
// session in dir if it is not running. After a spawn the call blocks
// for the grace period so the assistant is ready for its first input.
func (c *Controller) Ensure(ctx context.Context, contextID, dir string) (int, bool, error) {
	num, err := c.reg.Allocate(contextID)
	if err != nil {
		return 0, false, err
	}

	l := c.lockFor(num)
	l.Lock()
	defer l.Unlock()

	name := c.Name(num)
	if c.tmux.SessionExists(name) {
		return num, false, nil
	}

	c.logger.Info().Str("context", contextID).Str("session", name).Msg("starting session")
	if err := c.tmux.NewSession(name, dir, c.opts.Command); err != nil {
		return 0, false, fmt.Errorf("failed to start session %s: %w", name, err)
	}

	if c.opts.Grace > 0 {
		select {
		case <-time.After(c.opts.Grace):
		case <-ctx.Done():
			return 0, false, ctx.Err()
		}
	}
	return num, true, nil
}

// Deliver types text into the session mapped to contextID.
func (c *Controller) Deliver(contextID, text string) error {
	num, err := c.reg.Lookup(contextID)
	if err != nil {
		return err
	}

	l := c.lockFor(num)
	l.Lock()
	defer l.Unlock()

	if err := c.tmux.SendText(c.Name(num), text); err != nil {
		return fmt.Errorf("failed to deliver to session %d: %w", num, err)
	}
	return nil
}

// Capture returns the tail of the session's pane.
func (c *Controller) Capture(contextID string) (string, error) {
	num, err := c.reg.Lookup(contextID)
	if err != nil {
		return "", err
	}
	return c.tmux.CapturePane(c.Name(num), c.opts.CaptureLines)
}

// CollectResponse polls the session's pane until the output has been
// quiet for the settle window, then returns whatever appeared after the
// before snapshot. It gives up at the deadline with the output gathered
// so far.
func (c *Controller) CollectResponse(ctx context.Context, contextID, before string) (string, error) {
	num, err := c.reg.Lookup(contextID)
	if err != nil {
		return "", err
	}
	name := c.Name(num)

	deadline := time.Now().Add(c.opts.Deadline)
	last := before
	lastChange := time.Now()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return diffAfter(before, last), ctx.Err()
		case <-ticker.C:
		}

		pane, err := c.tmux.CapturePane(name, c.opts.CaptureLines)
		if err != nil {
			return "", err
		}
		if pane != last {
			last = pane
			lastChange = time.Now()
			continue
		}
		if last != before && time.Since(lastChange) >= c.opts.Settle {
			return diffAfter(before, last), nil
		}
		if time.Now().After(deadline) {
			return diffAfter(before, last), nil
		}
	}
}

// diffAfter strips the part of pane output that was already on screen
// before a delivery.
func diffAfter(before, after string) string {
	if before != "" && strings.HasPrefix(after, before) {
		return strings.TrimSpace(strings.TrimPrefix(after, before))
	}
	return strings.TrimSpace(after)
}

// Kill tears down the session for contextID and frees its number. A
// missing tmux session is tolerated so stale mappings can be cleared.
func (c *Controller) Kill(contextID string) error {
	num, err := c.reg.Lookup(contextID)
	if err != nil {
		return err
	}

	l := c.lockFor(num)
	l.Lock()
	defer l.Unlock()

	if err := c.tmux.KillSession(c.Name(num)); err != nil && !errors.Is(err, tmux.ErrSessionNotFound) {
		return fmt.Errorf("failed to kill session %d: %w", num, err)
	}
	if _, err := c.reg.Remove(contextID); err != nil {
		return err
	}
	c.logger.Info().Str("context", contextID).Int("session", num).Msg("session killed")
	return nil
}

// List returns all registered sessions with their liveness.
func (c *Controller) List() ([]Status, error) {
	entries, err := c.reg.List()
	if err != nil {
		return nil, err
	}
	statuses := make([]Status, 0, len(entries))
	for _, e := range entries {
		name := c.Name(e.SessionNum)
		statuses = append(statuses, Status{
			ContextID:  e.ContextID,
			SessionNum: e.SessionNum,
			Name:       name,
			Alive:      c.tmux.SessionExists(name),
		})
	}
	return statuses, nil
}

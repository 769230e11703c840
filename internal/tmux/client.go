// Package tmux is a thin adapter over the tmux binary. Assistant
// sessions run as detached tmux sessions so they survive bridge
// restarts and can be attached to from a terminal.
package tmux

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

var (
	// ErrSessionExists is returned when creating a session whose name is taken.
	ErrSessionExists = errors.New("tmux session already exists")
	// ErrSessionNotFound is returned for operations on a missing session.
	ErrSessionNotFound = errors.New("tmux session not found")
)

// Client is the surface the session controller needs from tmux.
type Client interface {
	NewSession(name, dir, command string) error
	SessionExists(name string) bool
	KillSession(name string) error
	ListSessions() ([]string, error)
	SendText(name, text string) error
	CapturePane(name string, lines int) (string, error)
}

// DefaultClient shells out to the local tmux binary.
type DefaultClient struct{}

var _ Client = (*DefaultClient)(nil)

// NewClient creates a tmux client.
func NewClient() *DefaultClient {
	return &DefaultClient{}
}

// NewSession creates a detached session running command in dir and
// waits briefly for tmux to register it.
func (c *DefaultClient) NewSession(name, dir, command string) error {
	if c.SessionExists(name) {
		return ErrSessionExists
	}

	args := []string{"new-session", "-d", "-s", name}
	if dir != "" {
		args = append(args, "-c", dir)
	}
	if command != "" {
		args = append(args, command)
	}
	if err := exec.Command("tmux", args...).Run(); err != nil {
		return fmt.Errorf("failed to create tmux session %s: %w", name, err)
	}

	timeout := time.After(2 * time.Second)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-timeout:
			return fmt.Errorf("timeout waiting for session %s to be created", name)
		case <-ticker.C:
			if c.SessionExists(name) {
				return nil
			}
		}
	}
}

// SessionExists checks if the tmux session exists.
func (c *DefaultClient) SessionExists(name string) bool {
	return exec.Command("tmux", "has-session", "-t", name).Run() == nil
}

// KillSession terminates the tmux session.
func (c *DefaultClient) KillSession(name string) error {
	if !c.SessionExists(name) {
		return ErrSessionNotFound
	}
	if err := exec.Command("tmux", "kill-session", "-t", name).Run(); err != nil {
		return fmt.Errorf("failed to kill tmux session %s: %w", name, err)
	}
	return nil
}

// ListSessions returns the names of all active tmux sessions. A tmux
// server with no sessions is not an error.
func (c *DefaultClient) ListSessions() ([]string, error) {
	out, err := exec.Command("tmux", "ls", "-F", "#{session_name}").Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == 1 {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list tmux sessions: %w", err)
	}

	var names []string
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			names = append(names, line)
		}
	}
	return names, nil
}

// SendText types text into the session followed by Enter.
func (c *DefaultClient) SendText(name, text string) error {
	if !c.SessionExists(name) {
		return ErrSessionNotFound
	}
	if err := exec.Command("tmux", "send-keys", "-t", name, text, "Enter").Run(); err != nil {
		return fmt.Errorf("failed to send text to session %s: %w", name, err)
	}
	return nil
}

// CapturePane returns the last lines of the session's pane.
func (c *DefaultClient) CapturePane(name string, lines int) (string, error) {
	if lines <= 0 {
		lines = 200
	}
	out, err := exec.Command("tmux", "capture-pane", "-p", "-t", name, "-S", fmt.Sprintf("-%d", lines)).Output()
	if err != nil {
		return "", fmt.Errorf("failed to capture pane for session %s: %w", name, err)
	}
	return string(out), nil
}

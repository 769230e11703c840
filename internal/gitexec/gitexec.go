// Package gitexec wraps the git CLI for project bookkeeping. Commands
// run against a project directory and failures carry the raw git output
// so callers can report what actually happened.
package gitexec

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Runner executes a git command in a directory and returns its combined
// output. Implementations must return a non-nil error when git exits
// non-zero; the output is returned either way.
type Runner interface {
	Run(ctx context.Context, dir string, args ...string) (string, error)
}

// CLIRunner runs git via the local git binary.
type CLIRunner struct{}

// Run executes git with the given arguments in dir.
func (CLIRunner) Run(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	output := string(out)
	if err != nil {
		return output, fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(output))
	}
	return output, nil
}

// Halt classifies a non-fatal stop in the commit-and-push sequence.
type Halt string

const (
	// HaltNone means the full sequence completed.
	HaltNone Halt = ""
	// HaltNothingToCommit means the worktree was clean; no commit was
	// created and the push was skipped.
	HaltNothingToCommit Halt = "nothing_to_commit"
	// HaltPushFailed means the commit landed locally but the push did
	// not reach a remote.
	HaltPushFailed Halt = "push_failed"
)

// Outcome reports how far a commit-and-push sequence got.
type Outcome struct {
	Committed  bool
	Pushed     bool
	Halt       Halt
	Diagnostic string
}

// Executor runs the project git sequences.
type Executor struct {
	run     Runner
	branch  string
	timeout time.Duration
	logger  zerolog.Logger
}

// New creates an executor that pushes to the given branch. A timeout
// of zero leaves git sequences unbounded.
func New(run Runner, branch string, timeout time.Duration, logger zerolog.Logger) *Executor {
	if branch == "" {
		branch = "main"
	}
	return &Executor{
		run:     run,
		branch:  branch,
		timeout: timeout,
		logger:  logger.With().Str("component", "gitexec").Logger(),
	}
}

// opCtx bounds one git sequence with the configured timeout.
func (e *Executor) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.timeout > 0 {
		return context.WithTimeout(ctx, e.timeout)
	}
	return ctx, func() {}
}

// Branch returns the branch the executor pushes to.
func (e *Executor) Branch() string {
	return e.branch
}

// StageMessage is the commit message recorded when a project completes
// a workflow stage.
func StageMessage(label, stage string) string {
	return fmt.Sprintf("[%s] Complete %s phase", label, stage)
}

// CommitStage stages everything in dir, commits it with the stage
// completion message, and pushes. A directory that is not yet a
// repository is initialized first. A clean worktree and a failed push
// are reported through the Outcome, not as errors; only git failures
// that leave local state unrecorded return an error.
func (e *Executor) CommitStage(ctx context.Context, dir, label, stage string) (Outcome, error) {
	ctx, cancel := e.opCtx(ctx)
	defer cancel()

	if _, err := e.run.Run(ctx, dir, "rev-parse", "--git-dir"); err != nil {
		e.logger.Info().Str("project", label).Msg("project directory is not a repository, initializing")
		if err := e.Init(ctx, dir); err != nil {
			return Outcome{}, err
		}
	}

	if _, err := e.run.Run(ctx, dir, "add", "-A"); err != nil {
		return Outcome{}, fmt.Errorf("failed to stage changes: %w", err)
	}

	out, err := e.run.Run(ctx, dir, "commit", "-m", StageMessage(label, stage))
	if err != nil {
		if isNothingToCommit(out) {
			e.logger.Info().Str("project", label).Str("stage", stage).Msg("nothing to commit, skipping push")
			return Outcome{Halt: HaltNothingToCommit, Diagnostic: strings.TrimSpace(out)}, nil
		}
		return Outcome{}, fmt.Errorf("failed to commit: %w", err)
	}

	return e.push(ctx, dir, label, Outcome{Committed: true}), nil
}

// push attempts to push the current branch, folding failure into the
// outcome. The commit already exists locally at this point.
func (e *Executor) push(ctx context.Context, dir, label string, o Outcome) Outcome {
	if _, err := e.run.Run(ctx, dir, "remote", "get-url", "origin"); err != nil {
		e.logger.Warn().Str("project", label).Msg("no origin remote, skipping push")
		o.Halt = HaltPushFailed
		o.Diagnostic = "no origin remote configured"
		return o
	}

	if out, err := e.run.Run(ctx, dir, "push", "origin", e.branch); err != nil {
		e.logger.Warn().Str("project", label).Err(err).Msg("push failed, commit is local only")
		o.Halt = HaltPushFailed
		o.Diagnostic = strings.TrimSpace(out)
		return o
	}

	o.Pushed = true
	return o
}

// isNothingToCommit matches git's clean-worktree commit refusal across
// locales that keep the stock English strings and both phrasing
// variants git uses.
func isNothingToCommit(out string) bool {
	lower := strings.ToLower(out)
	return strings.Contains(lower, "nothing to commit") ||
		strings.Contains(lower, "nothing added to commit")
}

// Init creates a repository in dir with the executor's branch checked
// out. Used when a project graduates to a development workspace.
func (e *Executor) Init(ctx context.Context, dir string) error {
	ctx, cancel := e.opCtx(ctx)
	defer cancel()

	if _, err := e.run.Run(ctx, dir, "init"); err != nil {
		return fmt.Errorf("failed to init repository: %w", err)
	}
	if _, err := e.run.Run(ctx, dir, "branch", "-M", e.branch); err != nil {
		return fmt.Errorf("failed to set branch %s: %w", e.branch, err)
	}
	return nil
}

// SetRemote points origin at url, replacing any existing origin.
func (e *Executor) SetRemote(ctx context.Context, dir, url string) error {
	ctx, cancel := e.opCtx(ctx)
	defer cancel()

	if _, err := e.run.Run(ctx, dir, "remote", "add", "origin", url); err == nil {
		return nil
	}
	// origin may already exist from an earlier attempt
	if _, err := e.run.Run(ctx, dir, "remote", "remove", "origin"); err != nil {
		return fmt.Errorf("failed to remove stale origin: %w", err)
	}
	if _, err := e.run.Run(ctx, dir, "remote", "add", "origin", url); err != nil {
		return fmt.Errorf("failed to add origin: %w", err)
	}
	return nil
}

// CommitAll stages and commits everything in dir with the given message.
func (e *Executor) CommitAll(ctx context.Context, dir, message string) error {
	ctx, cancel := e.opCtx(ctx)
	defer cancel()

	if _, err := e.run.Run(ctx, dir, "add", "-A"); err != nil {
		return fmt.Errorf("failed to stage changes: %w", err)
	}
	if out, err := e.run.Run(ctx, dir, "commit", "-m", message); err != nil {
		if isNothingToCommit(out) {
			return nil
		}
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// PushUpstream pushes the executor's branch and sets it as upstream.
// The diagnostic carries git's output when the push fails.
func (e *Executor) PushUpstream(ctx context.Context, dir string) (string, error) {
	ctx, cancel := e.opCtx(ctx)
	defer cancel()

	out, err := e.run.Run(ctx, dir, "push", "-u", "origin", e.branch)
	if err != nil {
		return strings.TrimSpace(out), err
	}
	return "", nil
}

package workflow

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/rs/zerolog"

	"github.com/akd-tools/sdd-bridge/internal/gitexec"
	"github.com/akd-tools/sdd-bridge/internal/prompts"
	"github.com/akd-tools/sdd-bridge/internal/provision"
)

var (
	// ErrWrongStage is returned when an advance is requested from a
	// thread that is not the project's current stage thread, or when the
	// project is already in development.
	ErrWrongStage = errors.New("project is not at this stage")
	// ErrChannelMissing is returned when the next stage's channel does
	// not exist in the workspace.
	ErrChannelMissing = errors.New("stage channel not found")
	// ErrProjectExists is returned when starting a project whose
	// directory is already present.
	ErrProjectExists = errors.New("project already exists")
)

// projectNameRe is deliberately strict: the name becomes a directory,
// a tmux session component, and a GitHub repository name.
var projectNameRe = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)

// ValidateProjectName rejects names that cannot safely become
// directories and repository names.
func ValidateProjectName(name string) error {
	if name == "" {
		return fmt.Errorf("project name is empty")
	}
	if len(name) > 50 {
		return fmt.Errorf("project name %q exceeds 50 characters", name)
	}
	if !projectNameRe.MatchString(name) {
		return fmt.Errorf("project name %q must be lowercase letters, digits, and hyphens", name)
	}
	return nil
}

// ChatPlatform is the messaging surface the engine drives: finding
// stage channels, opening project threads in them, and posting.
type ChatPlatform interface {
	FindStageChannel(ctx context.Context, name string) (string, error)
	CreateThread(ctx context.Context, channelID, title string) (string, error)
	Send(ctx context.Context, channelID, threadTS, text string) error
}

// Sessions is the part of the session controller the engine uses.
type Sessions interface {
	Ensure(ctx context.Context, contextID, dir string) (int, bool, error)
	Deliver(contextID, text string) error
}

// RepoProvisioner builds the development workspace for a project.
type RepoProvisioner interface {
	Provision(ctx context.Context, project string) (provision.Result, error)
}

// ContextID is the canonical conversation context key.
func ContextID(channelID, threadTS string) string {
	return channelID + ":" + threadTS
}

// AdvanceResult reports a completed stage transition.
type AdvanceResult struct {
	Project      string            `json:"project"`
	From         Stage             `json:"from"`
	To           Stage             `json:"to"`
	Git          gitexec.Outcome   `json:"git"`
	ChannelID    string            `json:"channel_id"`
	ThreadTS     string            `json:"thread_ts"`
	Provisioning *provision.Result `json:"provisioning,omitempty"`
}

// Engine owns stage transitions. Transitions for the same project are
// serialized; the binding write that records the new stage is the last
// step, so a failure anywhere earlier leaves the project where it was.
type Engine struct {
	bindings    *Bindings
	git         *gitexec.Executor
	chat        ChatPlatform
	sessions    Sessions
	provisioner RepoProvisioner
	lib         *prompts.Library
	projectsDir string
	devDir      string
	logger      zerolog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewEngine creates the engine.
func NewEngine(bindings *Bindings, git *gitexec.Executor, chat ChatPlatform, sessions Sessions, prov RepoProvisioner, lib *prompts.Library, projectsDir, devDir string, logger zerolog.Logger) *Engine {
	return &Engine{
		bindings:    bindings,
		git:         git,
		chat:        chat,
		sessions:    sessions,
		provisioner: prov,
		lib:         lib,
		projectsDir: projectsDir,
		devDir:      devDir,
		logger:      logger.With().Str("component", "workflow").Logger(),
		locks:       make(map[string]*sync.Mutex),
	}
}

func (e *Engine) lockFor(project string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[project]
	if !ok {
		l = &sync.Mutex{}
		e.locks[project] = l
	}
	return l
}

// ProjectDir returns the working directory for a project's stage work.
func (e *Engine) ProjectDir(project string) string {
	return filepath.Join(e.projectsDir, project)
}

// WorkDir returns the directory a session bound to contextID should run
// in: the development workspace once the project is in development, the
// project directory otherwise.
func (e *Engine) WorkDir(contextID string) (string, error) {
	bd, err := e.bindings.Lookup(contextID)
	if err != nil {
		return "", err
	}
	if bd.Stage == StageDevelopment {
		return filepath.Join(e.devDir, bd.Project), nil
	}
	return e.ProjectDir(bd.Project), nil
}

// StartProject creates the project directory, opens its thread in the
// idea channel, and briefs a fresh session with the idea prompt.
func (e *Engine) StartProject(ctx context.Context, name, description string) (AdvanceResult, error) {
	if err := ValidateProjectName(name); err != nil {
		return AdvanceResult{}, err
	}

	l := e.lockFor(name)
	l.Lock()
	defer l.Unlock()

	if _, err := e.bindings.CurrentStage(name); err == nil {
		return AdvanceResult{}, fmt.Errorf("%w: %s", ErrProjectExists, name)
	}

	dir := e.ProjectDir(name)
	if _, err := os.Stat(dir); err == nil {
		return AdvanceResult{}, fmt.Errorf("%w: %s", ErrProjectExists, dir)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return AdvanceResult{}, fmt.Errorf("failed to create project directory: %w", err)
	}

	res, err := e.enterStage(ctx, name, dir, StageIdea, prompts.Data{Project: name, Dir: dir, Description: description})
	if err != nil {
		// nothing was bound yet, so remove the directory to keep the
		// start retryable
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			e.logger.Warn().Str("project", name).Err(rmErr).Msg("failed to clean up project directory after aborted start")
		}
		return AdvanceResult{}, err
	}
	res.Project = name
	res.To = StageIdea
	e.logger.Info().Str("project", name).Msg("project started")
	return res, nil
}

// Advance moves the project bound to contextID to its next stage. The
// caller's thread must be the project's current stage thread. Stage
// work is committed and pushed first; a clean worktree or failed push
// degrades the result but does not block the advance.
func (e *Engine) Advance(ctx context.Context, contextID string) (AdvanceResult, error) {
	bd, err := e.bindings.Lookup(contextID)
	if err != nil {
		return AdvanceResult{}, err
	}

	l := e.lockFor(bd.Project)
	l.Lock()
	defer l.Unlock()

	current, err := e.bindings.CurrentStage(bd.Project)
	if err != nil {
		return AdvanceResult{}, err
	}
	if current != bd.Stage {
		return AdvanceResult{}, fmt.Errorf("%w: %s is at %s, this thread is %s", ErrWrongStage, bd.Project, current, bd.Stage)
	}
	next, ok := bd.Stage.Next()
	if !ok {
		return AdvanceResult{}, fmt.Errorf("%w: %s is already in development", ErrWrongStage, bd.Project)
	}

	dir := e.ProjectDir(bd.Project)
	gitOut, err := e.git.CommitStage(ctx, dir, bd.Project, string(bd.Stage))
	if err != nil {
		return AdvanceResult{}, fmt.Errorf("stage work could not be recorded: %w", err)
	}

	workDir := dir
	var provRes *provision.Result
	if next == StageDevelopment {
		res, err := e.provisioner.Provision(ctx, bd.Project)
		if err != nil {
			return AdvanceResult{}, err
		}
		provRes = &res
		workDir = res.Dir
	}

	data := prompts.Data{Project: bd.Project, Dir: workDir}
	if provRes != nil {
		data.RepoURL = provRes.RepoURL
	}
	res, err := e.enterStage(ctx, bd.Project, workDir, next, data)
	if err != nil {
		return AdvanceResult{}, err
	}
	res.Project = bd.Project
	res.From = bd.Stage
	res.To = next
	res.Git = gitOut
	res.Provisioning = provRes

	e.logger.Info().
		Str("project", bd.Project).
		Str("from", string(bd.Stage)).
		Str("to", string(next)).
		Bool("pushed", gitOut.Pushed).
		Msg("stage advanced")
	return res, nil
}

// enterStage opens the project's thread in the stage channel, briefs a
// session there, and records the binding. The binding write is last on
// purpose: everything before it can fail without moving the project.
func (e *Engine) enterStage(ctx context.Context, project, dir string, stage Stage, data prompts.Data) (AdvanceResult, error) {
	channelID, err := e.chat.FindStageChannel(ctx, stage.Channel())
	if err != nil {
		return AdvanceResult{}, fmt.Errorf("%w: #%s: %v", ErrChannelMissing, stage.Channel(), err)
	}

	threadTS, err := e.chat.CreateThread(ctx, channelID, project)
	if err != nil {
		return AdvanceResult{}, fmt.Errorf("failed to open %s thread: %w", stage, err)
	}
	contextID := ContextID(channelID, threadTS)

	if _, _, err := e.sessions.Ensure(ctx, contextID, dir); err != nil {
		return AdvanceResult{}, err
	}

	prompt, err := e.lib.Render(string(stage), data)
	if err != nil {
		return AdvanceResult{}, err
	}
	if err := e.sessions.Deliver(contextID, prompt); err != nil {
		// the session exists and the thread is open; the briefing can be
		// retyped by hand, so this does not abort the transition
		e.logger.Warn().Str("project", project).Str("stage", string(stage)).Err(err).Msg("failed to deliver stage prompt")
	}

	if err := e.bindings.Bind(contextID, project, stage); err != nil {
		return AdvanceResult{}, err
	}
	return AdvanceResult{ChannelID: channelID, ThreadTS: threadTS}, nil
}

// Adopt binds an existing thread to a running project at its current
// stage, so replies in that thread reach the project's session.
func (e *Engine) Adopt(contextID, project string) (Stage, error) {
	stage, err := e.bindings.CurrentStage(project)
	if err != nil {
		return "", err
	}
	if err := e.bindings.Bind(contextID, project, stage); err != nil {
		return "", err
	}
	return stage, nil
}

// Status reports each project and the stage it is at.
func (e *Engine) Status() (map[string]Stage, error) {
	return e.bindings.Projects()
}

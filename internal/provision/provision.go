// Package provision graduates a project into a standalone development
// workspace: the stage documents are copied into a fresh repository,
// a remote is created for it, and the initial commit is pushed.
package provision

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/akd-tools/sdd-bridge/internal/gitexec"
	"github.com/akd-tools/sdd-bridge/internal/github"
)

// ErrWorkspaceExists is returned when the development directory is
// already present. Provisioning never overwrites; the conflict has to
// be resolved by hand.
var ErrWorkspaceExists = errors.New("development workspace already exists")

// Result reports what provisioning produced. A failed initial push is
// not fatal; it is surfaced here so callers can warn.
type Result struct {
	Dir            string `json:"dir"`
	RepoURL        string `json:"repo_url"`
	RepoExisted    bool   `json:"repo_existed"`
	Pushed         bool   `json:"pushed"`
	PushDiagnostic string `json:"push_diagnostic,omitempty"`
}

// Provisioner builds development workspaces.
type Provisioner struct {
	git         *gitexec.Executor
	repos       github.RepoService
	projectsDir string
	devDir      string
	templateDir string // optional scaffold (CI workflows etc.) copied into every workspace
	timeout     time.Duration
	logger      zerolog.Logger
}

// New creates a provisioner. templateDir may be empty; a zero timeout
// leaves the caller's context unbounded.
func New(git *gitexec.Executor, repos github.RepoService, projectsDir, devDir, templateDir string, timeout time.Duration, logger zerolog.Logger) *Provisioner {
	return &Provisioner{
		git:         git,
		repos:       repos,
		projectsDir: projectsDir,
		devDir:      devDir,
		templateDir: templateDir,
		timeout:     timeout,
		logger:      logger.With().Str("component", "provision").Logger(),
	}
}

// Provision copies the project's documents into a new workspace under
// the development directory, initializes a repository there, creates
// the remote, and pushes the initial commit.
func (p *Provisioner) Provision(ctx context.Context, project string) (Result, error) {
	if p.repos == nil {
		return Result{}, errors.New("no repository host configured, set GITHUB_TOKEN")
	}
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	src := filepath.Join(p.projectsDir, project)
	if _, err := os.Stat(src); err != nil {
		return Result{}, fmt.Errorf("project directory %s not found: %w", src, err)
	}

	dst := filepath.Join(p.devDir, project)
	if _, err := os.Stat(dst); err == nil {
		return Result{}, fmt.Errorf("%w: %s", ErrWorkspaceExists, dst)
	}

	if err := copyTree(src, dst); err != nil {
		return Result{}, fmt.Errorf("failed to copy project into workspace: %w", err)
	}
	if p.templateDir != "" {
		if err := copyTree(p.templateDir, dst); err != nil {
			return Result{}, fmt.Errorf("failed to copy workspace scaffold: %w", err)
		}
	}

	if err := p.git.Init(ctx, dst); err != nil {
		return Result{}, err
	}

	url, existed, err := p.repos.EnsureRepo(ctx, project)
	if err != nil {
		return Result{}, err
	}
	if err := p.git.SetRemote(ctx, dst, url); err != nil {
		return Result{}, err
	}
	if err := p.git.CommitAll(ctx, dst, "Initial commit"); err != nil {
		return Result{}, err
	}

	res := Result{Dir: dst, RepoURL: url, RepoExisted: existed, Pushed: true}
	if diag, err := p.git.PushUpstream(ctx, dst); err != nil {
		p.logger.Warn().Str("project", project).Err(err).Msg("initial push failed, workspace is local only")
		res.Pushed = false
		res.PushDiagnostic = diag
	}

	p.logger.Info().Str("project", project).Str("dir", dst).Str("repo", url).Msg("workspace provisioned")
	return res, nil
}

// copyTree copies a directory recursively, skipping .git directories.
// Existing files in dst are overwritten.
func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" && rel != "." {
				return filepath.SkipDir
			}
			return os.MkdirAll(filepath.Join(dst, rel), 0o755)
		}
		return copyFile(path, filepath.Join(dst, rel))
	})
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

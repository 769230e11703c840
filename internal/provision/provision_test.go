package provision

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akd-tools/sdd-bridge/internal/gitexec"
)

// fakeGit records git invocations instead of running them.
type fakeGit struct {
	calls    []string
	pushErr  error
	pushDiag string
}

func (f *fakeGit) Run(_ context.Context, dir string, args ...string) (string, error) {
	key := strings.Join(args, " ")
	f.calls = append(f.calls, key)
	if strings.HasPrefix(key, "push") && f.pushErr != nil {
		return f.pushDiag, f.pushErr
	}
	return "", nil
}

// fakeRepos scripts the remote repository API.
type fakeRepos struct {
	existed bool
	err     error
	created []string
}

func (f *fakeRepos) EnsureRepo(_ context.Context, name string) (string, bool, error) {
	if f.err != nil {
		return "", false, f.err
	}
	f.created = append(f.created, name)
	return "https://github.com/u/" + name + ".git", f.existed, nil
}

func setupProvisioner(t *testing.T, git *fakeGit, repos *fakeRepos) (*Provisioner, string, string) {
	t.Helper()
	root := t.TempDir()
	projectsDir := filepath.Join(root, "projects")
	devDir := filepath.Join(root, "dev")
	require.NoError(t, os.MkdirAll(filepath.Join(projectsDir, "todo-app"), 0o755))
	require.NoError(t, os.MkdirAll(devDir, 0o755))
	for _, doc := range []string{"idea.md", "requirements.md", "design.md", "tasks.md"} {
		require.NoError(t, os.WriteFile(filepath.Join(projectsDir, "todo-app", doc), []byte("# "+doc+"\n"), 0o644))
	}

	exec := gitexec.New(git, "main", 0, zerolog.Nop())
	return New(exec, repos, projectsDir, devDir, "", 0, zerolog.Nop()), projectsDir, devDir
}

func TestProvisionSuccess(t *testing.T) {
	git := &fakeGit{}
	repos := &fakeRepos{}
	p, _, devDir := setupProvisioner(t, git, repos)

	res, err := p.Provision(context.Background(), "todo-app")
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(devDir, "todo-app"), res.Dir)
	assert.Equal(t, "https://github.com/u/todo-app.git", res.RepoURL)
	assert.False(t, res.RepoExisted)
	assert.True(t, res.Pushed)

	// documents made it into the workspace
	data, err := os.ReadFile(filepath.Join(res.Dir, "tasks.md"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "tasks.md")

	assert.Equal(t, []string{
		"init",
		"branch -M main",
		"remote add origin https://github.com/u/todo-app.git",
		"add -A",
		"commit -m Initial commit",
		"push -u origin main",
	}, git.calls)
	assert.Equal(t, []string{"todo-app"}, repos.created)
}

func TestProvisionWorkspaceExists(t *testing.T) {
	git := &fakeGit{}
	repos := &fakeRepos{}
	p, _, devDir := setupProvisioner(t, git, repos)
	require.NoError(t, os.MkdirAll(filepath.Join(devDir, "todo-app"), 0o755))

	_, err := p.Provision(context.Background(), "todo-app")
	assert.ErrorIs(t, err, ErrWorkspaceExists)
	assert.Empty(t, git.calls, "no git commands may run on a conflict")
	assert.Empty(t, repos.created)
}

func TestProvisionMissingProject(t *testing.T) {
	git := &fakeGit{}
	p, _, _ := setupProvisioner(t, git, &fakeRepos{})

	_, err := p.Provision(context.Background(), "no-such-project")
	assert.Error(t, err)
}

func TestProvisionRemoteAlreadyExists(t *testing.T) {
	git := &fakeGit{}
	repos := &fakeRepos{existed: true}
	p, _, _ := setupProvisioner(t, git, repos)

	res, err := p.Provision(context.Background(), "todo-app")
	require.NoError(t, err)
	assert.True(t, res.RepoExisted)
	assert.Contains(t, git.calls, "remote add origin https://github.com/u/todo-app.git")
}

func TestProvisionPushFailureTolerated(t *testing.T) {
	git := &fakeGit{pushErr: fmt.Errorf("exit status 128"), pushDiag: "fatal: could not read from remote"}
	repos := &fakeRepos{}
	p, _, _ := setupProvisioner(t, git, repos)

	res, err := p.Provision(context.Background(), "todo-app")
	require.NoError(t, err)
	assert.False(t, res.Pushed)
	assert.Contains(t, res.PushDiagnostic, "could not read from remote")
}

func TestProvisionRepoCreationFails(t *testing.T) {
	git := &fakeGit{}
	repos := &fakeRepos{err: fmt.Errorf("api unavailable")}
	p, _, _ := setupProvisioner(t, git, repos)

	_, err := p.Provision(context.Background(), "todo-app")
	assert.Error(t, err)
}

func TestProvisionCopiesTemplateDir(t *testing.T) {
	git := &fakeGit{}
	repos := &fakeRepos{}
	p, _, devDir := setupProvisioner(t, git, repos)

	tmpl := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(tmpl, ".github", "workflows"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(tmpl, ".github", "workflows", "ci.yml"), []byte("on: push\n"), 0o644))
	p.templateDir = tmpl

	res, err := p.Provision(context.Background(), "todo-app")
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(devDir, "todo-app", ".github", "workflows", "ci.yml"))
	assert.NoError(t, err)
	assert.Equal(t, filepath.Join(devDir, "todo-app"), res.Dir)
}

type deadlineGit struct {
	fakeGit
	sawDeadline bool
}

func (d *deadlineGit) Run(ctx context.Context, dir string, args ...string) (string, error) {
	if _, ok := ctx.Deadline(); ok {
		d.sawDeadline = true
	}
	return d.fakeGit.Run(ctx, dir, args...)
}

func TestProvisionTimeoutBoundsWork(t *testing.T) {
	git := &deadlineGit{}
	repos := &fakeRepos{}
	root := t.TempDir()
	projectsDir := filepath.Join(root, "projects")
	devDir := filepath.Join(root, "dev")
	require.NoError(t, os.MkdirAll(filepath.Join(projectsDir, "todo-app"), 0o755))
	require.NoError(t, os.MkdirAll(devDir, 0o755))

	exec := gitexec.New(git, "main", 0, zerolog.Nop())
	p := New(exec, repos, projectsDir, devDir, "", 30*time.Second, zerolog.Nop())

	_, err := p.Provision(context.Background(), "todo-app")
	require.NoError(t, err)
	assert.True(t, git.sawDeadline)
}

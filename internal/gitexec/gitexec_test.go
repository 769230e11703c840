package gitexec

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRunner scripts git responses by subcommand.
type fakeRunner struct {
	calls     []string
	responses map[string]fakeResponse
}

type fakeResponse struct {
	out string
	err error
}

func (f *fakeRunner) Run(_ context.Context, _ string, args ...string) (string, error) {
	key := strings.Join(args, " ")
	f.calls = append(f.calls, key)
	for prefix, resp := range f.responses {
		if strings.HasPrefix(key, prefix) {
			return resp.out, resp.err
		}
	}
	return "", nil
}

func newExecutor(r Runner) *Executor {
	return New(r, "main", 0, zerolog.Nop())
}

func TestCommitStageFullSequence(t *testing.T) {
	f := &fakeRunner{responses: map[string]fakeResponse{}}
	e := newExecutor(f)

	out, err := e.CommitStage(context.Background(), "/p/todo-app", "todo-app", "idea")
	require.NoError(t, err)
	assert.True(t, out.Committed)
	assert.True(t, out.Pushed)
	assert.Equal(t, HaltNone, out.Halt)

	require.Len(t, f.calls, 5)
	assert.Equal(t, "rev-parse --git-dir", f.calls[0])
	assert.Equal(t, "add -A", f.calls[1])
	assert.Equal(t, `commit -m [todo-app] Complete idea phase`, f.calls[2])
	assert.Equal(t, "remote get-url origin", f.calls[3])
	assert.Equal(t, "push origin main", f.calls[4])
}

func TestCommitStageInitsMissingRepo(t *testing.T) {
	f := &fakeRunner{responses: map[string]fakeResponse{
		"rev-parse": {err: fmt.Errorf("fatal: not a git repository")},
	}}
	e := newExecutor(f)

	out, err := e.CommitStage(context.Background(), "/p/todo-app", "todo-app", "idea")
	require.NoError(t, err)
	assert.True(t, out.Committed)

	require.GreaterOrEqual(t, len(f.calls), 4)
	assert.Equal(t, "rev-parse --git-dir", f.calls[0])
	assert.Equal(t, "init", f.calls[1])
	assert.Equal(t, "branch -M main", f.calls[2])
	assert.Equal(t, "add -A", f.calls[3])
}

func TestCommitStageInitFailureIsFatal(t *testing.T) {
	f := &fakeRunner{responses: map[string]fakeResponse{
		"rev-parse": {err: fmt.Errorf("fatal: not a git repository")},
		"init":      {err: fmt.Errorf("fatal: cannot mkdir .git")},
	}}
	e := newExecutor(f)

	_, err := e.CommitStage(context.Background(), "/p/todo-app", "todo-app", "idea")
	assert.Error(t, err)
}

func TestCommitStageNothingToCommit(t *testing.T) {
	f := &fakeRunner{responses: map[string]fakeResponse{
		"commit": {out: "On branch main\nnothing to commit, working tree clean\n", err: fmt.Errorf("exit status 1")},
	}}
	e := newExecutor(f)

	out, err := e.CommitStage(context.Background(), "/p/todo-app", "todo-app", "design")
	require.NoError(t, err)
	assert.False(t, out.Committed)
	assert.Equal(t, HaltNothingToCommit, out.Halt)

	for _, call := range f.calls {
		assert.NotContains(t, call, "push", "push must be skipped on a clean worktree")
	}
}

func TestCommitStageNoRemote(t *testing.T) {
	f := &fakeRunner{responses: map[string]fakeResponse{
		"remote get-url": {err: fmt.Errorf("exit status 2")},
	}}
	e := newExecutor(f)

	out, err := e.CommitStage(context.Background(), "/p/todo-app", "todo-app", "requirements")
	require.NoError(t, err)
	assert.True(t, out.Committed)
	assert.False(t, out.Pushed)
	assert.Equal(t, HaltPushFailed, out.Halt)
	assert.Contains(t, out.Diagnostic, "no origin remote")
}

func TestCommitStagePushFailed(t *testing.T) {
	f := &fakeRunner{responses: map[string]fakeResponse{
		"push": {out: "fatal: unable to access remote", err: fmt.Errorf("exit status 128")},
	}}
	e := newExecutor(f)

	out, err := e.CommitStage(context.Background(), "/p/todo-app", "todo-app", "tasks")
	require.NoError(t, err)
	assert.True(t, out.Committed)
	assert.False(t, out.Pushed)
	assert.Equal(t, HaltPushFailed, out.Halt)
	assert.Contains(t, out.Diagnostic, "unable to access remote")
}

func TestCommitStageAddFails(t *testing.T) {
	f := &fakeRunner{responses: map[string]fakeResponse{
		"add": {err: fmt.Errorf("fatal: not a git repository")},
	}}
	e := newExecutor(f)

	_, err := e.CommitStage(context.Background(), "/p/todo-app", "todo-app", "idea")
	assert.Error(t, err)
}

func TestCommitStageCommitFailsFatally(t *testing.T) {
	f := &fakeRunner{responses: map[string]fakeResponse{
		"commit": {out: "fatal: unable to write new index file", err: fmt.Errorf("exit status 128")},
	}}
	e := newExecutor(f)

	_, err := e.CommitStage(context.Background(), "/p/todo-app", "todo-app", "idea")
	assert.Error(t, err)
}

func TestInit(t *testing.T) {
	f := &fakeRunner{responses: map[string]fakeResponse{}}
	e := newExecutor(f)

	require.NoError(t, e.Init(context.Background(), "/dev/todo-app"))
	assert.Equal(t, []string{"init", "branch -M main"}, f.calls)
}

func TestSetRemoteReplacesExisting(t *testing.T) {
	addFails := true
	f := &fakeRunner{responses: map[string]fakeResponse{}}
	f.responses["remote add"] = fakeResponse{}
	e := newExecutor(&scriptedRunner{inner: f, onAdd: func() error {
		if addFails {
			addFails = false
			return fmt.Errorf("error: remote origin already exists")
		}
		return nil
	}})

	err := e.SetRemote(context.Background(), "/dev/todo-app", "https://github.com/u/todo-app.git")
	require.NoError(t, err)
	assert.Contains(t, f.calls, "remote remove origin")
}

// scriptedRunner lets a test fail the first "remote add" only.
type scriptedRunner struct {
	inner *fakeRunner
	onAdd func() error
}

func (s *scriptedRunner) Run(ctx context.Context, dir string, args ...string) (string, error) {
	if len(args) >= 2 && args[0] == "remote" && args[1] == "add" {
		s.inner.calls = append(s.inner.calls, strings.Join(args, " "))
		if err := s.onAdd(); err != nil {
			return "", err
		}
		return "", nil
	}
	return s.inner.Run(ctx, dir, args...)
}

func TestCommitAllToleratesCleanTree(t *testing.T) {
	f := &fakeRunner{responses: map[string]fakeResponse{
		"commit": {out: "nothing to commit, working tree clean", err: fmt.Errorf("exit status 1")},
	}}
	e := newExecutor(f)

	assert.NoError(t, e.CommitAll(context.Background(), "/dev/todo-app", "Initial commit"))
}

func TestStageMessage(t *testing.T) {
	assert.Equal(t, "[todo-app] Complete idea phase", StageMessage("todo-app", "idea"))
}

type deadlineRunner struct {
	sawDeadline bool
}

func (d *deadlineRunner) Run(ctx context.Context, dir string, args ...string) (string, error) {
	if _, ok := ctx.Deadline(); ok {
		d.sawDeadline = true
	}
	return "", nil
}

func TestTimeoutBoundsCommands(t *testing.T) {
	d := &deadlineRunner{}
	e := New(d, "main", 30*time.Second, zerolog.Nop())

	_, err := e.CommitStage(context.Background(), "/p/todo-app", "todo-app", "idea")
	require.NoError(t, err)
	assert.True(t, d.sawDeadline)
}

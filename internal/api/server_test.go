package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akd-tools/sdd-bridge/internal/health"
	"github.com/akd-tools/sdd-bridge/internal/metrics"
	"github.com/akd-tools/sdd-bridge/internal/session"
	"github.com/akd-tools/sdd-bridge/internal/workflow"
)

type stubEngine struct {
	advErr error
}

func (s *stubEngine) StartProject(_ context.Context, name, _ string) (workflow.AdvanceResult, error) {
	if err := workflow.ValidateProjectName(name); err != nil {
		return workflow.AdvanceResult{}, err
	}
	return workflow.AdvanceResult{Project: name, To: workflow.StageIdea}, nil
}

func (s *stubEngine) Advance(_ context.Context, contextID string) (workflow.AdvanceResult, error) {
	if s.advErr != nil {
		return workflow.AdvanceResult{}, s.advErr
	}
	return workflow.AdvanceResult{Project: "todo-app", From: workflow.StageIdea, To: workflow.StageRequirements}, nil
}

func (s *stubEngine) Adopt(string, string) (workflow.Stage, error) { return workflow.StageIdea, nil }

func (s *stubEngine) Status() (map[string]workflow.Stage, error) {
	return map[string]workflow.Stage{"todo-app": workflow.StageIdea}, nil
}

func (s *stubEngine) WorkDir(string) (string, error) { return "", workflow.ErrNotBound }

type stubSessions struct{}

func (stubSessions) Ensure(context.Context, string, string) (int, bool, error) { return 1, true, nil }
func (stubSessions) Deliver(string, string) error                              { return nil }
func (stubSessions) Capture(string) (string, error)                            { return "", nil }
func (stubSessions) CollectResponse(context.Context, string, string) (string, error) {
	return "", nil
}
func (stubSessions) Kill(string) error { return nil }
func (stubSessions) List() ([]session.Status, error) {
	return []session.Status{{ContextID: "C1:1.0", SessionNum: 1, Name: "claude-session-1", Alive: true}}, nil
}

func setupServer(t *testing.T, cfg ServerConfig, eng *stubEngine) *Server {
	t.Helper()
	h := NewHandlers(eng, stubSessions{}, zerolog.Nop())
	checker := health.NewChecker(zerolog.Nop())
	return NewServer(cfg, h, checker, metrics.New(), zerolog.Nop())
}

func doJSON(t *testing.T, s *Server, method, path string, body any, headers map[string]string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := s.App().Test(req, -1)
	require.NoError(t, err)
	return resp
}

func TestHealthz(t *testing.T) {
	s := setupServer(t, ServerConfig{}, &stubEngine{})
	resp := doJSON(t, s, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestListSessions(t *testing.T) {
	s := setupServer(t, ServerConfig{}, &stubEngine{})
	resp := doJSON(t, s, http.MethodGet, "/api/v1/sessions", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(data), "claude-session-1")
}

func TestListProjects(t *testing.T) {
	s := setupServer(t, ServerConfig{}, &stubEngine{})
	resp := doJSON(t, s, http.MethodGet, "/api/v1/projects", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(data), "todo-app")
}

func TestStartProject(t *testing.T) {
	s := setupServer(t, ServerConfig{}, &stubEngine{})
	resp := doJSON(t, s, http.MethodPost, "/api/v1/projects", map[string]string{"name": "todo-app", "description": "x"}, nil)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestStartProjectInvalidName(t *testing.T) {
	s := setupServer(t, ServerConfig{}, &stubEngine{})
	resp := doJSON(t, s, http.MethodPost, "/api/v1/projects", map[string]string{"name": "Bad Name"}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAdvance(t *testing.T) {
	s := setupServer(t, ServerConfig{}, &stubEngine{})
	resp := doJSON(t, s, http.MethodPost, "/api/v1/advance", map[string]string{"context_id": "C1:1.0"}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(data), "requirements")
}

func TestAdvanceWrongStageConflict(t *testing.T) {
	eng := &stubEngine{advErr: fmt.Errorf("%w: stale thread", workflow.ErrWrongStage)}
	s := setupServer(t, ServerConfig{}, eng)
	resp := doJSON(t, s, http.MethodPost, "/api/v1/advance", map[string]string{"context_id": "C1:1.0"}, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestAdvanceUnboundNotFound(t *testing.T) {
	eng := &stubEngine{advErr: workflow.ErrNotBound}
	s := setupServer(t, ServerConfig{}, eng)
	resp := doJSON(t, s, http.MethodPost, "/api/v1/advance", map[string]string{"context_id": "C1:9.9"}, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSendMessage(t *testing.T) {
	s := setupServer(t, ServerConfig{}, &stubEngine{})
	resp := doJSON(t, s, http.MethodPost, "/api/v1/messages", map[string]string{"context_id": "C1:1.0", "text": "run the tests"}, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSendMessageMissingText(t *testing.T) {
	s := setupServer(t, ServerConfig{}, &stubEngine{})
	resp := doJSON(t, s, http.MethodPost, "/api/v1/messages", map[string]string{"context_id": "C1:1.0"}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPIKeyRequired(t *testing.T) {
	s := setupServer(t, ServerConfig{APIKey: "secret"}, &stubEngine{})

	resp := doJSON(t, s, http.MethodGet, "/api/v1/sessions", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = doJSON(t, s, http.MethodGet, "/api/v1/sessions", nil, map[string]string{"X-API-Key": "secret"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// probes stay open
	resp = doJSON(t, s, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	s := setupServer(t, ServerConfig{}, &stubEngine{})
	resp := doJSON(t, s, http.MethodGet, "/metrics", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

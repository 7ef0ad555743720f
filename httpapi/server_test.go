package httpapi

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agentrt/core/config"
	"github.com/agentrt/core/controller"
	"github.com/agentrt/core/interrupt"
	"github.com/agentrt/core/model/stubmodel"
	"github.com/agentrt/core/tools"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Server:  config.ServerConfig{ListenAddr: ":0"},
		Model:   config.ModelConfig{DefaultModel: "stub", DefaultMaxTokens: 1000},
		Tools:   config.ToolsConfig{CallDeadline: 1},
		Stream:  config.StreamConfig{BufferSize: 64, ChunkThresholdBytes: 1024},
		Session: config.SessionConfig{ModelWindow: 1000, MaxLoopCount: 10, TopKRelevant: 5},
	}
}

func TestHandleRunStreamsSSEFramesEndingInStreamEnd(t *testing.T) {
	client := stubmodel.New(
		stubmodel.Turn{Text: `{"deep_thinking":false,"multi_agent":false}`},
		stubmodel.Turn{Text: "Hi, how can I help?"},
	)
	reg := tools.NewRegistry()
	interrupts := interrupt.New()
	ctrl := controller.New(client, reg, interrupts, nil, nil)
	srv := New(testConfig(t), ctrl, interrupts, reg, nil)

	body := strings.NewReader(`{"messages":[{"role":"user","content":"Hello"}]}`)
	req := httptest.NewRequest(http.MethodPost, "/", body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	srv.httpServer.Handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "event: message")
	require.Contains(t, rec.Body.String(), "event: stream_end")
}

func TestHandleInterruptOnUnknownSessionReturns404(t *testing.T) {
	reg := tools.NewRegistry()
	interrupts := interrupt.New()
	client := stubmodel.New(stubmodel.Turn{Text: "ok"})
	ctrl := controller.New(client, reg, interrupts, nil, nil)
	srv := New(testConfig(t), ctrl, interrupts, reg, nil)

	req := httptest.NewRequest(http.MethodPost, "/sessions/does-not-exist/interrupt", nil)
	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleTasksOnUnknownSessionReturns404(t *testing.T) {
	reg := tools.NewRegistry()
	interrupts := interrupt.New()
	client := stubmodel.New(stubmodel.Turn{Text: "ok"})
	ctrl := controller.New(client, reg, interrupts, nil, nil)
	srv := New(testConfig(t), ctrl, interrupts, reg, nil)

	req := httptest.NewRequest(http.MethodGet, "/sessions/does-not-exist/tasks", nil)
	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleWorkspaceListOnUnknownSessionReturnsEmptyList(t *testing.T) {
	reg := tools.NewRegistry()
	interrupts := interrupt.New()
	client := stubmodel.New(stubmodel.Turn{Text: "ok"})
	ctrl := controller.New(client, reg, interrupts, nil, nil)
	cfg := testConfig(t)
	cfg.Tools.WorkspaceDir = t.TempDir()
	srv := New(cfg, ctrl, interrupts, reg, nil)

	req := httptest.NewRequest(http.MethodGet, "/sessions/unknown-session/workspace", nil)
	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"files":[]}`, rec.Body.String())
}

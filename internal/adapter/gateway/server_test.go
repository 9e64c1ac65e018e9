package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentmux/internal/adapter/runner"
	"agentmux/internal/domain"
	"agentmux/internal/infra/config"
	"agentmux/internal/usecase/multiplex"
)

type fakeProvider struct {
	name      string
	models    []string
	response  *domain.ChatResponse
	err       error
	deltas    []domain.StreamDelta
	readiness domain.Readiness
}

func (p *fakeProvider) Name() string                    { return p.name }
func (p *fakeProvider) DisplayName() string             { return "Fake " + p.name }
func (p *fakeProvider) Capabilities() domain.Capability { return domain.CapStreaming }
func (p *fakeProvider) DefaultModel() string            { return p.models[0] }
func (p *fakeProvider) AvailableModels() []string       { return p.models }

func (p *fakeProvider) Complete(_ context.Context, _ domain.ChatRequest) (*domain.ChatResponse, error) {
	return p.response, p.err
}

func (p *fakeProvider) CompleteStream(_ context.Context, _ domain.ChatRequest) (<-chan domain.StreamDelta, error) {
	if p.err != nil {
		return nil, p.err
	}
	ch := make(chan domain.StreamDelta, len(p.deltas))
	for _, d := range p.deltas {
		ch <- d
	}
	close(ch)
	return ch, nil
}

func (p *fakeProvider) HealthCheck(_ context.Context) (domain.Readiness, error) {
	return p.readiness, nil
}

func newTestServer(t *testing.T, providers ...domain.Provider) *httptest.Server {
	t.Helper()
	reg := runner.NewRegistry()
	for _, p := range providers {
		require.NoError(t, reg.Register(p))
	}
	logger := slog.Default()
	srv := NewServer(reg, multiplex.New(reg, logger), config.GatewayConfig{}, logger)
	ts := httptest.NewServer(srv.Handler(context.Background()))
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", strings.NewReader(string(payload)))
	require.NoError(t, err)
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

// --- Chat Completions Tests ---

func TestChatCompletionSuccess(t *testing.T) {
	provider := &fakeProvider{
		name:   "claude-code",
		models: []string{"opus"},
		response: &domain.ChatResponse{
			Content:      "hello there",
			FinishReason: "stop",
			Usage:        &domain.Usage{PromptTokens: 3, CompletionTokens: 2, TotalTokens: 5},
		},
	}
	ts := newTestServer(t, provider)

	resp := postJSON(t, ts.URL+"/v1/chat/completions", map[string]any{
		"model":    "claude-code/opus",
		"messages": []map[string]string{{"role": "user", "content": "hi"}},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody[chatCompletionResponse](t, resp)
	assert.True(t, strings.HasPrefix(body.ID, "chatcmpl-"))
	assert.Equal(t, "chat.completion", body.Object)
	require.Len(t, body.Choices, 1)
	assert.Equal(t, "hello there", body.Choices[0].Message.Content)
	assert.Equal(t, "assistant", body.Choices[0].Message.Role)
	assert.Equal(t, 5, body.Usage.TotalTokens)
}

func TestChatCompletionMissingModel(t *testing.T) {
	ts := newTestServer(t)

	resp := postJSON(t, ts.URL+"/v1/chat/completions", map[string]any{
		"messages": []map[string]string{{"role": "user", "content": "hi"}},
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	body := decodeBody[errorResponse](t, resp)
	assert.Equal(t, "invalid_request_error", body.Error.Type)
}

func TestChatCompletionUnknownProvider(t *testing.T) {
	ts := newTestServer(t)

	resp := postJSON(t, ts.URL+"/v1/chat/completions", map[string]any{
		"model":    "no-such-runner",
		"messages": []map[string]string{{"role": "user", "content": "hi"}},
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	body := decodeBody[errorResponse](t, resp)
	assert.Equal(t, string(domain.KindConfig), body.Error.Code)
}

func TestChatCompletionErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"timeout", domain.TimeoutError("p", "deadline exceeded"), http.StatusGatewayTimeout},
		{"external", domain.ExternalService("p", "exited with code 1"), http.StatusBadGateway},
		{"not found", domain.BinaryNotFound("p", "no binary"), http.StatusServiceUnavailable},
		{"auth", domain.AuthFailure("p", "not logged in"), http.StatusServiceUnavailable},
		{"internal", errors.New("plain error"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ts := newTestServer(t, &fakeProvider{
				name: "p", models: []string{"m"}, err: tc.err,
			})
			resp := postJSON(t, ts.URL+"/v1/chat/completions", map[string]any{
				"model":    "p",
				"messages": []map[string]string{{"role": "user", "content": "hi"}},
			})
			assert.Equal(t, tc.status, resp.StatusCode)
			resp.Body.Close()
		})
	}
}

func TestChatCompletionStreaming(t *testing.T) {
	provider := &fakeProvider{
		name:   "claude-code",
		models: []string{"opus"},
		deltas: []domain.StreamDelta{
			{Content: "hel"},
			{Content: "lo"},
			{Done: true, FinishReason: "stop"},
		},
	}
	ts := newTestServer(t, provider)

	resp := postJSON(t, ts.URL+"/v1/chat/completions", map[string]any{
		"model":    "claude-code",
		"stream":   true,
		"messages": []map[string]string{{"role": "user", "content": "hi"}},
	})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	body := string(raw)

	assert.Contains(t, body, `"content":"hel"`)
	assert.Contains(t, body, `"content":"lo"`)
	assert.Contains(t, body, `"finish_reason":"stop"`)
	assert.True(t, strings.HasSuffix(strings.TrimSpace(body), "data: [DONE]"))
}

// --- Models Tests ---

func TestModelsListsProvidersAndModels(t *testing.T) {
	ts := newTestServer(t,
		&fakeProvider{name: "claude-code", models: []string{"opus", "sonnet"}},
		&fakeProvider{name: "opencode", models: []string{"anthropic/claude-sonnet-4"}},
	)

	resp, err := http.Get(ts.URL + "/v1/models")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody[modelList](t, resp)
	ids := make([]string, 0, len(body.Data))
	for _, m := range body.Data {
		ids = append(ids, m.ID)
	}
	assert.Contains(t, ids, "claude-code")
	assert.Contains(t, ids, "claude-code/opus")
	assert.Contains(t, ids, "claude-code/sonnet")
	assert.Contains(t, ids, "opencode/anthropic/claude-sonnet-4")
}

// --- Health Tests ---

func TestHealthReportsPerProviderReadiness(t *testing.T) {
	ts := newTestServer(t,
		&fakeProvider{name: "ready", models: []string{"m"}, readiness: domain.ReadinessReady},
		&fakeProvider{name: "missing", models: []string{"m"}, readiness: domain.ReadinessNotFound},
	)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody[healthResponse](t, resp)
	assert.Equal(t, "ok", body.Status)
	require.Len(t, body.Providers, 2)
	assert.Equal(t, "ready", body.Providers[0].Readiness)
	assert.Equal(t, "not_found", body.Providers[1].Readiness)
}

func TestHealthDegradedWhenNoProviderReady(t *testing.T) {
	ts := newTestServer(t,
		&fakeProvider{name: "gone", models: []string{"m"}, readiness: domain.ReadinessNotFound},
	)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

// --- Multiplex Tests ---

func TestMultiplexOrderedResultsWithFailureIsolation(t *testing.T) {
	ts := newTestServer(t,
		&fakeProvider{name: "good", models: []string{"m"},
			response: &domain.ChatResponse{Content: "fine", FinishReason: "stop"}},
		&fakeProvider{name: "bad", models: []string{"m"},
			err: domain.ExternalService("bad", "exited with code 2")},
	)

	resp := postJSON(t, ts.URL+"/v1/multiplex", map[string]any{
		"messages": []map[string]string{{"role": "user", "content": "hi"}},
		"targets": []map[string]string{
			{"provider": "good", "model": "m"},
			{"provider": "bad", "model": "m"},
		},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody[multiplexResponse](t, resp)
	assert.True(t, strings.HasPrefix(body.ID, "mpx-"))
	require.Len(t, body.Results, 2)

	assert.Equal(t, "good", body.Results[0].Provider)
	require.NotNil(t, body.Results[0].Response)
	assert.Equal(t, "fine", body.Results[0].Response.Content)
	assert.Nil(t, body.Results[0].Error)

	assert.Equal(t, "bad", body.Results[1].Provider)
	assert.Nil(t, body.Results[1].Response)
	require.NotNil(t, body.Results[1].Error)
	assert.Equal(t, string(domain.KindExternalService), body.Results[1].Error.Code)
}

func TestMultiplexRejectsEmptyTargets(t *testing.T) {
	ts := newTestServer(t)

	resp := postJSON(t, ts.URL+"/v1/multiplex", map[string]any{
		"messages": []map[string]string{{"role": "user", "content": "hi"}},
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

package runner

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/trace"

	"agentmux/internal/domain"
	"agentmux/internal/infra/config"
	"agentmux/internal/infra/tracer"
)

const (
	cursorDefaultModel = "sonnet-4"
	cursorService      = "cursor-agent"
)

var cursorFallbackModels = []string{"sonnet-4", "gpt-5", "gemini-2.5-pro"}

var _ domain.Provider = (*CursorAgent)(nil)

// CursorAgent wraps the `cursor-agent` CLI with `--output-format json` and
// `--approve-mcps` for automatic MCP server approval. Shares the JSON
// envelope and session-resumption behavior with the claude runner.
type CursorAgent struct {
	exec      ExecConfig
	model     string
	extraArgs []string
	logger    *slog.Logger

	mu       sync.Mutex
	sessions map[string]string
}

// NewCursorAgent creates a cursor-agent runner from config.
func NewCursorAgent(cfg config.RunnerConfig, logger *slog.Logger) *CursorAgent {
	bin, err := ResolveBinary(TypeCursorAgent, cfg.BinaryPath)
	if err != nil {
		bin = TypeCursorAgent.BinaryName()
		logger.Warn("cursor-agent binary not found, deferring to health checks", "error", err)
	}
	model := cfg.Model
	if model == "" {
		model = cursorDefaultModel
	}
	return &CursorAgent{
		exec: ExecConfig{
			BinaryPath:       bin,
			Timeout:          cfg.Timeout,
			MaxOutputBytes:   cfg.MaxOutputBytes,
			AllowedEnvKeys:   cfg.AllowedEnvKeys,
			WorkingDirectory: cfg.WorkingDirectory,
		},
		model:     model,
		extraArgs: cfg.ExtraArgs,
		logger:    logger,
		sessions:  make(map[string]string),
	}
}

func (c *CursorAgent) Name() string { return cursorService }
func (c *CursorAgent) DisplayName() string { return "Cursor Agent CLI" }
func (c *CursorAgent) DefaultModel() string { return c.model }

func (c *CursorAgent) Capabilities() domain.Capability {
	return domain.CapStreaming
}

func (c *CursorAgent) AvailableModels() []string {
	return append([]string(nil), cursorFallbackModels...)
}

func (c *CursorAgent) resolveModel(requested string) string {
	if requested == "" {
		return c.model
	}
	return requested
}

func (c *CursorAgent) buildArgs(prompt, model, outputFormat string) []string {
	args := []string{
		"-p", prompt,
		"--output-format", outputFormat,
		"--approve-mcps",
		"--model", model,
	}
	return append(args, c.extraArgs...)
}

func (c *CursorAgent) resumeArgs(args []string, model string) []string {
	if model == "" {
		return args
	}
	c.mu.Lock()
	sid, ok := c.sessions[model]
	c.mu.Unlock()
	if ok {
		args = append(args, "--resume", sid)
	}
	return args
}

func (c *CursorAgent) rememberSession(model, sessionID string) {
	if model == "" || sessionID == "" {
		return
	}
	c.mu.Lock()
	c.sessions[model] = sessionID
	c.mu.Unlock()
}

// Complete implements domain.Provider.
func (c *CursorAgent) Complete(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	ctx, span := tracer.StartSpan(ctx, "runner.complete",
		trace.WithAttributes(
			tracer.StringAttr("runner.name", cursorService),
			tracer.StringAttr("runner.model", req.Model),
		),
	)
	defer span.End()

	if req.Temperature != nil || req.MaxTokens > 0 {
		c.logger.Debug("cursor-agent CLI ignores temperature and max_tokens")
	}

	prompt := BuildUserPrompt(req.Messages)
	args := c.resumeArgs(c.buildArgs(prompt, c.resolveModel(req.Model), "json"), req.Model)

	outcome, err := Execute(ctx, c.exec, args, "")
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}
	if outcome.ExitCode != 0 {
		err := failureError(cursorService, outcome)
		tracer.RecordError(span, err)
		return nil, err
	}

	resp, sessionID, err := parseEnvelope(cursorService, outcome.Stdout)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}
	c.rememberSession(req.Model, sessionID)
	tracer.SetOK(span)
	return resp, nil
}

// CompleteStream implements domain.Provider using stream-json events.
func (c *CursorAgent) CompleteStream(ctx context.Context, req domain.ChatRequest) (<-chan domain.StreamDelta, error) {
	prompt := BuildUserPrompt(req.Messages)
	args := c.resumeArgs(c.buildArgs(prompt, c.resolveModel(req.Model), "stream-json"), req.Model)

	return streamCommand(ctx, cursorService, c.exec, args, decodeCursorStreamLine(c.logger), c.logger)
}

// decodeCursorStreamLine parses one stream-json event. "content" events
// carry deltas; "result" carries any final text and ends the turn.
func decodeCursorStreamLine(logger *slog.Logger) lineDecoder {
	return func(line []byte) (domain.StreamDelta, bool) {
		if len(line) == 0 {
			return domain.StreamDelta{}, false
		}
		var event struct {
			Type    string `json:"type"`
			Content string `json:"content"`
			Result  string `json:"result"`
		}
		if err := json.Unmarshal(line, &event); err != nil {
			logger.Warn("skipping malformed cursor-agent stream line", "error", err)
			return domain.StreamDelta{}, false
		}
		switch event.Type {
		case "result":
			return domain.StreamDelta{Content: event.Result, Done: true, FinishReason: "stop"}, true
		case "content":
			return domain.StreamDelta{Content: event.Content}, true
		default:
			return domain.StreamDelta{}, false
		}
	}
}

// HealthCheck implements domain.Provider via a version probe.
func (c *CursorAgent) HealthCheck(ctx context.Context) (domain.Readiness, error) {
	return CheckReadiness(ctx, TypeCursorAgent, c.exec.BinaryPath, c.exec.AllowedEnvKeys), nil
}

package runner

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"sync"

	"go.opentelemetry.io/otel/trace"

	"agentmux/internal/domain"
	"agentmux/internal/infra/config"
	"agentmux/internal/infra/tracer"
)

const (
	claudeDefaultModel = "opus"
	claudeService      = "claude-code"
)

var claudeFallbackModels = []string{"sonnet", "opus", "haiku"}

// Compile-time interface assertion.
var _ domain.Provider = (*ClaudeCode)(nil)

// ClaudeCode wraps the `claude` CLI. Structured responses come from
// `--output-format json`; streaming uses `stream-json` with one event per
// line. Session IDs returned by the CLI are kept per model key and replayed
// with `--resume` so follow-up requests continue the same CLI session.
type ClaudeCode struct {
	exec      ExecConfig
	model     string
	extraArgs []string
	logger    *slog.Logger

	mu       sync.Mutex
	sessions map[string]string
}

// NewClaudeCode creates a claude runner from config. A missing binary is
// tolerated at construction; it surfaces through HealthCheck and as
// BinaryNotFound on the first completion attempt.
func NewClaudeCode(cfg config.RunnerConfig, logger *slog.Logger) *ClaudeCode {
	bin, err := ResolveBinary(TypeClaudeCode, cfg.BinaryPath)
	if err != nil {
		bin = TypeClaudeCode.BinaryName()
		logger.Warn("claude binary not found, deferring to health checks", "error", err)
	}
	model := cfg.Model
	if model == "" {
		model = claudeDefaultModel
	}
	return &ClaudeCode{
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

func (c *ClaudeCode) Name() string { return claudeService }
func (c *ClaudeCode) DisplayName() string { return "Claude Code CLI" }
func (c *ClaudeCode) DefaultModel() string { return c.model }

func (c *ClaudeCode) Capabilities() domain.Capability {
	return domain.CapStreaming | domain.CapSystemMessages
}

func (c *ClaudeCode) AvailableModels() []string {
	return append([]string(nil), claudeFallbackModels...)
}

// resolveModel picks the request's model, falling back to the configured
// default when the request does not name one.
func (c *ClaudeCode) resolveModel(requested string) string {
	if requested == "" {
		return c.model
	}
	return requested
}

// buildArgs assembles the common argv. Native MCP servers are disabled so
// the CLI relies on the text-based tool catalog injected via the system
// prompt instead of its own tool plumbing.
func (c *ClaudeCode) buildArgs(prompt, system, model, outputFormat string) []string {
	args := []string{"-p", prompt, "--output-format", outputFormat}
	if outputFormat == "stream-json" {
		// stream-json requires --verbose in the claude CLI.
		args = append(args, "--verbose")
	}
	if system != "" {
		args = append(args, "--system-prompt", system)
	}
	args = append(args, "--model", model, "--strict-mcp-config", "{}")
	return append(args, c.extraArgs...)
}

// resumeArgs appends --resume when a session is known for the request's
// model key.
func (c *ClaudeCode) resumeArgs(args []string, model string) []string {
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

func (c *ClaudeCode) rememberSession(model, sessionID string) {
	if model == "" || sessionID == "" {
		return
	}
	c.mu.Lock()
	c.sessions[model] = sessionID
	c.mu.Unlock()
}

// Complete implements domain.Provider.
func (c *ClaudeCode) Complete(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	ctx, span := tracer.StartSpan(ctx, "runner.complete",
		trace.WithAttributes(
			tracer.StringAttr("runner.name", claudeService),
			tracer.StringAttr("runner.model", req.Model),
		),
	)
	defer span.End()

	system := ExtractSystemMessage(req.Messages)
	prompt := BuildUserPrompt(req.Messages)
	args := c.resumeArgs(c.buildArgs(prompt, system, c.resolveModel(req.Model), "json"), req.Model)

	execCfg := c.exec
	if req.MaxTokens > 0 {
		// Injected after the allowlist so env_clear does not strip it.
		execCfg.ExtraEnv = []string{"CLAUDE_CODE_MAX_OUTPUT_TOKENS=" + strconv.Itoa(req.MaxTokens)}
	}

	c.logger.Debug("spawning claude CLI",
		"binary", execCfg.BinaryPath,
		"prompt_len", len(prompt),
		"has_system", system != "",
	)

	outcome, err := Execute(ctx, execCfg, args, "")
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}
	if outcome.ExitCode != 0 {
		err := failureError(claudeService, outcome)
		tracer.RecordError(span, err)
		return nil, err
	}

	resp, sessionID, err := parseEnvelope(claudeService, outcome.Stdout)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}
	c.rememberSession(req.Model, sessionID)
	tracer.SetOK(span)
	return resp, nil
}

// CompleteStream implements domain.Provider using stream-json events.
func (c *ClaudeCode) CompleteStream(ctx context.Context, req domain.ChatRequest) (<-chan domain.StreamDelta, error) {
	system := ExtractSystemMessage(req.Messages)
	prompt := BuildUserPrompt(req.Messages)
	args := c.resumeArgs(c.buildArgs(prompt, system, c.resolveModel(req.Model), "stream-json"), req.Model)

	return streamCommand(ctx, claudeService, c.exec, args, decodeClaudeStreamLine(c.logger), c.logger)
}

// decodeClaudeStreamLine parses one stream-json event. "assistant" events
// carry text content blocks; "result" marks the end of the turn. Unknown
// event types and malformed lines are skipped.
func decodeClaudeStreamLine(logger *slog.Logger) lineDecoder {
	return func(line []byte) (domain.StreamDelta, bool) {
		if len(line) == 0 {
			return domain.StreamDelta{}, false
		}
		var event struct {
			Type    string `json:"type"`
			Message struct {
				Content []struct {
					Type string `json:"type"`
					Text string `json:"text"`
				} `json:"content"`
			} `json:"message"`
		}
		if err := json.Unmarshal(line, &event); err != nil {
			logger.Warn("skipping malformed claude stream line", "error", err)
			return domain.StreamDelta{}, false
		}
		switch event.Type {
		case "result":
			return domain.StreamDelta{Done: true, FinishReason: "stop"}, true
		case "assistant":
			var text string
			for _, block := range event.Message.Content {
				if block.Type == "text" {
					text += block.Text
				}
			}
			if text == "" {
				return domain.StreamDelta{}, false
			}
			return domain.StreamDelta{Content: text}, true
		default:
			// system, rate_limit_event, and other event types are ignored.
			return domain.StreamDelta{}, false
		}
	}
}

// HealthCheck implements domain.Provider via `claude auth status`.
func (c *ClaudeCode) HealthCheck(ctx context.Context) (domain.Readiness, error) {
	return CheckReadiness(ctx, TypeClaudeCode, c.exec.BinaryPath, c.exec.AllowedEnvKeys), nil
}

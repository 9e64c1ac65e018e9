package runner

import (
	"context"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"agentmux/internal/domain"
	"agentmux/internal/infra/config"
	"agentmux/internal/infra/tracer"
)

const (
	copilotDefaultModel = "claude-opus-4.6"
	copilotService      = "copilot"
)

// Fallback model list when `gh copilot models` discovery fails.
var copilotFallbackModels = []string{
	"claude-sonnet-4.6",
	"claude-opus-4.6",
	"claude-haiku-4.5",
	"gpt-5.2-codex",
	"gpt-5.2",
	"gpt-5-mini",
	"gpt-4.1",
	"gemini-3-pro-preview",
}

var _ domain.Provider = (*Copilot)(nil)

// Copilot wraps the `copilot` CLI in non-interactive mode. The CLI emits
// plain text (no JSON envelope), so raw stdout is the response content, and
// it has no --system-prompt flag, so system messages are folded into the
// prompt. Streaming reads stdout line by line with `--stream on`.
type Copilot struct {
	exec      ExecConfig
	model     string
	extraArgs []string
	models    []string
	logger    *slog.Logger
}

// NewCopilot creates a copilot runner. Available models are discovered via
// `gh copilot models` at construction, falling back to a static list.
func NewCopilot(cfg config.RunnerConfig, logger *slog.Logger) *Copilot {
	bin, err := ResolveBinary(TypeCopilot, cfg.BinaryPath)
	if err != nil {
		bin = TypeCopilot.BinaryName()
		logger.Warn("copilot binary not found, deferring to health checks", "error", err)
	}
	model := cfg.Model
	if model == "" {
		model = copilotDefaultModel
	}
	models := discoverCopilotModels(cfg.AllowedEnvKeys, logger)
	if len(models) == 0 {
		models = append([]string(nil), copilotFallbackModels...)
	}
	return &Copilot{
		exec: ExecConfig{
			BinaryPath:       bin,
			Timeout:          cfg.Timeout,
			MaxOutputBytes:   cfg.MaxOutputBytes,
			AllowedEnvKeys:   cfg.AllowedEnvKeys,
			WorkingDirectory: cfg.WorkingDirectory,
		},
		model:     model,
		extraArgs: cfg.ExtraArgs,
		models:    models,
		logger:    logger,
	}
}

// discoverCopilotModels lists available models by running `gh copilot
// models`. Returns nil if gh is missing, the command fails, or the output
// is empty.
func discoverCopilotModels(envKeys []string, logger *slog.Logger) []string {
	ghPath, err := lookPathGH()
	if err != nil {
		return nil
	}
	cfg := ExecConfig{
		BinaryPath:     ghPath,
		Timeout:        healthCheckTimeout,
		MaxOutputBytes: authCheckMaxOutput,
		AllowedEnvKeys: envKeys,
	}
	outcome, err := Execute(context.Background(), cfg, []string{"copilot", "models"}, "")
	if err != nil || outcome.ExitCode != 0 {
		logger.Debug("gh copilot models failed, using static model list")
		return nil
	}
	var models []string
	for _, line := range strings.Split(string(outcome.Stdout), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			models = append(models, line)
		}
	}
	if len(models) > 0 {
		logger.Debug("discovered copilot models", "count", len(models))
	}
	return models
}

func (c *Copilot) Name() string { return copilotService }
func (c *Copilot) DisplayName() string { return "GitHub Copilot CLI" }
func (c *Copilot) DefaultModel() string { return c.model }

func (c *Copilot) Capabilities() domain.Capability {
	// No --system-prompt flag; system messages are embedded into the prompt.
	return domain.CapStreaming
}

func (c *Copilot) AvailableModels() []string {
	return append([]string(nil), c.models...)
}

func (c *Copilot) resolveModel(requested string) string {
	if requested == "" {
		return c.model
	}
	return requested
}

func (c *Copilot) buildArgs(prompt, model string) []string {
	args := []string{
		"-p", prompt,
		"--model", model,
		// Required for non-interactive mode.
		"--allow-all-tools",
		// Force the text-based tool catalog instead of built-in MCP servers.
		"--disable-builtin-mcps",
		"--no-custom-instructions",
		"--no-ask-user",
		"--no-color",
		// Output only the agent response, no stats footer.
		"-s",
	}
	return append(args, c.extraArgs...)
}

// Complete implements domain.Provider.
func (c *Copilot) Complete(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	ctx, span := tracer.StartSpan(ctx, "runner.complete",
		trace.WithAttributes(
			tracer.StringAttr("runner.name", copilotService),
			tracer.StringAttr("runner.model", req.Model),
		),
	)
	defer span.End()

	if req.Temperature != nil || req.MaxTokens > 0 {
		c.logger.Debug("copilot CLI ignores temperature and max_tokens")
	}

	prompt := BuildPrompt(req.Messages)
	outcome, err := Execute(ctx, c.exec, c.buildArgs(prompt, c.resolveModel(req.Model)), "")
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}
	if outcome.ExitCode != 0 {
		err := failureError(copilotService, outcome)
		tracer.RecordError(span, err)
		return nil, err
	}

	tracer.SetOK(span)
	return &domain.ChatResponse{
		Content:      strings.TrimSpace(string(outcome.Stdout)),
		Model:        copilotService,
		FinishReason: "stop",
	}, nil
}

// CompleteStream implements domain.Provider; each stdout line is one delta.
func (c *Copilot) CompleteStream(ctx context.Context, req domain.ChatRequest) (<-chan domain.StreamDelta, error) {
	prompt := BuildPrompt(req.Messages)
	args := append(c.buildArgs(prompt, c.resolveModel(req.Model)), "--stream", "on")

	decode := func(line []byte) (domain.StreamDelta, bool) {
		return domain.StreamDelta{Content: string(line)}, true
	}
	return streamCommand(ctx, copilotService, c.exec, args, decode, c.logger)
}

// HealthCheck implements domain.Provider via `gh auth status` when gh is
// available, otherwise a version probe.
func (c *Copilot) HealthCheck(ctx context.Context) (domain.Readiness, error) {
	return CheckReadiness(ctx, TypeCopilot, c.exec.BinaryPath, c.exec.AllowedEnvKeys), nil
}

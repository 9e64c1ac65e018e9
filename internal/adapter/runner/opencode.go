package runner

import (
	"context"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/trace"

	"agentmux/internal/domain"
	"agentmux/internal/infra/config"
	"agentmux/internal/infra/tracer"
)

const (
	opencodeDefaultModel = "anthropic/claude-sonnet-4"
	opencodeService      = "opencode"
)

var opencodeFallbackModels = []string{
	"anthropic/claude-sonnet-4",
	"anthropic/claude-opus-4",
	"openai/gpt-5",
}

var _ domain.Provider = (*OpenCode)(nil)

// OpenCode wraps the `opencode` CLI via `run --format json`. Models use
// provider/model format (e.g. anthropic/claude-sonnet-4). The CLI cannot
// stream, so CompleteStream delivers the full completion as a single delta.
type OpenCode struct {
	exec      ExecConfig
	model     string
	extraArgs []string
	logger    *slog.Logger

	mu       sync.Mutex
	sessions map[string]string
}

// NewOpenCode creates an opencode runner from config.
func NewOpenCode(cfg config.RunnerConfig, logger *slog.Logger) *OpenCode {
	bin, err := ResolveBinary(TypeOpenCode, cfg.BinaryPath)
	if err != nil {
		bin = TypeOpenCode.BinaryName()
		logger.Warn("opencode binary not found, deferring to health checks", "error", err)
	}
	model := cfg.Model
	if model == "" {
		model = opencodeDefaultModel
	}
	return &OpenCode{
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

func (o *OpenCode) Name() string { return opencodeService }
func (o *OpenCode) DisplayName() string { return "OpenCode CLI" }
func (o *OpenCode) DefaultModel() string { return o.model }

func (o *OpenCode) Capabilities() domain.Capability { return 0 }

func (o *OpenCode) AvailableModels() []string {
	return append([]string(nil), opencodeFallbackModels...)
}

func (o *OpenCode) resolveModel(requested string) string {
	if requested == "" {
		return o.model
	}
	return requested
}

func (o *OpenCode) buildArgs(prompt, model string) []string {
	args := []string{"run", prompt, "--format", "json", "--model", model}
	return append(args, o.extraArgs...)
}

// Complete implements domain.Provider.
func (o *OpenCode) Complete(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	ctx, span := tracer.StartSpan(ctx, "runner.complete",
		trace.WithAttributes(
			tracer.StringAttr("runner.name", opencodeService),
			tracer.StringAttr("runner.model", req.Model),
		),
	)
	defer span.End()

	prompt := BuildPrompt(req.Messages)
	args := o.buildArgs(prompt, o.resolveModel(req.Model))

	if req.Model != "" {
		o.mu.Lock()
		sid, ok := o.sessions[req.Model]
		o.mu.Unlock()
		if ok {
			args = append(args, "--session", sid)
		}
	}

	outcome, err := Execute(ctx, o.exec, args, "")
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}
	if outcome.ExitCode != 0 {
		err := failureError(opencodeService, outcome)
		tracer.RecordError(span, err)
		return nil, err
	}

	resp, sessionID, err := parseEnvelope(opencodeService, outcome.Stdout)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}
	if req.Model != "" && sessionID != "" {
		o.mu.Lock()
		o.sessions[req.Model] = sessionID
		o.mu.Unlock()
	}
	tracer.SetOK(span)
	return resp, nil
}

// CompleteStream implements domain.Provider by falling back to Complete:
// one content delta followed by the terminal marker.
func (o *OpenCode) CompleteStream(ctx context.Context, req domain.ChatRequest) (<-chan domain.StreamDelta, error) {
	resp, err := o.Complete(ctx, req)
	if err != nil {
		return nil, err
	}
	return singleDeltaStream(resp), nil
}

// HealthCheck implements domain.Provider via a version probe.
func (o *OpenCode) HealthCheck(ctx context.Context) (domain.Readiness, error) {
	return CheckReadiness(ctx, TypeOpenCode, o.exec.BinaryPath, o.exec.AllowedEnvKeys), nil
}

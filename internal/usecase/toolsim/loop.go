package toolsim

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"agentmux/internal/domain"
	"agentmux/internal/infra/tracer"
)

// maxToolIterations caps the tool loop regardless of caller configuration.
// CLI providers spawn a subprocess per call, so this stays conservative.
const maxToolIterations = 10

// Result is the outcome of a tool-calling conversation.
type Result struct {
	// Content is the final text from the model, with tool call blocks
	// stripped. Empty when the iteration limit was reached.
	Content string `json:"content"`
	// Usage reports token usage from the last model call, when available.
	Usage *domain.Usage `json:"usage,omitempty"`
	// FinishReason is the last call's finish reason, or "max_iterations"
	// when the loop hit its ceiling.
	FinishReason string `json:"finish_reason,omitempty"`
	// ToolCallsCount is the total number of tool calls executed.
	ToolCallsCount int `json:"tool_calls_count"`
	// LimitReached is true when the loop stopped at its iteration ceiling
	// instead of a final model answer.
	LimitReached bool `json:"limit_reached,omitempty"`
}

// Loop drives a multi-turn tool-calling conversation against a provider
// that only speaks plain text.
type Loop struct {
	provider      domain.Provider
	declarations  []domain.FunctionDeclaration
	handler       domain.ToolHandler
	maxIterations int
	logger        *slog.Logger
}

// New creates a tool loop. maxIterations is clamped to an internal ceiling;
// zero or negative means the ceiling itself.
func New(provider domain.Provider, declarations []domain.FunctionDeclaration, handler domain.ToolHandler, maxIterations int, logger *slog.Logger) *Loop {
	if maxIterations <= 0 || maxIterations > maxToolIterations {
		maxIterations = maxToolIterations
	}
	return &Loop{
		provider:      provider,
		declarations:  declarations,
		handler:       handler,
		maxIterations: maxIterations,
		logger:        logger,
	}
}

// Run executes the conversation until the model answers without requesting
// tools, or the iteration limit is reached. The limit is reported through
// FinishReason, not as an error. Provider failures abort the loop.
func (l *Loop) Run(ctx context.Context, req domain.ChatRequest) (*Result, error) {
	ctx, span := tracer.StartSpan(ctx, "toolsim.run",
		trace.WithAttributes(
			tracer.StringAttr("runner.name", l.provider.Name()),
			tracer.IntAttr("tool.count", len(l.declarations)),
		),
	)
	defer span.End()

	catalog := GenerateCatalog(l.declarations)
	messages := InjectCatalog(req.Messages, catalog)

	l.logger.Debug("tool loop starting",
		"messages", len(messages),
		"tools", len(l.declarations),
		"max_iterations", l.maxIterations,
	)

	toolCalls := 0
	for iteration := 0; iteration < l.maxIterations; iteration++ {
		turn := req
		turn.Messages = messages
		turn.Stream = false

		resp, err := l.provider.Complete(ctx, turn)
		if err != nil {
			tracer.RecordError(span, err)
			return nil, err
		}

		calls := ParseToolCalls(resp.Content, l.logger)
		if len(calls) == 0 {
			l.logger.Debug("tool loop finished",
				"iteration", iteration,
				"tool_calls", toolCalls,
			)
			tracer.SetOK(span)
			return &Result{
				Content:        StripToolCalls(resp.Content),
				Usage:          resp.Usage,
				FinishReason:   resp.FinishReason,
				ToolCallsCount: toolCalls,
			}, nil
		}

		l.logger.Info("executing tool calls",
			"iteration", iteration,
			"count", len(calls),
		)

		responses := make([]domain.FunctionResponse, 0, len(calls))
		for _, call := range calls {
			responses = append(responses, l.execute(call))
		}
		toolCalls += len(calls)

		if text := StripToolCalls(resp.Content); text != "" {
			messages = append(messages, domain.AssistantMessage(text))
		}
		messages = append(messages, domain.UserMessage(FormatToolResults(responses)))
	}

	l.logger.Warn("tool loop hit iteration limit",
		"max_iterations", l.maxIterations,
		"tool_calls", toolCalls,
	)
	tracer.SetOK(span)
	return &Result{
		FinishReason:   "max_iterations",
		ToolCallsCount: toolCalls,
		LimitReached:   true,
	}, nil
}

// execute runs a single tool call. Handler failures and panics are folded
// into the result payload so the model can observe and recover from them.
func (l *Loop) execute(call domain.FunctionCall) (out domain.FunctionResponse) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("tool handler panicked", "tool", call.Name, "panic", r)
			payload, _ := json.Marshal(map[string]string{"error": fmt.Sprintf("tool handler panicked: %v", r)})
			out = domain.FunctionResponse{Name: call.Name, Response: payload}
		}
	}()

	resp, err := l.handler(call.Name, call.Args)
	if err != nil {
		l.logger.Warn("tool handler failed", "tool", call.Name, "error", err)
		payload, _ := json.Marshal(map[string]string{"error": err.Error()})
		return domain.FunctionResponse{Name: call.Name, Response: payload}
	}
	if resp.Name == "" {
		resp.Name = call.Name
	}
	return resp
}

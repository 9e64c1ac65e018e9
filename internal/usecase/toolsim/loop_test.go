package toolsim

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentmux/internal/domain"
)

// scriptedProvider returns canned responses in order, then repeats the last.
type scriptedProvider struct {
	responses []string
	calls     int
	err       error
}

func (p *scriptedProvider) Name() string                    { return "scripted" }
func (p *scriptedProvider) DisplayName() string             { return "Scripted" }
func (p *scriptedProvider) Capabilities() domain.Capability { return 0 }
func (p *scriptedProvider) DefaultModel() string            { return "test" }
func (p *scriptedProvider) AvailableModels() []string       { return []string{"test"} }

func (p *scriptedProvider) Complete(_ context.Context, _ domain.ChatRequest) (*domain.ChatResponse, error) {
	if p.err != nil {
		return nil, p.err
	}
	idx := p.calls
	if idx >= len(p.responses) {
		idx = len(p.responses) - 1
	}
	p.calls++
	return &domain.ChatResponse{
		Content:      p.responses[idx],
		Model:        "test",
		FinishReason: "stop",
	}, nil
}

func (p *scriptedProvider) CompleteStream(_ context.Context, _ domain.ChatRequest) (<-chan domain.StreamDelta, error) {
	return nil, errors.New("not supported")
}

func (p *scriptedProvider) HealthCheck(_ context.Context) (domain.Readiness, error) {
	return domain.ReadinessReady, nil
}

func calculatorDecls() []domain.FunctionDeclaration {
	return []domain.FunctionDeclaration{
		{
			Name:        "calculator",
			Description: "Evaluate an arithmetic expression",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {"expression": {"type": "string"}},
				"required": ["expression"]
			}`),
		},
	}
}

// --- Loop Tests ---

func TestLoopFinalAnswerWithoutTools(t *testing.T) {
	provider := &scriptedProvider{responses: []string{"The answer is 4."}}
	loop := New(provider, calculatorDecls(), func(name string, args json.RawMessage) (domain.FunctionResponse, error) {
		t.Fatal("handler should not be called")
		return domain.FunctionResponse{}, nil
	}, 5, slog.Default())

	result, err := loop.Run(context.Background(), domain.ChatRequest{
		Messages: []domain.ChatMessage{domain.UserMessage("What is 2+2?")},
	})

	require.NoError(t, err)
	assert.Equal(t, "The answer is 4.", result.Content)
	assert.Equal(t, 0, result.ToolCallsCount)
	assert.Equal(t, "stop", result.FinishReason)
	assert.Equal(t, 1, provider.calls)
}

func TestLoopExecutesToolThenAnswers(t *testing.T) {
	provider := &scriptedProvider{responses: []string{
		`<tool_call>
{"name": "calculator", "arguments": {"expression": "2+2"}}
</tool_call>`,
		"4",
	}}

	var seenArgs string
	handler := func(name string, args json.RawMessage) (domain.FunctionResponse, error) {
		seenArgs = string(args)
		return domain.FunctionResponse{
			Name:     name,
			Response: json.RawMessage(`{"result": 4}`),
		}, nil
	}

	loop := New(provider, calculatorDecls(), handler, 5, slog.Default())
	result, err := loop.Run(context.Background(), domain.ChatRequest{
		Messages: []domain.ChatMessage{domain.UserMessage("What is 2+2?")},
	})

	require.NoError(t, err)
	assert.Equal(t, "4", result.Content)
	assert.Equal(t, 1, result.ToolCallsCount)
	assert.Contains(t, seenArgs, "2+2")
	assert.Equal(t, 2, provider.calls)
}

func TestLoopHandlerErrorFedBackToModel(t *testing.T) {
	provider := &scriptedProvider{responses: []string{
		`<tool_call>
{"name": "calculator", "arguments": {"expression": "1/0"}}
</tool_call>`,
		"That expression cannot be evaluated.",
	}}

	handler := func(name string, args json.RawMessage) (domain.FunctionResponse, error) {
		return domain.FunctionResponse{}, errors.New("division by zero")
	}

	loop := New(provider, calculatorDecls(), handler, 5, slog.Default())
	result, err := loop.Run(context.Background(), domain.ChatRequest{
		Messages: []domain.ChatMessage{domain.UserMessage("What is 1/0?")},
	})

	require.NoError(t, err)
	assert.Equal(t, "That expression cannot be evaluated.", result.Content)
	assert.Equal(t, 1, result.ToolCallsCount)
}

func TestLoopHandlerPanicFedBackToModel(t *testing.T) {
	provider := &scriptedProvider{responses: []string{
		`<tool_call>
{"name": "calculator", "arguments": {"expression": "boom"}}
</tool_call>`,
		"The tool crashed.",
	}}

	handler := func(name string, args json.RawMessage) (domain.FunctionResponse, error) {
		panic("nil map write")
	}

	loop := New(provider, calculatorDecls(), handler, 5, slog.Default())
	result, err := loop.Run(context.Background(), domain.ChatRequest{
		Messages: []domain.ChatMessage{domain.UserMessage("go")},
	})

	require.NoError(t, err)
	assert.Equal(t, "The tool crashed.", result.Content)
	assert.Equal(t, 1, result.ToolCallsCount)
}

func TestLoopIterationLimit(t *testing.T) {
	// Always requests another tool call, never settles.
	provider := &scriptedProvider{responses: []string{
		`<tool_call>
{"name": "calculator", "arguments": {"expression": "1+1"}}
</tool_call>`,
	}}

	handler := func(name string, args json.RawMessage) (domain.FunctionResponse, error) {
		return domain.FunctionResponse{Name: name, Response: json.RawMessage(`{"result": 2}`)}, nil
	}

	loop := New(provider, calculatorDecls(), handler, 3, slog.Default())
	result, err := loop.Run(context.Background(), domain.ChatRequest{
		Messages: []domain.ChatMessage{domain.UserMessage("loop forever")},
	})

	require.NoError(t, err)
	assert.Equal(t, "max_iterations", result.FinishReason)
	assert.True(t, result.LimitReached)
	assert.Empty(t, result.Content)
	assert.Equal(t, 3, result.ToolCallsCount)
	assert.Equal(t, 3, provider.calls)
}

func TestLoopClampsIterationCeiling(t *testing.T) {
	loop := New(&scriptedProvider{}, nil, nil, 100, slog.Default())
	assert.Equal(t, maxToolIterations, loop.maxIterations)

	loop = New(&scriptedProvider{}, nil, nil, 0, slog.Default())
	assert.Equal(t, maxToolIterations, loop.maxIterations)
}

func TestLoopProviderErrorAborts(t *testing.T) {
	provider := &scriptedProvider{err: domain.ExternalService("scripted", "boom")}
	loop := New(provider, calculatorDecls(), nil, 5, slog.Default())

	_, err := loop.Run(context.Background(), domain.ChatRequest{
		Messages: []domain.ChatMessage{domain.UserMessage("hi")},
	})

	require.Error(t, err)
	assert.Equal(t, domain.KindExternalService, domain.KindOf(err))
}

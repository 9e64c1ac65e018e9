package gateway

import (
	"strings"

	"agentmux/internal/domain"
)

// Wire types for the OpenAI-compatible REST surface.

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Name    string `json:"name,omitempty"`
}

type chatCompletionResponse struct {
	ID      string        `json:"id"`
	Object  string        `json:"object"`
	Created int64         `json:"created"`
	Model   string        `json:"model"`
	Choices []choice      `json:"choices"`
	Usage   *domain.Usage `json:"usage,omitempty"`
}

type choice struct {
	Index        int         `json:"index"`
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason,omitempty"`
}

type chatCompletionChunk struct {
	ID      string        `json:"id"`
	Object  string        `json:"object"`
	Created int64         `json:"created"`
	Model   string        `json:"model"`
	Choices []chunkChoice `json:"choices"`
}

type chunkChoice struct {
	Index        int        `json:"index"`
	Delta        chunkDelta `json:"delta"`
	FinishReason *string    `json:"finish_reason"`
}

type chunkDelta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}

type modelList struct {
	Object string      `json:"object"`
	Data   []modelInfo `json:"data"`
}

type modelInfo struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	OwnedBy string `json:"owned_by"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
}

type multiplexRequest struct {
	Messages    []chatMessage            `json:"messages"`
	MaxTokens   int                      `json:"max_tokens,omitempty"`
	Temperature *float64                 `json:"temperature,omitempty"`
	Targets     []domain.MultiplexTarget `json:"targets"`
}

type multiplexResponse struct {
	ID      string          `json:"id"`
	Object  string          `json:"object"`
	Created int64           `json:"created"`
	Results []multiplexItem `json:"results"`
}

type multiplexItem struct {
	Provider   string               `json:"provider"`
	Model      string               `json:"model,omitempty"`
	DurationMS int64                `json:"duration_ms"`
	Response   *domain.ChatResponse `json:"response,omitempty"`
	Error      *errorBody           `json:"error,omitempty"`
}

type healthResponse struct {
	Status    string           `json:"status"`
	Providers []providerHealth `json:"providers"`
}

type providerHealth struct {
	Name         string `json:"name"`
	DisplayName  string `json:"display_name"`
	Readiness    string `json:"readiness"`
	DefaultModel string `json:"default_model"`
}

// splitModel resolves an OpenAI model ID into a provider name and model.
// "claude-code/opus" targets the claude-code runner with model "opus";
// a bare "claude-code" uses the runner's default model.
func splitModel(id string) (provider, model string) {
	if i := strings.IndexByte(id, '/'); i >= 0 {
		return id[:i], id[i+1:]
	}
	return id, ""
}

func toDomainMessages(in []chatMessage) []domain.ChatMessage {
	out := make([]domain.ChatMessage, len(in))
	for i, m := range in {
		out[i] = domain.ChatMessage{Role: m.Role, Content: m.Content, Name: m.Name}
	}
	return out
}

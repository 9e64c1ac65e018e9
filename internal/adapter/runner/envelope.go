package runner

import (
	"encoding/json"
	"strings"

	"agentmux/internal/domain"
)

// cliEnvelope is the JSON response shape shared by the claude, cursor-agent,
// and opencode CLIs when invoked with JSON output.
type cliEnvelope struct {
	Result    string    `json:"result"`
	IsError   bool      `json:"is_error"`
	SessionID string    `json:"session_id"`
	Usage     *cliUsage `json:"usage"`
}

type cliUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// parseEnvelope decodes a JSON envelope from raw CLI stdout.
//
// Malformed but non-empty output is an ExternalService failure: the wrapped
// tool promised JSON and did not deliver it, so the fault is attributed to
// the tool, not the engine.
func parseEnvelope(service string, raw []byte) (*domain.ChatResponse, string, error) {
	text := strings.TrimSpace(string(raw))
	if text == "" {
		return nil, "", domain.ExternalService(service, "empty response body")
	}

	var env cliEnvelope
	if err := json.Unmarshal([]byte(text), &env); err != nil {
		return nil, "", domain.ExternalService(service,
			"malformed JSON response: "+preview(err.Error(), 200))
	}

	if env.IsError {
		detail := env.Result
		if detail == "" {
			detail = "unknown error reported by tool"
		}
		return nil, "", domain.ExternalService(service, Redact(detail))
	}

	resp := &domain.ChatResponse{
		Content:      env.Result,
		Model:        service,
		FinishReason: "stop",
	}
	if env.Usage != nil {
		resp.Usage = &domain.Usage{
			PromptTokens:     env.Usage.InputTokens,
			CompletionTokens: env.Usage.OutputTokens,
			TotalTokens:      env.Usage.InputTokens + env.Usage.OutputTokens,
		}
	}
	return resp, env.SessionID, nil
}

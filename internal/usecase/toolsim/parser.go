package toolsim

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"agentmux/internal/domain"
)

const (
	openTag  = "<tool_call>"
	closeTag = "</tool_call>"
)

// toolCallPayload is the JSON body of a <tool_call> block.
type toolCallPayload struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ParseToolCalls extracts <tool_call> blocks from model output, in order of
// appearance. The parser is tolerant: blocks with malformed JSON are skipped
// with a warning, and an unterminated open tag ends the scan. Missing
// arguments default to an empty JSON object.
func ParseToolCalls(content string, logger *slog.Logger) []domain.FunctionCall {
	var calls []domain.FunctionCall
	rest := content

	for {
		start := strings.Index(rest, openTag)
		if start < 0 {
			break
		}
		rest = rest[start+len(openTag):]

		end := strings.Index(rest, closeTag)
		if end < 0 {
			logger.Warn("tool call block without closing tag, ignoring remainder")
			break
		}
		body := strings.TrimSpace(rest[:end])
		rest = rest[end+len(closeTag):]

		var payload toolCallPayload
		if err := json.Unmarshal([]byte(body), &payload); err != nil || payload.Name == "" {
			logger.Warn("skipping malformed tool call block",
				"bytes", len(body), "error", err)
			continue
		}
		args := payload.Arguments
		if len(args) == 0 {
			args = json.RawMessage("{}")
		}
		calls = append(calls, domain.FunctionCall{Name: payload.Name, Args: args})
	}
	return calls
}

// StripToolCalls removes <tool_call>...</tool_call> blocks from text and
// trims the result. An unclosed open tag is dropped along with everything
// after it, so a response truncated mid-block never leaks raw protocol
// markers to the caller. Stripping already-stripped text is a no-op.
func StripToolCalls(content string) string {
	var b strings.Builder
	b.Grow(len(content))
	rest := content

	for {
		start := strings.Index(rest, openTag)
		if start < 0 {
			break
		}
		end := strings.Index(rest[start:], closeTag)
		if end < 0 {
			rest = rest[:start]
			break
		}
		b.WriteString(rest[:start])
		rest = rest[start+end+len(closeTag):]
	}
	b.WriteString(rest)
	return strings.TrimSpace(b.String())
}

// FormatToolResults renders function responses as <tool_result> blocks for
// injection into the next user turn.
func FormatToolResults(responses []domain.FunctionResponse) string {
	var b strings.Builder
	b.Grow(4096)
	b.WriteString("Here are the results from the tools you requested:\n\n")

	for _, resp := range responses {
		fmt.Fprintf(&b, "<tool_result name=%q>\n", resp.Name)
		var pretty bytes.Buffer
		if err := json.Indent(&pretty, resp.Response, "", "  "); err != nil {
			pretty.Reset()
			pretty.WriteString("{}")
		}
		b.Write(pretty.Bytes())
		b.WriteString("\n</tool_result>\n\n")
	}

	b.WriteString("Please analyze the data above and respond to the user's question.")
	return b.String()
}

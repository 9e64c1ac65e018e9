// Package toolsim implements text-based tool calling for CLI runners that
// lack native function calling. Tools are described to the model in a
// markdown catalog injected into the system prompt; the model requests
// invocations with <tool_call> blocks and receives results as <tool_result>
// blocks on the next turn.
package toolsim

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"agentmux/internal/domain"
)

// parameterSchema is the subset of JSON Schema the catalog renders.
type parameterSchema struct {
	Properties map[string]propertySchema `json:"properties"`
	Required   []string                  `json:"required"`
}

type propertySchema struct {
	Type string `json:"type"`
}

// GenerateCatalog renders function declarations as a markdown tool catalog.
// The catalog documents the <tool_call> invocation format and lists each
// tool with its parameters, so a plain-text model can discover and call them.
func GenerateCatalog(declarations []domain.FunctionDeclaration) string {
	var b strings.Builder
	b.Grow(2048)
	b.WriteString("\n\n## Available Tools\n\n")
	b.WriteString("You have access to the following tools.\n")
	b.WriteString("When you need to use a tool, respond with EXACTLY one tool call block per tool:\n\n")
	b.WriteString("```\n<tool_call>\n{\"name\": \"tool_name\", \"arguments\": {\"param\": \"value\"}}\n</tool_call>\n```\n\n")
	b.WriteString("You may include multiple <tool_call> blocks in a single response.\n")
	b.WriteString("After receiving tool results, analyze the data and respond to the user.\n\n")

	for _, decl := range declarations {
		fmt.Fprintf(&b, "### %s\n", decl.Name)
		fmt.Fprintf(&b, "%s\n", decl.Description)
		writeParameters(&b, decl.Parameters)
		b.WriteByte('\n')
	}
	return b.String()
}

func writeParameters(b *strings.Builder, raw json.RawMessage) {
	if len(raw) == 0 {
		return
	}
	var schema parameterSchema
	if err := json.Unmarshal(raw, &schema); err != nil || len(schema.Properties) == 0 {
		return
	}

	required := make(map[string]bool, len(schema.Required))
	for _, name := range schema.Required {
		required[name] = true
	}

	names := make([]string, 0, len(schema.Properties))
	for name := range schema.Properties {
		names = append(names, name)
	}
	sort.Strings(names)

	b.WriteString("Parameters:\n")
	for _, name := range names {
		typ := schema.Properties[name].Type
		if typ == "" {
			typ = "any"
		}
		label := ""
		if required[name] {
			label = ", required"
		}
		fmt.Fprintf(b, "- `%s` (%s%s)\n", name, typ, label)
	}
}

// InjectCatalog adds the catalog to the conversation's system prompt. If the
// first message is a system message the catalog is appended to it; otherwise
// a new system message is inserted at the front. The input slice is not
// modified.
func InjectCatalog(messages []domain.ChatMessage, catalog string) []domain.ChatMessage {
	out := make([]domain.ChatMessage, 0, len(messages)+1)
	if len(messages) > 0 && messages[0].Role == domain.RoleSystem {
		out = append(out, domain.SystemMessage(messages[0].Content+catalog))
		return append(out, messages[1:]...)
	}
	out = append(out, domain.SystemMessage(catalog))
	return append(out, messages...)
}

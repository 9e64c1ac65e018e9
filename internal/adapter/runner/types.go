package runner

import (
	"fmt"

	"agentmux/internal/domain"
)

// Type identifies a supported CLI runner. The set is fixed and small;
// dispatch over it is always an exhaustive switch.
type Type string

const (
	TypeClaudeCode  Type = "claude-code"
	TypeCopilot     Type = "copilot"
	TypeCursorAgent Type = "cursor-agent"
	TypeOpenCode    Type = "opencode"
)

// AllTypes returns every supported runner type in stable order.
func AllTypes() []Type {
	return []Type{TypeClaudeCode, TypeCopilot, TypeCursorAgent, TypeOpenCode}
}

// ParseType maps a config string to a runner Type.
func ParseType(s string) (Type, error) {
	switch Type(s) {
	case TypeClaudeCode, TypeCopilot, TypeCursorAgent, TypeOpenCode:
		return Type(s), nil
	default:
		return "", domain.ConfigError("runner.ParseType",
			fmt.Sprintf("unknown runner type %q", s))
	}
}

// BinaryName is the executable name used to locate the CLI tool.
func (t Type) BinaryName() string {
	switch t {
	case TypeClaudeCode:
		return "claude"
	case TypeCursorAgent:
		return "cursor-agent"
	case TypeOpenCode:
		return "opencode"
	case TypeCopilot:
		return "copilot"
	default:
		return string(t)
	}
}

// EnvOverrideKey is the environment variable that overrides the binary path.
func (t Type) EnvOverrideKey() string {
	switch t {
	case TypeClaudeCode:
		return "CLAUDE_CODE_BINARY"
	case TypeCursorAgent:
		return "CURSOR_AGENT_BINARY"
	case TypeOpenCode:
		return "OPENCODE_BINARY"
	case TypeCopilot:
		return "COPILOT_BINARY"
	default:
		return ""
	}
}

package runner

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentmux/internal/domain"
	"agentmux/internal/infra/config"
)

// fakeCLI writes a shell script that records its argv and environment, then
// prints the given stdout. Returns the binary path and the argv record file.
func fakeCLI(t *testing.T, name, stdout string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	bin := dir + "/" + name
	argvFile := dir + "/argv"
	// NUL-separated so prompt arguments containing newlines survive intact.
	script := "#!/bin/sh\nprintf '%s\\0' \"$@\" > " + argvFile +
		"\nenv > " + dir + "/env\ncat <<'EOF'\n" + stdout + "\nEOF\n"
	writeExecutable(t, bin, script)
	return bin, argvFile
}

func recordedArgs(t *testing.T, argvFile string) []string {
	t.Helper()
	raw, err := os.ReadFile(argvFile)
	require.NoError(t, err)
	return strings.Split(strings.TrimRight(string(raw), "\x00"), "\x00")
}

// argAfter returns the argv value following the given flag.
func argAfter(t *testing.T, args []string, flag string) string {
	t.Helper()
	for i, a := range args {
		if a == flag {
			require.Less(t, i+1, len(args), "flag %s has no value", flag)
			return args[i+1]
		}
	}
	t.Fatalf("flag %s not found in argv %v", flag, args)
	return ""
}

func claudeRunnerConfig(bin string) config.RunnerConfig {
	return config.RunnerConfig{
		Type:           string(TypeClaudeCode),
		BinaryPath:     bin,
		Timeout:        10 * time.Second,
		MaxOutputBytes: 1 << 20,
		AllowedEnvKeys: []string{"PATH"},
	}
}

// --- ClaudeCode Tests ---

func TestClaudeCodeComplete(t *testing.T) {
	bin, argvFile := fakeCLI(t, "claude",
		`{"result": "pong", "session_id": "sess-1", "usage": {"input_tokens": 3, "output_tokens": 1}}`)
	c := NewClaudeCode(claudeRunnerConfig(bin), testLogger())

	resp, err := c.Complete(context.Background(), domain.ChatRequest{
		Messages: []domain.ChatMessage{
			domain.SystemMessage("Be terse."),
			domain.UserMessage("ping"),
		},
		Model: "opus",
	})

	require.NoError(t, err)
	assert.Equal(t, "pong", resp.Content)
	assert.Equal(t, "stop", resp.FinishReason)
	require.NotNil(t, resp.Usage)
	assert.Equal(t, 4, resp.Usage.TotalTokens)

	args := recordedArgs(t, argvFile)
	assert.Equal(t, "-p", args[0])
	assert.Contains(t, args[1], "[user]\nping")
	assert.NotContains(t, args[1], "[system]", "system content travels via --system-prompt")
	assert.Contains(t, args, "--output-format")
	assert.Contains(t, args, "json")
	assert.Contains(t, args, "--system-prompt")
	assert.Contains(t, args, "Be terse.")
	assert.Contains(t, args, "--strict-mcp-config")
	assert.NotContains(t, args, "--resume", "first request has no session to resume")
}

func TestClaudeCodeResumesSession(t *testing.T) {
	bin, argvFile := fakeCLI(t, "claude", `{"result": "ok", "session_id": "sess-42"}`)
	c := NewClaudeCode(claudeRunnerConfig(bin), testLogger())
	req := domain.ChatRequest{
		Messages: []domain.ChatMessage{domain.UserMessage("hi")},
		Model:    "opus",
	}

	_, err := c.Complete(context.Background(), req)
	require.NoError(t, err)

	_, err = c.Complete(context.Background(), req)
	require.NoError(t, err)

	args := recordedArgs(t, argvFile)
	require.Contains(t, args, "--resume")
	assert.Contains(t, args, "sess-42")
}

func TestClaudeCodeMaxTokensEnv(t *testing.T) {
	bin, _ := fakeCLI(t, "claude", `{"result": "ok"}`)
	c := NewClaudeCode(claudeRunnerConfig(bin), testLogger())

	_, err := c.Complete(context.Background(), domain.ChatRequest{
		Messages:  []domain.ChatMessage{domain.UserMessage("hi")},
		MaxTokens: 256,
	})
	require.NoError(t, err)

	env, readErr := os.ReadFile(strings.TrimSuffix(bin, "/claude") + "/env")
	require.NoError(t, readErr)
	assert.Contains(t, string(env), "CLAUDE_CODE_MAX_OUTPUT_TOKENS=256")
}

func TestClaudeCodeNonZeroExit(t *testing.T) {
	bin := t.TempDir() + "/claude"
	writeExecutable(t, bin, "#!/bin/sh\necho 'invalid api key' >&2\nexit 1\n")
	c := NewClaudeCode(claudeRunnerConfig(bin), testLogger())

	_, err := c.Complete(context.Background(), domain.ChatRequest{
		Messages: []domain.ChatMessage{domain.UserMessage("hi")},
	})

	require.Error(t, err)
	assert.Equal(t, domain.KindExternalService, domain.KindOf(err))
	assert.Contains(t, err.Error(), "exited with code 1")
}

func TestClaudeCodeDefaults(t *testing.T) {
	bin, _ := fakeCLI(t, "claude", `{"result": "ok"}`)
	cfg := claudeRunnerConfig(bin)
	cfg.Model = ""
	c := NewClaudeCode(cfg, testLogger())

	assert.Equal(t, "claude-code", c.Name())
	assert.Equal(t, claudeDefaultModel, c.DefaultModel())
	assert.NotEmpty(t, c.AvailableModels())
	assert.True(t, c.Capabilities().Has(domain.CapStreaming))
	assert.True(t, c.Capabilities().Has(domain.CapSystemMessages))
}

func TestClaudeCodeBuildArgsStreamJSON(t *testing.T) {
	c := NewClaudeCode(claudeRunnerConfig("/bin/true"), testLogger())

	args := c.buildArgs("hello", "", "opus", "stream-json")

	assert.Contains(t, args, "stream-json")
	assert.Contains(t, args, "--verbose")
	assert.NotContains(t, args, "--system-prompt")
}

func TestClaudeCodeRequestModelReachesArgv(t *testing.T) {
	bin, argvFile := fakeCLI(t, "claude", `{"result": "ok"}`)
	cfg := claudeRunnerConfig(bin)
	cfg.Model = "opus"
	c := NewClaudeCode(cfg, testLogger())

	_, err := c.Complete(context.Background(), domain.ChatRequest{
		Messages: []domain.ChatMessage{domain.UserMessage("hi")},
		Model:    "sonnet",
	})
	require.NoError(t, err)
	assert.Equal(t, "sonnet", argAfter(t, recordedArgs(t, argvFile), "--model"))

	// An empty request model falls back to the configured default.
	_, err = c.Complete(context.Background(), domain.ChatRequest{
		Messages: []domain.ChatMessage{domain.UserMessage("hi")},
	})
	require.NoError(t, err)
	assert.Equal(t, "opus", argAfter(t, recordedArgs(t, argvFile), "--model"))
}

package runner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentmux/internal/domain"
	"agentmux/internal/infra/config"
)

// --- Registry Tests ---

func TestRegistryRegisterAndGet(t *testing.T) {
	reg := NewRegistry()
	p := &mockProvider{name: "claude-code"}

	require.NoError(t, reg.Register(p))

	got, err := reg.Get("claude-code")
	require.NoError(t, err)
	assert.Equal(t, "claude-code", got.Name())
}

func TestRegistryRejectsDuplicate(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(&mockProvider{name: "copilot"}))

	err := reg.Register(&mockProvider{name: "copilot"})

	require.Error(t, err)
	assert.Equal(t, domain.KindConfig, domain.KindOf(err))
	assert.Contains(t, err.Error(), "already registered")
}

func TestRegistryGetUnknown(t *testing.T) {
	reg := NewRegistry()

	_, err := reg.Get("nope")

	require.Error(t, err)
	assert.Equal(t, domain.KindConfig, domain.KindOf(err))
	assert.Contains(t, err.Error(), "nope")
}

func TestRegistryListPreservesRegistrationOrder(t *testing.T) {
	reg := NewRegistry()
	for _, name := range []string{"opencode", "claude-code", "copilot"} {
		require.NoError(t, reg.Register(&mockProvider{name: name}))
	}

	assert.Equal(t, []string{"opencode", "claude-code", "copilot"}, reg.Names())

	list := reg.List()
	require.Len(t, list, 3)
	assert.Equal(t, "opencode", list[0].Name())
	assert.Equal(t, "copilot", list[2].Name())
}

// --- Build Tests ---

func TestBuildRejectsUnknownRunnerType(t *testing.T) {
	cfgs := []config.RunnerConfig{{Type: "gemini-cli"}}

	_, err := Build(cfgs, testLogger())

	require.Error(t, err)
	assert.Equal(t, domain.KindConfig, domain.KindOf(err))
}

func TestBuildWrapsRunnersInBreaker(t *testing.T) {
	bin := t.TempDir() + "/claude"
	writeExecutable(t, bin, "#!/bin/sh\nexit 0\n")

	cfgs := []config.RunnerConfig{{
		Type:       string(TypeClaudeCode),
		BinaryPath: bin,
	}}

	reg, err := Build(cfgs, testLogger())
	require.NoError(t, err)

	p, err := reg.Get("claude-code")
	require.NoError(t, err)
	_, ok := p.(*BreakerProvider)
	assert.True(t, ok, "registered providers carry circuit breaker protection")
}

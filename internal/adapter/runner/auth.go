package runner

import (
	"context"
	"os"
	"os/exec"
	"time"

	"agentmux/internal/domain"
)

// Probe budgets. Health checks must stay cheap; these are deliberately far
// below the completion timeout.
const (
	healthCheckTimeout   = 10 * time.Second
	healthCheckMaxOutput = 4 * 1024
	authCheckTimeout     = 15 * time.Second
	authCheckMaxOutput   = 64 * 1024
)

// CheckReadiness probes whether a runner's CLI is installed and
// authenticated. A provider that is not ready is reported through the
// Readiness value; only probe-level failures return an error, and even
// those degrade to ReadinessUnknown where possible.
func CheckReadiness(ctx context.Context, t Type, binaryPath string, allowedEnvKeys []string) domain.Readiness {
	if _, err := os.Stat(binaryPath); err != nil {
		return domain.ReadinessNotFound
	}

	switch t {
	case TypeClaudeCode:
		return probeAuthSubcommand(ctx, binaryPath, allowedEnvKeys, "auth", "status")
	case TypeCopilot:
		return checkCopilotReadiness(ctx, binaryPath, allowedEnvKeys)
	case TypeCursorAgent, TypeOpenCode:
		return probeVersion(ctx, binaryPath, allowedEnvKeys)
	default:
		return domain.ReadinessUnknown
	}
}

// probeAuthSubcommand runs an explicit auth-status subcommand. Exit zero
// means authenticated; non-zero means installed but needing auth.
func probeAuthSubcommand(ctx context.Context, binaryPath string, envKeys []string, args ...string) domain.Readiness {
	cfg := ExecConfig{
		BinaryPath:     binaryPath,
		Timeout:        authCheckTimeout,
		MaxOutputBytes: authCheckMaxOutput,
		AllowedEnvKeys: envKeys,
	}
	outcome, err := Execute(ctx, cfg, args, "")
	if err != nil {
		return domain.ReadinessUnknown
	}
	if outcome.ExitCode == 0 {
		return domain.ReadinessReady
	}
	return domain.ReadinessNotAuthenticated
}

// checkCopilotReadiness prefers `gh auth status` for a real authentication
// check, falling back to a version probe when gh is unavailable. A
// successful --version only confirms the binary exists.
func checkCopilotReadiness(ctx context.Context, binaryPath string, envKeys []string) domain.Readiness {
	if ghPath, err := lookPathGH(); err == nil {
		return probeAuthSubcommand(ctx, ghPath, envKeys, "auth", "status")
	}
	return probeVersion(ctx, binaryPath, envKeys)
}

// lookPathGH locates the GitHub CLI, used both for copilot auth checks and
// model discovery. Split out so tests can stub it.
var lookPathGH = func() (string, error) {
	return exec.LookPath("gh")
}

// probeVersion runs `<binary> --version` as a minimal liveness check.
func probeVersion(ctx context.Context, binaryPath string, envKeys []string) domain.Readiness {
	cfg := ExecConfig{
		BinaryPath:     binaryPath,
		Timeout:        healthCheckTimeout,
		MaxOutputBytes: healthCheckMaxOutput,
		AllowedEnvKeys: envKeys,
	}
	outcome, err := Execute(ctx, cfg, []string{"--version"}, "")
	if err != nil {
		return domain.ReadinessUnknown
	}
	if outcome.ExitCode == 0 {
		return domain.ReadinessReady
	}
	return domain.ReadinessNotAuthenticated
}

package runner

import (
	"os"
	"os/exec"

	"agentmux/internal/domain"
)

// ResolveBinary locates the CLI binary for a runner type. Resolution order:
// explicit config path, the type's env override variable, then PATH lookup.
func ResolveBinary(t Type, configured string) (string, error) {
	const op = "runner.ResolveBinary"

	if configured != "" {
		if _, err := os.Stat(configured); err != nil {
			return "", domain.BinaryNotFound(op, configured)
		}
		return configured, nil
	}

	if override := os.Getenv(t.EnvOverrideKey()); override != "" {
		if _, err := os.Stat(override); err != nil {
			return "", domain.BinaryNotFound(op, override)
		}
		return override, nil
	}

	path, err := exec.LookPath(t.BinaryName())
	if err != nil {
		return "", domain.BinaryNotFound(op, t.BinaryName())
	}
	return path, nil
}

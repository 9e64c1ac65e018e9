package runner

import (
	"fmt"
	"os"
	"regexp"
)

// Default maximum output size per invocation (50 MiB).
const defaultMaxOutputBytes = 50 * 1024 * 1024

// buildEnv constructs a child environment containing only the allowlisted
// keys, resolved from the parent's environment. Everything else is omitted,
// deny-by-default. An empty allowlist yields an empty environment.
func buildEnv(allowedKeys []string) []string {
	env := make([]string, 0, len(allowedKeys))
	for _, key := range allowedKeys {
		if value, ok := os.LookupEnv(key); ok {
			env = append(env, key+"="+value)
		}
	}
	return env
}

// resolveWorkingDirectory validates the configured working directory, or
// falls back to the current directory when unset.
func resolveWorkingDirectory(dir string) (string, error) {
	if dir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("resolve current directory: %w", err)
		}
		return cwd, nil
	}
	info, err := os.Stat(dir)
	if err != nil {
		return "", fmt.Errorf("working directory %q: %w", dir, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("working directory %q is not a directory", dir)
	}
	return dir, nil
}

// Patterns that look like credentials in subprocess stderr. Stderr is
// untrusted diagnostic text; anything resembling a token is masked before
// it can reach an error description.
var secretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\bsk-[A-Za-z0-9_-]{8,}`),
	regexp.MustCompile(`\bgh[pousr]_[A-Za-z0-9]{8,}`),
	regexp.MustCompile(`(?i)\bbearer\s+[A-Za-z0-9._~+/=-]{16,}`),
	regexp.MustCompile(`(?i)\b(api[_-]?key|token|secret|password)\s*[=:]\s*\S+`),
}

// Redact masks recognizable secret-looking values in text.
func Redact(text string) string {
	for _, p := range secretPatterns {
		text = p.ReplaceAllString(text, "[redacted]")
	}
	return text
}

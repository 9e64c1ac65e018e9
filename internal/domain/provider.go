package domain

import "context"

// Capability is a bitmask of optional behaviors a provider may support.
type Capability uint8

const (
	// CapStreaming means the provider supports incremental output.
	CapStreaming Capability = 1 << iota
	// CapNativeTools means the provider supports native function calling
	// (as opposed to text-based tool simulation).
	CapNativeTools
	// CapSystemMessages means the provider accepts a separate system prompt.
	CapSystemMessages
)

// Has reports whether all bits in want are set.
func (c Capability) Has(want Capability) bool { return c&want == want }

// Readiness is the tri-state result of a provider health check.
// "Not ready" is information for graceful degradation, not an error.
type Readiness int

const (
	// ReadinessUnknown means readiness could not be determined.
	ReadinessUnknown Readiness = iota
	// ReadinessReady means the binary is present and authenticated.
	ReadinessReady
	// ReadinessNotAuthenticated means the binary is present but needs auth.
	ReadinessNotAuthenticated
	// ReadinessNotFound means the binary was not found.
	ReadinessNotFound
)

func (r Readiness) String() string {
	switch r {
	case ReadinessReady:
		return "ready"
	case ReadinessNotAuthenticated:
		return "not_authenticated"
	case ReadinessNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Provider is the uniform contract every CLI runner implements.
// Implementations are safe for concurrent use; per-request state is never
// shared across invocations.
type Provider interface {
	// Name returns the provider's identifier (e.g., "claude-code").
	Name() string
	// DisplayName returns a human-readable provider name.
	DisplayName() string
	// Capabilities reports which optional behaviors the provider supports.
	Capabilities() Capability
	// DefaultModel returns the model used when the request does not name one.
	DefaultModel() string
	// AvailableModels returns the models the provider can serve.
	AvailableModels() []string
	// Complete performs a full (non-streaming) chat completion.
	Complete(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	// CompleteStream performs a streaming completion. Deltas are delivered in
	// child-emission order; the terminal delta has Done set and the channel is
	// closed afterwards. Cancelling ctx terminates the child process.
	CompleteStream(ctx context.Context, req ChatRequest) (<-chan StreamDelta, error)
	// HealthCheck performs a cheap, side-effect-free readiness probe.
	// "Not ready" is reported through the Readiness value, not as an error.
	HealthCheck(ctx context.Context) (Readiness, error)
}

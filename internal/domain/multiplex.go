package domain

import "time"

// MultiplexTarget names one provider/model pair in a fan-out request.
type MultiplexTarget struct {
	Provider string `json:"provider"`
	Model    string `json:"model,omitempty"`
}

// MultiplexResult is the outcome for a single target. Exactly one of
// Response and Err is set. Results are keyed by input order, not
// completion order.
type MultiplexResult struct {
	Provider string        `json:"provider"`
	Model    string        `json:"model,omitempty"`
	Response *ChatResponse `json:"response,omitempty"`
	Err      error         `json:"-"`
	Duration time.Duration `json:"-"`
}

// Package llmclient adapts the planning pipeline's two calling
// conventions (JSON-object generation, free-text generation) onto
// langchaingo's llms.Model, and provides a deterministic mock
// implementation for no_llm mode and tests.
package llmclient

import "context"

// Client is the contract every planning/repair/answer stage depends on.
// It deliberately has no notion of prompts or tools beyond plain text in,
// parsed JSON (or text) out.
type Client interface {
	// GenerateJSON sends prompt to the model and returns the decoded JSON
	// object it produced. Implementations must return a *MalformedJSONError
	// wrapping the raw text when decoding fails, never a bare parse error,
	// so callers can distinguish "model misbehaved" from "transport failed".
	GenerateJSON(ctx context.Context, prompt string) (map[string]any, error)

	// GenerateText sends prompt to the model and returns its raw text
	// response, used for natural-language answer generation.
	GenerateText(ctx context.Context, prompt string) (string, error)

	// Name identifies the concrete implementation, e.g. for deciding
	// whether LLM-based answer generation is available.
	Name() string
}

// TimeoutError is returned by a Client when the underlying call exceeded
// its deadline. Planner retries exactly once, with trimmed evidence, on
// this error specifically rather than on any other failure.
type TimeoutError struct {
	Err error
}

func (e *TimeoutError) Error() string { return "llmclient: timeout: " + e.Err.Error() }
func (e *TimeoutError) Unwrap() error { return e.Err }

// MalformedJSONError wraps a GenerateJSON response that could not be
// parsed as a JSON object, carrying the raw text for diagnostics/audit.
type MalformedJSONError struct {
	Raw string
	Err error
}

func (e *MalformedJSONError) Error() string {
	return "llmclient: model output not valid JSON: " + e.Err.Error()
}
func (e *MalformedJSONError) Unwrap() error { return e.Err }

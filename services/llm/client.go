// Package llm wraps the chat model behind a one-method interface so the
// pipeline and the SQL generator can be tested against scripted fakes.
package llm

import "context"

// GenerationParams carries the per-call sampling knobs. Nil pointers mean
// "provider default"; only the fields the OpenAI-compatible wire supports
// are exposed.
type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`
}

// LLMClient defines the standard interface for any chat model backend.
type LLMClient interface {
	Generate(ctx context.Context, prompt string, params GenerationParams) (string, error)
}

// Float32Ptr is a convenience for building GenerationParams literals.
func Float32Ptr(v float32) *float32 { return &v }

// IntPtr is a convenience for building GenerationParams literals.
func IntPtr(v int) *int { return &v }

// Package llm defines the Provider interface for chat-model backends.
//
// A provider wraps a remote or local model API (OpenAI, Anthropic, Gemini, a
// local Ollama or llama.cpp server, ...) and exposes one synchronous
// request/response call. The responder stage builds a single-turn prompt from
// each question and waits for the full reply before synthesising speech, so no
// streaming surface is needed.
//
// Implementors must be safe for concurrent use and must return promptly once
// ctx is cancelled.
package llm

import (
	"context"
	"errors"

	"github.com/MrWong99/harken/pkg/types"
)

// ErrEmptyReply is returned when the backend answered without any text.
var ErrEmptyReply = errors.New("llm: empty reply")

// Usage holds token accounting information returned by the LLM backend.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest carries everything the LLM needs to produce a response.
// At minimum Messages must be non-empty.
type CompletionRequest struct {
	// Messages is the ordered conversation. For the assistant this is a single
	// "user" turn holding the formatted prompt.
	Messages []types.Message

	// SystemPrompt is an optional instruction injected before Messages.
	SystemPrompt string

	// Temperature controls output randomness in the range [0.0, 2.0]. It is
	// always sent, so 0.0 requests greedy decoding.
	Temperature float64

	// MaxTokens caps the number of completion tokens. Zero means provider default.
	MaxTokens int
}

// CompletionResponse is returned by Complete.
type CompletionResponse struct {
	// Content is the assistant's reply, whitespace-trimmed.
	Content string

	// Model is the model that produced the reply, as reported by the backend.
	Model string

	// FinishReason is e.g. "stop" or "length".
	FinishReason string

	Usage Usage
}

// Provider is the abstraction over any chat backend.
type Provider interface {
	// Complete sends req to the model and waits for the full response.
	// Returns an error if the request fails, the reply is empty
	// ([ErrEmptyReply]) or ctx is cancelled before the completion arrives.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

// UserPrompt is a convenience constructor for a single-turn request.
func UserPrompt(prompt string, temperature float64, maxTokens int) CompletionRequest {
	return CompletionRequest{
		Messages:    []types.Message{{Role: "user", Content: prompt}},
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}
}

// Package model provides LLM chat adapters for re-ranking and synthesis.
package model

import (
	"context"
	"fmt"
)

// ChatModel is the interface all LLM chat providers implement.
//
// Implementations handle provider-specific authentication, convert the
// standard Message format to the provider's wire format, and map provider
// errors to *ProviderError. They must respect context cancellation; the
// workflow always invokes them under a stage timeout.
type ChatModel interface {
	// Chat sends a conversation to the LLM and returns the response text.
	Chat(ctx context.Context, messages []Message) (ChatOut, error)
}

// Message is a single message in an LLM conversation.
type Message struct {
	// Role identifies the sender. Use the Role* constants.
	Role string

	// Content is the message text.
	Content string
}

// Standard role constants, aligned with the conventions of the major
// providers.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatOut is the output of a chat completion.
type ChatOut struct {
	// Text is the generated response.
	Text string

	// TokensUsed is the total token count reported by the provider, zero
	// when the provider does not report usage.
	TokensUsed int
}

// ProviderError is a normalized LLM provider failure.
//
// Codes: invalid_api_key, rate_limited, quota_exceeded, timeout, api_error,
// parse_error. Retryable indicates whether a later attempt may succeed.
type ProviderError struct {
	Code      string
	Message   string
	Retryable bool
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

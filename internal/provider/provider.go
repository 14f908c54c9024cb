// Package provider holds the pipeline's two outward collaborators: the reply
// generation service and the messaging-provider delivery gateway. Both are
// narrow interfaces so the orchestrator can be tested against fakes; the HTTP
// implementations in this package are the production wiring.
package provider

import "context"

// Turn is one prior utterance handed to the generator as conversation context.
type Turn struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// GenerateRequest asks the generator for a reply to Prompt given History.
type GenerateRequest struct {
	TenantID       string `json:"tenant_id"`
	ConversationID string `json:"conversation_id"`
	History        []Turn `json:"history,omitempty"`
	Prompt         string `json:"prompt"`
}

// ReplyGenerator produces the assistant reply for an inbound message.
// Errors are retryable from the caller's point of view.
type ReplyGenerator interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

// Destination identifies where an outbound message goes: which provider,
// which channel endpoint, and which peer on the other side.
type Destination struct {
	Provider string `json:"provider"`
	Channel  string `json:"channel"`
	Peer     string `json:"peer"`
}

// Deliverer sends an outbound message through the messaging provider and
// returns the provider-assigned message id.
type Deliverer interface {
	Send(ctx context.Context, dst Destination, text string) (string, error)
}

package llm

import "context"

// Request is a single-shot generation request. The disclosure engine never
// needs multi-turn chat state; conversation history is folded into the
// prompt by the caller.
type Request struct {
	System      string
	Prompt      string
	MaxTokens   int32
	Temperature float32
	TopP        float32
}

// Response carries the generated text.
type Response struct {
	Text       string
	StopReason string
}

// Client abstracts a text generation backend. Implementations must honor
// context cancellation and deadlines.
type Client interface {
	Complete(ctx context.Context, req Request) (Response, error)
}

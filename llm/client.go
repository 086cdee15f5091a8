// Package llm provides the opaque language model capability consumed by the
// query and chat paths.
package llm

import "context"

// Message roles follow the chat completion convention.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string
	Content string
}

type Options struct {
	MaxTokens   int
	Temperature float64
}

// Client is the model capability. Chat performs a single non-streaming
// completion; ChatStream yields the response as an ordered, finite sequence
// of fragments.
type Client interface {
	Chat(ctx context.Context, messages []Message, opts Options) (string, error)
	ChatStream(ctx context.Context, messages []Message, opts Options) (Stream, error)
}

// Stream is a lazy, non-restartable fragment sequence. Recv returns io.EOF
// after the final fragment; any other error means the stream ended
// abnormally.
type Stream interface {
	Recv() (string, error)
	Close() error
}

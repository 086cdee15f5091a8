// Package chat builds the streaming conversational pipeline: per-session
// history, an optional search-augmented agent, and a bounded bridge between
// the model's token stream and the synchronous consumer.
package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/gamma-omg/contextqa/llm"
	"github.com/gamma-omg/contextqa/memory"
)

const chatSystemPrompt = "You are a helpful assistant called ContextQA that answers user inputs and questions."

const defaultBuffer = 8

// Fragment is one element of the republished token stream. A non-nil Err is
// terminal: the stream ended abnormally and no further fragments follow.
type Fragment struct {
	Text string
	Err  error
}

// Searcher is the single tool available to the internet-enabled agent.
type Searcher interface {
	Search(ctx context.Context, query string) (string, error)
}

// Engine drives one streaming chat call per invocation. Sessions are
// logically owned by a single caller; the engine does not serialize
// concurrent writers for the same session id.
type Engine struct {
	log      *slog.Logger
	model    llm.Client
	memory   memory.Store
	searcher Searcher
	buffer   int
}

func NewEngine(log *slog.Logger, model llm.Client, mem memory.Store, searcher Searcher, buffer int) *Engine {
	if log == nil {
		log = slog.Default()
	}
	if buffer <= 0 {
		buffer = defaultBuffer
	}

	return &Engine{log: log, model: model, memory: mem, searcher: searcher, buffer: buffer}
}

// Stream answers the message for the session, yielding ordered fragments
// over a bounded channel. The channel is closed after the final fragment;
// the producer stops pulling when ctx is cancelled, and the conversation
// history is appended only after the stream completes cleanly.
func (e *Engine) Stream(ctx context.Context, session, message string, internetAccess bool) <-chan Fragment {
	out := make(chan Fragment, e.buffer)

	go func() {
		defer close(out)

		if err := e.run(ctx, out, session, message, internetAccess); err != nil {
			if errors.Is(err, context.Canceled) {
				e.log.Debug("chat stream cancelled", "session", session)
				return
			}

			e.log.Error("chat stream failed", "session", session, "error", err)
			e.emit(ctx, out, Fragment{Err: err})
		}
	}()

	return out
}

func (e *Engine) run(ctx context.Context, out chan<- Fragment, session, message string, internetAccess bool) error {
	history, err := e.memory.History(ctx, session)
	if err != nil {
		return fmt.Errorf("failed to load history: %w", err)
	}

	messages := make([]llm.Message, 0, len(history)+3)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: chatSystemPrompt})
	messages = append(messages, history...)

	if internetAccess {
		observation, err := e.observe(ctx, history, message)
		if err != nil {
			// The agent degrades to plain chat when the tool fails; the
			// model call itself is the hard dependency.
			e.log.Warn("search tool failed, answering without it", "error", err)
		} else if observation != "" {
			messages = append(messages, llm.Message{
				Role:    llm.RoleSystem,
				Content: "Search results for the user's message:\n" + observation,
			})
		}
	}

	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: message})

	stream, err := e.model.ChatStream(ctx, messages, llm.Options{})
	if err != nil {
		return fmt.Errorf("failed to start model stream: %w", err)
	}
	defer stream.Close()

	var full strings.Builder
	for {
		frag, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("model stream failed: %w", err)
		}

		if !e.emit(ctx, out, Fragment{Text: frag}) {
			// Consumer is gone; stop pulling and leave history untouched.
			return ctx.Err()
		}
		full.WriteString(frag)
	}

	err = e.memory.Append(ctx, session,
		llm.Message{Role: llm.RoleUser, Content: message},
		llm.Message{Role: llm.RoleAssistant, Content: full.String()},
	)
	if err != nil {
		return fmt.Errorf("failed to append conversation turn: %w", err)
	}

	return nil
}

// emit delivers a fragment, respecting consumer backpressure. It reports
// false when the context was cancelled instead.
func (e *Engine) emit(ctx context.Context, out chan<- Fragment, f Fragment) bool {
	// Cancellation wins over a ready buffer slot.
	select {
	case <-ctx.Done():
		return false
	default:
	}

	select {
	case out <- f:
		return true
	case <-ctx.Done():
		return false
	}
}

// observe runs the single search tool: the model condenses the message and
// recent history into a search query, then the tool fetches results.
func (e *Engine) observe(ctx context.Context, history []llm.Message, message string) (string, error) {
	if e.searcher == nil {
		return "", errors.New("no search capability configured")
	}

	prompt := "Rewrite the user's message as a short web search query. " +
		"Return only the query, nothing else.\n\nMessage: " + message
	if len(history) > 0 {
		last := history[len(history)-1]
		prompt += "\nPrevious turn: " + last.Content
	}

	query, err := e.model.Chat(ctx, []llm.Message{{Role: llm.RoleUser, Content: prompt}}, llm.Options{MaxTokens: 100})
	if err != nil {
		return "", fmt.Errorf("failed to derive search query: %w", err)
	}
	query = strings.TrimSpace(strings.Trim(strings.TrimSpace(query), `"`))
	if query == "" {
		query = message
	}

	return e.searcher.Search(ctx, query)
}

package llmcluster

import (
	"context"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/corpusloop/platform/internal/apierr"
)

// AnthropicBackend adapts the Anthropic Messages API to the Backend
// interface. It is grounded on goa-ai's anthropic.Client/anthropicStreamer:
// the same ssestream.Stream[sdk.MessageStreamEventUnion] event-union switch,
// narrowed to ContentBlockDeltaEvent/TextDelta since this package only
// needs plain text deltas, not tool calls or thinking blocks.
type AnthropicBackend struct {
	id        string
	client    sdk.Client
	maxTokens int64
	models    []string
}

// NewAnthropicBackend builds an Anthropic backend with the given default
// completion cap. models restricts routing to the given model IDs; pass
// none to let this backend serve any model requested of it.
func NewAnthropicBackend(id, apiKey string, maxTokens int64, models ...string) *AnthropicBackend {
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &AnthropicBackend{
		id:        id,
		client:    sdk.NewClient(option.WithAPIKey(apiKey)),
		maxTokens: maxTokens,
		models:    models,
	}
}

func (b *AnthropicBackend) ID() string      { return b.id }
func (b *AnthropicBackend) Kind() string    { return "anthropic" }
func (b *AnthropicBackend) Models() []string { return b.models }

func (b *AnthropicBackend) buildParams(model string, messages []ChatMessage) sdk.MessageNewParams {
	params := sdk.MessageNewParams{
		Model:     sdk.Model(model),
		MaxTokens: b.maxTokens,
	}
	for _, m := range messages {
		switch m.Role {
		case "system":
			params.System = []sdk.TextBlockParam{{Text: m.Content}}
		case "assistant":
			params.Messages = append(params.Messages, sdk.NewAssistantMessage(sdk.NewTextBlock(m.Content)))
		default:
			params.Messages = append(params.Messages, sdk.NewUserMessage(sdk.NewTextBlock(m.Content)))
		}
	}
	return params
}

// ChatStream issues a streaming Messages request and relays each text
// content-block delta as a StreamEvent, ignoring tool-use and thinking
// blocks (the platform routes those through the Action Dispatcher, not the
// raw model stream).
func (b *AnthropicBackend) ChatStream(ctx context.Context, model string, messages []ChatMessage) (<-chan StreamEvent, error) {
	params := b.buildParams(model, messages)
	stream := b.client.Messages.NewStreaming(ctx, params)
	if err := stream.Err(); err != nil {
		return nil, apierr.Wrap(apierr.KindUpstreamTransient, "start anthropic stream", err)
	}

	out := make(chan StreamEvent)
	go func() {
		defer close(out)
		defer stream.Close()
		for stream.Next() {
			event := stream.Current()
			switch ev := event.AsAny().(type) {
			case sdk.ContentBlockDeltaEvent:
				if delta, ok := ev.Delta.AsAny().(sdk.TextDelta); ok && delta.Text != "" {
					select {
					case out <- StreamEvent{Delta: delta.Text}:
					case <-ctx.Done():
						return
					}
				}
			}
		}
		out <- StreamEvent{Done: true}
	}()
	return out, nil
}

// HealthCheck issues a minimal-token completion to confirm the backend is
// reachable and authenticating correctly.
func (b *AnthropicBackend) HealthCheck(ctx context.Context) error {
	_, err := b.client.Messages.New(ctx, sdk.MessageNewParams{
		Model:     sdk.ModelClaude3_5HaikuLatest,
		MaxTokens: 1,
		Messages:  []sdk.MessageParam{sdk.NewUserMessage(sdk.NewTextBlock("ping"))},
	})
	if err != nil {
		return apierr.Wrap(apierr.KindBackendUnavailable, "anthropic health check", err)
	}
	return nil
}

package llmcluster

import (
	"context"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/corpusloop/platform/internal/apierr"
)

// OpenAIBackend adapts the OpenAI chat completions API (or any
// OpenAI-compatible gateway reachable at baseURL) to the Backend
// interface. It is grounded on the teacher's ChatModel.stream method:
// same accumulator-free per-chunk relay, generalized to this package's
// plain ChatMessage/StreamEvent shape instead of the teacher's
// chat.Request/chat.Response types.
type OpenAIBackend struct {
	id     string
	client openai.Client
	models []string
}

// NewOpenAIBackend builds an OpenAI-compatible backend. baseURL may be
// empty to use api.openai.com. models restricts routing to the given model
// IDs; pass none to let this backend serve any model requested of it.
func NewOpenAIBackend(id, apiKey, baseURL string, models ...string) *OpenAIBackend {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIBackend{id: id, client: openai.NewClient(opts...), models: models}
}

func (b *OpenAIBackend) ID() string      { return b.id }
func (b *OpenAIBackend) Kind() string    { return "openai" }
func (b *OpenAIBackend) Models() []string { return b.models }

func (b *OpenAIBackend) buildMessages(messages []ChatMessage) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case "system":
			out = append(out, openai.SystemMessage(m.Content))
		case "assistant":
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

// ChatStream issues a streaming chat completion and relays each chunk's
// text delta as a StreamEvent.
func (b *OpenAIBackend) ChatStream(ctx context.Context, model string, messages []ChatMessage) (<-chan StreamEvent, error) {
	params := openai.ChatCompletionNewParams{
		Model:    model,
		Messages: b.buildMessages(messages),
	}

	stream := b.client.Chat.Completions.NewStreaming(ctx, params)
	if err := stream.Err(); err != nil {
		return nil, apierr.Wrap(apierr.KindUpstreamTransient, "start openai stream", err)
	}

	out := make(chan StreamEvent)
	go func() {
		defer close(out)
		defer stream.Close()
		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) > 0 {
				if delta := chunk.Choices[0].Delta.Content; delta != "" {
					select {
					case out <- StreamEvent{Delta: delta}:
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

// HealthCheck lists the backend's models to confirm it is reachable and
// authenticating correctly.
func (b *OpenAIBackend) HealthCheck(ctx context.Context) error {
	_, err := b.client.Models.List(ctx)
	if err != nil {
		return apierr.Wrap(apierr.KindBackendUnavailable, "openai health check", err)
	}
	return nil
}

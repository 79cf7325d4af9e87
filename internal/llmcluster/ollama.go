package llmcluster

import (
	"context"
	"net/http"
	"net/url"
	"sync"

	"github.com/ollama/ollama/api"

	"github.com/corpusloop/platform/internal/apierr"
)

// OllamaBackend adapts a self-hosted Ollama server to the Backend
// interface. The corpus carries github.com/ollama/ollama as a dependency
// without a reference call site, so this adapter follows the same shape as
// OpenAIBackend/AnthropicBackend: build a typed request, drive the SDK's
// streaming entry point with a callback, and relay each increment over a
// channel.
type OllamaBackend struct {
	id     string
	client *api.Client
	models []string
}

// NewOllamaBackend builds a backend against an Ollama server reachable at
// baseURL (e.g. "http://localhost:11434"). models should list the models
// pulled on that server; an Ollama backend given no model in the request
// won't serve it, so leaving this empty effectively opts the backend out of
// model-restricted routing decisions (it will be tried for any model).
func NewOllamaBackend(id, baseURL string, models ...string) (*OllamaBackend, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, apierr.Wrap(apierr.KindValidation, "invalid ollama base url", err)
	}
	return &OllamaBackend{id: id, client: api.NewClient(u, http.DefaultClient), models: models}, nil
}

func (b *OllamaBackend) ID() string      { return b.id }
func (b *OllamaBackend) Kind() string    { return "ollama" }
func (b *OllamaBackend) Models() []string { return b.models }

func (b *OllamaBackend) buildMessages(messages []ChatMessage) []api.Message {
	out := make([]api.Message, 0, len(messages))
	for _, m := range messages {
		out = append(out, api.Message{Role: m.Role, Content: m.Content})
	}
	return out
}

// ChatStream drives api.Client.Chat with streaming enabled, relaying each
// partial response as a StreamEvent.
func (b *OllamaBackend) ChatStream(ctx context.Context, model string, messages []ChatMessage) (<-chan StreamEvent, error) {
	stream := true
	req := &api.ChatRequest{
		Model:    model,
		Messages: b.buildMessages(messages),
		Stream:   &stream,
	}

	// api.Client.Chat blocks for the whole exchange, invoking fn per
	// increment; there is no separate "connect" step. ChatStream waits
	// for the first increment or for Chat to return, so a failure before
	// any increment (a refused connection, an error status) is returned
	// as an error and the cluster fails over to the next backend.
	out := make(chan StreamEvent)
	started := make(chan struct{})
	errc := make(chan error, 1)
	var once sync.Once
	go func() {
		defer close(out)
		errc <- b.client.Chat(ctx, req, func(resp api.ChatResponse) error {
			once.Do(func() { close(started) })
			if resp.Message.Content != "" {
				select {
				case out <- StreamEvent{Delta: resp.Message.Content}:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			if resp.Done {
				select {
				case out <- StreamEvent{Done: true}:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			return nil
		})
	}()
	select {
	case <-started:
		return out, nil
	case err := <-errc:
		if err != nil {
			return nil, apierr.Wrap(apierr.KindUpstreamTransient, "start ollama stream", err)
		}
		return out, nil
	}
}

// HealthCheck calls the Ollama heartbeat endpoint.
func (b *OllamaBackend) HealthCheck(ctx context.Context) error {
	if err := b.client.Heartbeat(ctx); err != nil {
		return apierr.Wrap(apierr.KindBackendUnavailable, "ollama health check", err)
	}
	return nil
}

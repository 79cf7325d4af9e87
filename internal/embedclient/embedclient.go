// Package embedclient wraps the OpenAI embeddings endpoint used by both
// the Embedding Worker (chunk embedding) and the Retriever (query
// embedding). It is grounded on the teacher's openai extension API wrapper
// (ai/extensions/models/openai/api.go's client.Embeddings.New call and
// request-building shape), trimmed to the platform's single concern: text
// in, float32 vectors out.
package embedclient

import (
	"context"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/corpusloop/platform/internal/apierr"
)

// Client embeds text using a configured OpenAI-compatible endpoint.
type Client struct {
	api        openai.Client
	model      string
	dimensions int
}

// New builds a Client. baseURL lets the platform point at an
// OpenAI-compatible gateway instead of api.openai.com, matching how
// on-prem deployments usually run this.
func New(apiKey, baseURL, model string, dimensions int) *Client {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &Client{
		api:        openai.NewClient(opts...),
		model:      model,
		dimensions: dimensions,
	}
}

// Dimensions returns the configured embedding width, used by the Vector
// Index to size new collections.
func (c *Client) Dimensions() int { return c.dimensions }

// Embed batches text inputs into a single embeddings call and returns one
// vector per input in the same order.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	params := openai.EmbeddingNewParams{
		Model: c.model,
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
	}
	if c.dimensions > 0 {
		params.Dimensions = openai.Int(int64(c.dimensions))
	}

	resp, err := c.api.Embeddings.New(ctx, params)
	if err != nil {
		return nil, apierr.Wrap(apierr.KindUpstreamTransient, "embed text", err)
	}

	out := make([][]float32, len(resp.Data))
	for _, d := range resp.Data {
		vec := make([]float32, len(d.Embedding))
		for i, v := range d.Embedding {
			vec[i] = float32(v)
		}
		out[d.Index] = vec
	}
	return out, nil
}

// EmbedOne is a convenience wrapper for a single piece of text, used for
// query-time embedding in the Retriever.
func (c *Client) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, apierr.New(apierr.KindUpstreamTransient, "embedding backend returned no vectors")
	}
	return vecs[0], nil
}

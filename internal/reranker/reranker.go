// Package reranker is the best-effort cross-encoder refinement stage that
// runs after reciprocal rank fusion in internal/retriever. There is no
// dedicated rerank endpoint in the teacher or the rest of the retrieved
// corpus, so this is grounded on two sources: internal/embedclient's
// openai-go client construction (API key, optional OpenAI-compatible base
// URL) and the LLM-as-reranker scoring prompt from a sibling RAG pipeline
// in the example pack (rerankMessagesWithLLM: ask the model for a JSON
// array of 0-10 relevance scores, one per candidate, then sort by score).
// A single non-streaming chat completion replaces a real cross-encoder
// model, since the corpus has no client for one.
package reranker

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/corpusloop/platform/internal/apierr"
)

// Candidate is one fused match offered up for reranking.
type Candidate struct {
	ChunkID string
	Text    string
}

// Client scores candidates against a query using a chat completion model.
type Client struct {
	api   openai.Client
	model string
}

// New builds a Client. baseURL may be empty to use api.openai.com. model is
// config.RerankModel; callers should not construct a Client when it is
// empty, since an empty model name cannot be dispatched.
func New(apiKey, baseURL, model string) *Client {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &Client{api: openai.NewClient(opts...), model: model}
}

// Rerank scores every candidate's relevance to query and returns their
// ChunkIDs ordered best-first. It is a single non-streaming completion
// call, not a loop, so a reranking pass costs one round trip regardless of
// candidate count.
func (c *Client) Rerank(ctx context.Context, query string, candidates []Candidate) ([]string, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	resp, err := c.api.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       c.model,
		Temperature: openai.Float(0),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(
				"You are a relevance scoring system. Given a query and a numbered list of " +
					"passages, score each passage's relevance to the query from 0 to 10. " +
					"Respond with ONLY a JSON array of numbers in the same order as the " +
					"passages, e.g. [8.5, 1.0, 9.5].",
			),
			openai.UserMessage(buildScoringPrompt(query, candidates)),
		},
	})
	if err != nil {
		return nil, apierr.Wrap(apierr.KindUpstreamTransient, "rerank candidates", err)
	}
	if len(resp.Choices) == 0 {
		return nil, apierr.New(apierr.KindUpstreamTransient, "rerank backend returned no choices")
	}

	scores, err := parseScores(resp.Choices[0].Message.Content, len(candidates))
	if err != nil {
		return nil, err
	}

	order := make([]int, len(candidates))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool { return scores[order[i]] > scores[order[j]] })

	ids := make([]string, len(candidates))
	for i, idx := range order {
		ids[i] = candidates[idx].ChunkID
	}
	return ids, nil
}

func buildScoringPrompt(query string, candidates []Candidate) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Query: %s\n\nPassages:\n", query)
	for i, c := range candidates {
		fmt.Fprintf(&b, "%d. %s\n", i+1, c.Text)
	}
	return b.String()
}

// parseScores extracts a JSON array of scores from a completion, tolerating
// a markdown code fence around it since chat models routinely add one
// despite being told not to.
func parseScores(content string, want int) ([]float64, error) {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		lines := strings.Split(content, "\n")
		for i, line := range lines {
			if strings.HasPrefix(strings.TrimSpace(line), "[") {
				content = strings.Join(lines[i:], "\n")
				break
			}
		}
		content = strings.TrimSuffix(strings.TrimSpace(content), "```")
	}

	var scores []float64
	if err := json.Unmarshal([]byte(content), &scores); err != nil {
		return nil, apierr.Wrap(apierr.KindUpstreamTransient, "parse rerank scores", err)
	}
	if len(scores) != want {
		return nil, apierr.New(apierr.KindUpstreamTransient,
			fmt.Sprintf("rerank backend returned %d scores, expected %d", len(scores), want))
	}
	return scores, nil
}

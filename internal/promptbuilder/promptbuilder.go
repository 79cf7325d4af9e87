// Package promptbuilder is the Prompt Builder component: it compiles a
// project's system prompt, retrieved context chunks, and the current
// conversation turn into a bounded message sequence for the LLM Cluster.
// It is grounded on the teacher's ai/chat/prompt.Builder fluent-builder
// shape (WithContent/WithMessages/Build), generalized from a single
// user-content builder into one that assembles the platform's three-part
// system/context/user message sequence and enforces a token budget.
package promptbuilder

import (
	"fmt"
	"strings"

	"github.com/corpusloop/platform/internal/domain"
	"github.com/corpusloop/platform/internal/llmcluster"
	"github.com/corpusloop/platform/internal/textutil"
)

// NoAnswerSentinel is the structured phrase the system message instructs
// the model to emit verbatim when retrieved context cannot ground an
// answer. The orchestrator matches on this exact string to record an
// Unanswered Question.
const NoAnswerSentinel = "I don't have that in the knowledge base."

// Citation is one retrieved excerpt rendered into the context message,
// numbered for the model to reference as "[n]".
type Citation struct {
	Index      int
	DocumentID string
	SourceURL  string
	Title      string
	Excerpt    string
	Score      float64
}

// Turn is one prior exchange in the bounded conversation history.
type Turn struct {
	Role string // "user" | "assistant"
	Text string
}

// TokenCounter estimates the token cost of a string, used to enforce the
// prompt's configured budget. internal/chunker.Splitter satisfies this.
type TokenCounter interface {
	CountTokens(text string) int
}

// Builder assembles prompts for one project's configuration.
type Builder struct {
	counter       TokenCounter
	maxTokens     int
	maxExcerptLen int
}

// Option configures a Builder.
type Option func(*Builder)

// WithMaxTokens overrides the default 3000-token context budget.
func WithMaxTokens(n int) Option {
	return func(b *Builder) {
		if n > 0 {
			b.maxTokens = n
		}
	}
}

// New builds a prompt Builder using the given token counter.
func New(counter TokenCounter, opts ...Option) *Builder {
	b := &Builder{counter: counter, maxTokens: 3000, maxExcerptLen: 600}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Result is a compiled prompt ready for the LLM Cluster, plus the
// citations that actually survived budget trimming (for the orchestrator's
// terminal `sources` event).
type Result struct {
	Messages  []llmcluster.ChatMessage
	Citations []Citation
}

// Build compiles the system prompt, bounded history, retrieved chunks, and
// user turn into a message sequence. Chunks are assumed pre-sorted
// best-first by the Retriever; when the context would exceed maxTokens,
// lowest-scored chunks are dropped first.
func (b *Builder) Build(project domain.Project, history []Turn, chunks []Citation, userMessage string) Result {
	system := systemMessage(project.SystemPrompt)
	systemTokens := b.counter.CountTokens(system)

	historyMsgs := make([]llmcluster.ChatMessage, 0, len(history))
	historyTokens := 0
	for _, t := range history {
		historyMsgs = append(historyMsgs, llmcluster.ChatMessage{Role: t.Role, Content: t.Text})
		historyTokens += b.counter.CountTokens(t.Text)
	}

	userTokens := b.counter.CountTokens(userMessage)
	budget := b.maxTokens - systemTokens - historyTokens - userTokens
	kept := b.fitContext(chunks, budget)

	messages := make([]llmcluster.ChatMessage, 0, len(historyMsgs)+3)
	messages = append(messages, llmcluster.ChatMessage{Role: "system", Content: system})
	if ctx := contextMessage(kept); ctx != "" {
		messages = append(messages, llmcluster.ChatMessage{Role: "system", Content: ctx})
	}
	messages = append(messages, historyMsgs...)
	messages = append(messages, llmcluster.ChatMessage{Role: "user", Content: userMessage})

	return Result{Messages: messages, Citations: kept}
}

// fitContext keeps best-scored citations first, truncating each excerpt to
// a sentence boundary and dropping lowest-scored citations once the
// remaining budget is exhausted. Citations are assumed already ordered
// best-first by the caller (the Retriever's fused ranking).
func (b *Builder) fitContext(chunks []Citation, budget int) []Citation {
	if budget <= 0 {
		return nil
	}
	kept := make([]Citation, 0, len(chunks))
	spent := 0
	for _, c := range chunks {
		c.Excerpt = textutil.TruncateToSentence(c.Excerpt, b.maxExcerptLen)
		cost := b.counter.CountTokens(c.Excerpt)
		if spent+cost > budget {
			break
		}
		spent += cost
		kept = append(kept, c)
	}
	return kept
}

func systemMessage(projectPrompt string) string {
	var sb strings.Builder
	sb.WriteString(strings.TrimSpace(projectPrompt))
	sb.WriteString("\n\n")
	sb.WriteString("Ground every answer in the context provided below. ")
	sb.WriteString("If the context does not contain enough information to answer, ")
	sb.WriteString("reply with exactly this sentence and nothing else: \"")
	sb.WriteString(NoAnswerSentinel)
	sb.WriteString("\"")
	return sb.String()
}

func contextMessage(citations []Citation) string {
	if len(citations) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("Context:\n")
	for _, c := range citations {
		label := c.Title
		if label == "" {
			label = c.SourceURL
		}
		fmt.Fprintf(&sb, "[%d] %s\n%s\n\n", c.Index, label, c.Excerpt)
	}
	return strings.TrimRight(sb.String(), "\n")
}

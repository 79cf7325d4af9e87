// Package orchestrator is the Answer Orchestrator component: the
// top-level answer(project, user_msg, session_ctx) -> stream<event> path
// that ties every other component together. It is grounded on the
// teacher's ai/rag.Pipeline for the retrieve-then-generate shape and on
// ai/chat for turning a streamed completion into terminal chat events,
// generalized here into the platform's closed event set (token, sources,
// actions, done, error) plus the side effects spec.md attaches to it:
// action-directive dispatch and unanswered-question logging.
package orchestrator

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/corpusloop/platform/internal/apierr"
	"github.com/corpusloop/platform/internal/domain"
	"github.com/corpusloop/platform/internal/llmcluster"
	"github.com/corpusloop/platform/internal/promptbuilder"
	"github.com/corpusloop/platform/internal/ratelimit"
	"github.com/corpusloop/platform/internal/retriever"
)

// Event is one item of the orchestrator's output stream. Name is the wire
// event name from spec.md's SSE contract ("token", "sources", "actions",
// "done", "error"); Data is whatever that event carries, JSON-marshaled
// as-is by the transport layer (SSE over HTTP, or a WebSocket frame for a
// voice session).
type Event struct {
	Name string
	Data any
}

// TokenPayload is one increment of streamed answer text.
type TokenPayload struct {
	Text  string `json:"text"`
	Index int    `json:"index"`
}

// SourcePayload is one citation in the terminal sources event.
type SourcePayload struct {
	ID    string `json:"id"`
	URL   string `json:"url"`
	Title string `json:"title"`
}

// ActionPayload reports the outcome of one dispatched action directive.
type ActionPayload struct {
	Kind   string `json:"kind"`
	Status string `json:"status"`
}

// ErrorPayload is the terminal error event body.
type ErrorPayload struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Request is one chat turn handed to the orchestrator. History is the
// session's bounded prior turns, supplied by the caller (the HTTP chat
// handler or the voice session manager) since the orchestrator itself
// holds no session state.
type Request struct {
	ProjectSlug string
	SourceIP    string
	UserID      string
	SessionID   string
	Message     string
	History     []promptbuilder.Turn
}

// Gate is the rate limiter dependency. internal/ratelimit.Gate satisfies
// this.
type Gate interface {
	Check(ctx context.Context, dim ratelimit.Dimension, subject string) error
}

// Projects resolves and records project-scoped state.
// internal/project.Registry satisfies this.
type Projects interface {
	RequireEnabled(ctx context.Context, slug string) (domain.Project, error)
	IncrementRequestCount(ctx context.Context, projectID string, at time.Time) error
	RecordUnanswered(ctx context.Context, q domain.UnansweredQuestion) error
}

// Retriever resolves a question into ranked context.
// internal/retriever.Retriever satisfies this.
type Retriever interface {
	Retrieve(ctx context.Context, projectID, query string) (retriever.Result, error)
}

// PromptBuilder compiles a prompt from project, history and context.
// internal/promptbuilder.Builder satisfies this.
type PromptBuilder interface {
	Build(project domain.Project, history []promptbuilder.Turn, chunks []promptbuilder.Citation, userMessage string) promptbuilder.Result
}

// Cluster streams a chat completion. internal/llmcluster.Cluster
// satisfies this.
type Cluster interface {
	Stream(ctx context.Context, projectID, model string, messages []llmcluster.ChatMessage) (<-chan llmcluster.StreamEvent, error)
}

// ActionQueue enqueues a model-requested side effect.
// internal/actions.Dispatcher satisfies this.
type ActionQueue interface {
	Enqueue(ctx context.Context, projectID, requestID string, kind domain.ActionKind, payload map[string]any) (domain.ActionJob, error)
}

// Orchestrator wires the Request Gate, project registry, retriever,
// prompt builder, LLM cluster and action queue behind the single answer
// path.
type Orchestrator struct {
	gate     Gate
	projects Projects
	retrieve Retriever
	build    PromptBuilder
	cluster  Cluster
	actions  ActionQueue

	eventBuffer int
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithEventBuffer overrides the default buffered channel size for the
// returned event stream.
func WithEventBuffer(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.eventBuffer = n
		}
	}
}

// New builds an Orchestrator. actions may be nil for a deployment that
// runs with action dispatch disabled; any directive the model emits is
// then reported back with a Failed status instead of being queued.
func New(gate Gate, projects Projects, retrieve Retriever, build PromptBuilder, cluster Cluster, actions ActionQueue, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		gate:        gate,
		projects:    projects,
		retrieve:    retrieve,
		build:       build,
		cluster:     cluster,
		actions:     actions,
		eventBuffer: 16,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Answer runs the Request Gate and project resolution synchronously
// (their failures map to a pre-stream HTTP status: 400, 404, 429) and
// then returns a stream of events for everything downstream. Failures
// past this point — retrieval, starting the LLM call — are reported as a
// terminal "error" event on the stream rather than a returned error,
// matching spec.md's rule that a streaming response may fail after tokens
// have already been sent. An action that cannot be queued is reported
// with a failed status in the "actions" event instead.
func (o *Orchestrator) Answer(ctx context.Context, req Request) (<-chan Event, error) {
	if strings.TrimSpace(req.ProjectSlug) == "" {
		return nil, apierr.New(apierr.KindValidation, "project is required")
	}
	if strings.TrimSpace(req.Message) == "" {
		return nil, apierr.Validation("message", "message is required")
	}

	if err := o.gate.Check(ctx, ratelimit.DimensionWriteIP, req.SourceIP); err != nil {
		return nil, err
	}
	if req.UserID != "" {
		if err := o.gate.Check(ctx, ratelimit.DimensionUserHourly, req.UserID); err != nil {
			return nil, err
		}
	}

	project, err := o.projects.RequireEnabled(ctx, req.ProjectSlug)
	if err != nil {
		return nil, err
	}

	requestID := uuid.NewString()
	out := make(chan Event, o.eventBuffer)
	go o.run(ctx, requestID, project, req, out)
	return out, nil
}

func (o *Orchestrator) run(ctx context.Context, requestID string, project domain.Project, req Request, out chan<- Event) {
	defer close(out)

	result, err := o.retrieve.Retrieve(ctx, project.Slug, req.Message)
	if err != nil {
		o.emitError(ctx, out, err)
		return
	}

	if result.QAAnswer != "" {
		o.answerDirectly(ctx, requestID, project, req.Message, nil, result.QAAnswer, out)
		return
	}

	citations := toCitations(result.Matches)
	prompt := o.build.Build(project, req.History, citations, req.Message)

	stream, err := o.cluster.Stream(ctx, project.Slug, project.Model, prompt.Messages)
	if err != nil {
		o.emitError(ctx, out, err)
		return
	}

	full, ok := o.relayTokens(ctx, stream, out)
	if !ok {
		return
	}

	o.finish(ctx, requestID, project, req.Message, prompt.Citations, full, out)
}

// relayTokens drains the LLM stream into the output channel as token
// events, returning the accumulated text. ok is false when the context
// was cancelled before the stream finished, in which case the caller must
// not emit terminal events for a response that was never completed.
func (o *Orchestrator) relayTokens(ctx context.Context, stream <-chan llmcluster.StreamEvent, out chan<- Event) (string, bool) {
	var sb strings.Builder
	index := 0
	for {
		select {
		case <-ctx.Done():
			return sb.String(), false
		case ev, open := <-stream:
			if !open {
				return sb.String(), true
			}
			if ev.Delta != "" {
				out <- Event{Name: "token", Data: TokenPayload{Text: ev.Delta, Index: index}}
				sb.WriteString(ev.Delta)
				index++
			}
			if ev.Done {
				return sb.String(), true
			}
		}
	}
}

// answerDirectly streams a curated QA pair's answer as a single token
// without going through the LLM cluster or action scanning: a QA pair is
// a literal answer, not a model turn that might carry an action
// directive.
func (o *Orchestrator) answerDirectly(ctx context.Context, requestID string, project domain.Project, question string, citations []promptbuilder.Citation, answer string, out chan<- Event) {
	out <- Event{Name: "token", Data: TokenPayload{Text: answer, Index: 0}}
	o.emitSources(out, citations)
	out <- Event{Name: "actions", Data: []ActionPayload{}}
	out <- Event{Name: "done", Data: struct{}{}}
	o.recordStats(ctx, project, question, answer)
}

func (o *Orchestrator) finish(ctx context.Context, requestID string, project domain.Project, question string, citations []promptbuilder.Citation, full string, out chan<- Event) {
	directive, answerText := extractDirective(full)

	o.emitSources(out, citations)
	out <- Event{Name: "actions", Data: o.dispatchActions(ctx, requestID, project, directive)}
	out <- Event{Name: "done", Data: struct{}{}}

	o.recordStats(ctx, project, question, answerText)
}

func (o *Orchestrator) dispatchActions(ctx context.Context, requestID string, project domain.Project, env directiveEnvelope) []ActionPayload {
	refs := make([]ActionPayload, 0, len(env.Actions))
	for _, a := range env.Actions {
		if o.actions == nil {
			refs = append(refs, ActionPayload{Kind: a.Kind, Status: string(domain.ActionFailed)})
			continue
		}
		job, err := o.actions.Enqueue(ctx, project.Slug, requestID, domain.ActionKind(a.Kind), a.Payload)
		status := string(job.Status)
		if err != nil {
			status = string(domain.ActionFailed)
		}
		refs = append(refs, ActionPayload{Kind: a.Kind, Status: status})
	}
	return refs
}

func (o *Orchestrator) recordStats(ctx context.Context, project domain.Project, question, answer string) {
	_ = o.projects.IncrementRequestCount(ctx, project.Slug, time.Now())
	if strings.TrimSpace(answer) == promptbuilder.NoAnswerSentinel {
		_ = o.projects.RecordUnanswered(ctx, domain.UnansweredQuestion{
			ID:        uuid.NewString(),
			ProjectID: project.Slug,
			Question:  question,
		})
	}
}

func (o *Orchestrator) emitSources(out chan<- Event, citations []promptbuilder.Citation) {
	refs := make([]SourcePayload, 0, len(citations))
	for _, c := range citations {
		refs = append(refs, SourcePayload{ID: c.DocumentID, URL: c.SourceURL, Title: c.Title})
	}
	out <- Event{Name: "sources", Data: refs}
}

func (o *Orchestrator) emitError(ctx context.Context, out chan<- Event, err error) {
	kind := string(apierr.KindInternal)
	msg := "internal error"
	var ae *apierr.Error
	if errors.As(err, &ae) {
		kind = string(ae.Kind)
		msg = ae.Message
	}
	select {
	case <-ctx.Done():
	case out <- Event{Name: "error", Data: ErrorPayload{Kind: kind, Message: msg}}:
	}
}

func toCitations(matches []retriever.Match) []promptbuilder.Citation {
	out := make([]promptbuilder.Citation, 0, len(matches))
	for i, m := range matches {
		out = append(out, promptbuilder.Citation{
			Index:      i + 1,
			DocumentID: m.DocumentID,
			SourceURL:  m.SourceURL,
			Title:      m.Title,
			Excerpt:    m.Text,
			Score:      m.Score,
		})
	}
	return out
}

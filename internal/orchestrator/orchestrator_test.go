package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/corpusloop/platform/internal/apierr"
	"github.com/corpusloop/platform/internal/domain"
	"github.com/corpusloop/platform/internal/llmcluster"
	"github.com/corpusloop/platform/internal/promptbuilder"
	"github.com/corpusloop/platform/internal/ratelimit"
	"github.com/corpusloop/platform/internal/retriever"
)

type fakeGate struct {
	err error
}

func (g *fakeGate) Check(ctx context.Context, dim ratelimit.Dimension, subject string) error {
	return g.err
}

type fakeProjects struct {
	project    domain.Project
	err        error
	increments int
	unanswered []domain.UnansweredQuestion
}

func (p *fakeProjects) RequireEnabled(ctx context.Context, slug string) (domain.Project, error) {
	if p.err != nil {
		return domain.Project{}, p.err
	}
	return p.project, nil
}

func (p *fakeProjects) IncrementRequestCount(ctx context.Context, projectID string, at time.Time) error {
	p.increments++
	return nil
}

func (p *fakeProjects) RecordUnanswered(ctx context.Context, q domain.UnansweredQuestion) error {
	p.unanswered = append(p.unanswered, q)
	return nil
}

type fakeRetriever struct {
	result retriever.Result
	err    error
}

func (r *fakeRetriever) Retrieve(ctx context.Context, projectID, query string) (retriever.Result, error) {
	return r.result, r.err
}

type fakeBuilder struct{}

func (fakeBuilder) Build(project domain.Project, history []promptbuilder.Turn, chunks []promptbuilder.Citation, userMessage string) promptbuilder.Result {
	return promptbuilder.Result{
		Messages:  []llmcluster.ChatMessage{{Role: "user", Content: userMessage}},
		Citations: chunks,
	}
}

type fakeCluster struct {
	events []llmcluster.StreamEvent
	err    error
}

func (c *fakeCluster) Stream(ctx context.Context, projectID, model string, messages []llmcluster.ChatMessage) (<-chan llmcluster.StreamEvent, error) {
	if c.err != nil {
		return nil, c.err
	}
	ch := make(chan llmcluster.StreamEvent, len(c.events))
	for _, e := range c.events {
		ch <- e
	}
	close(ch)
	return ch, nil
}

type fakeActions struct {
	jobs []domain.ActionJob
}

func (a *fakeActions) Enqueue(ctx context.Context, projectID, requestID string, kind domain.ActionKind, payload map[string]any) (domain.ActionJob, error) {
	job := domain.ActionJob{ID: "job-1", ProjectID: projectID, RequestID: requestID, Kind: kind, Payload: payload, Status: domain.ActionPending}
	a.jobs = append(a.jobs, job)
	return job, nil
}

func drain(t *testing.T, ch <-chan Event) []Event {
	t.Helper()
	var out []Event
	timeout := time.After(2 * time.Second)
	for {
		select {
		case e, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, e)
		case <-timeout:
			t.Fatal("timed out draining event stream")
		}
	}
}

func eventNames(events []Event) []string {
	names := make([]string, len(events))
	for i, e := range events {
		names[i] = e.Name
	}
	return names
}

func TestAnswerHappyPathStreamsTokensSourcesAndDone(t *testing.T) {
	projects := &fakeProjects{project: domain.Project{Slug: "demo", Model: "gpt-4o"}}
	cluster := &fakeCluster{events: []llmcluster.StreamEvent{
		{Delta: "The capital "}, {Delta: "is Sunhaven."}, {Done: true, FinishedBy: "openai-1"},
	}}
	retr := &fakeRetriever{result: retriever.Result{Matches: []retriever.Match{
		{ChunkID: "c1", DocumentID: "doc-1", Text: "The capital of Atlantis is Sunhaven.", Title: "Atlantis", Score: 0.9},
	}}}
	o := New(&fakeGate{}, projects, retr, fakeBuilder{}, cluster, &fakeActions{})

	stream, err := o.Answer(context.Background(), Request{ProjectSlug: "demo", Message: "What is the capital?"})
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	events := drain(t, stream)
	names := eventNames(events)
	want := []string{"token", "token", "sources", "actions", "done"}
	if len(names) != len(want) {
		t.Fatalf("events = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("events = %v, want %v", names, want)
		}
	}
	sources, ok := events[2].Data.([]SourcePayload)
	if !ok || len(sources) != 1 || sources[0].ID != "doc-1" {
		t.Fatalf("sources payload = %#v", events[2].Data)
	}
	if projects.increments != 1 {
		t.Fatalf("IncrementRequestCount called %d times, want 1", projects.increments)
	}
	if len(projects.unanswered) != 0 {
		t.Fatalf("expected no unanswered question logged, got %d", len(projects.unanswered))
	}
}

func TestAnswerLogsUnansweredQuestionOnNoAnswerSentinel(t *testing.T) {
	projects := &fakeProjects{project: domain.Project{Slug: "demo", Model: "gpt-4o"}}
	cluster := &fakeCluster{events: []llmcluster.StreamEvent{
		{Delta: promptbuilder.NoAnswerSentinel}, {Done: true},
	}}
	retr := &fakeRetriever{result: retriever.Result{}}
	o := New(&fakeGate{}, projects, retr, fakeBuilder{}, cluster, &fakeActions{})

	stream, err := o.Answer(context.Background(), Request{ProjectSlug: "demo", Message: "Who invented tea?"})
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	drain(t, stream)

	if len(projects.unanswered) != 1 {
		t.Fatalf("expected 1 unanswered question, got %d", len(projects.unanswered))
	}
	if projects.unanswered[0].Question != "Who invented tea?" {
		t.Fatalf("unanswered question = %q", projects.unanswered[0].Question)
	}
}

func TestAnswerShortCircuitsOnQAPair(t *testing.T) {
	projects := &fakeProjects{project: domain.Project{Slug: "demo", Model: "gpt-4o"}}
	cluster := &fakeCluster{err: errFakeClusterCalled}
	retr := &fakeRetriever{result: retriever.Result{QAAnswer: "Our support hours are 9-5 ET."}}
	o := New(&fakeGate{}, projects, retr, fakeBuilder{}, cluster, &fakeActions{})

	stream, err := o.Answer(context.Background(), Request{ProjectSlug: "demo", Message: "What are your hours?"})
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	events := drain(t, stream)
	if len(events) == 0 || events[0].Name != "token" {
		t.Fatalf("expected a leading token event, got %v", eventNames(events))
	}
	tok := events[0].Data.(TokenPayload)
	if tok.Text != "Our support hours are 9-5 ET." {
		t.Fatalf("token text = %q", tok.Text)
	}
}

func TestAnswerRejectsWhenRateLimited(t *testing.T) {
	o := New(&fakeGate{err: apierr.RateLimited(30)}, &fakeProjects{}, &fakeRetriever{}, fakeBuilder{}, &fakeCluster{}, &fakeActions{})
	_, err := o.Answer(context.Background(), Request{ProjectSlug: "demo", Message: "hi"})
	if err == nil {
		t.Fatal("expected rate limit error")
	}
}

func TestAnswerRejectsMissingProjectOrMessage(t *testing.T) {
	o := New(&fakeGate{}, &fakeProjects{}, &fakeRetriever{}, fakeBuilder{}, &fakeCluster{}, &fakeActions{})
	if _, err := o.Answer(context.Background(), Request{Message: "hi"}); err == nil {
		t.Fatal("expected error for missing project")
	}
	if _, err := o.Answer(context.Background(), Request{ProjectSlug: "demo"}); err == nil {
		t.Fatal("expected error for missing message")
	}
}

func TestAnswerEmitsErrorEventOnLLMFailure(t *testing.T) {
	projects := &fakeProjects{project: domain.Project{Slug: "demo", Model: "gpt-4o"}}
	cluster := &fakeCluster{err: apierr.Wrap(apierr.KindBackendUnavailable, "no llm backend could serve this request", errFakeClusterCalled)}
	retr := &fakeRetriever{result: retriever.Result{}}
	o := New(&fakeGate{}, projects, retr, fakeBuilder{}, cluster, &fakeActions{})

	stream, err := o.Answer(context.Background(), Request{ProjectSlug: "demo", Message: "hi"})
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	events := drain(t, stream)
	if len(events) != 1 || events[0].Name != "error" {
		t.Fatalf("events = %v, want a single error event", eventNames(events))
	}
	payload := events[0].Data.(ErrorPayload)
	if payload.Kind != string(apierr.KindBackendUnavailable) {
		t.Fatalf("error kind = %q", payload.Kind)
	}
}

func TestAnswerDispatchesActionDirective(t *testing.T) {
	projects := &fakeProjects{project: domain.Project{Slug: "demo", Model: "gpt-4o"}}
	cluster := &fakeCluster{events: []llmcluster.StreamEvent{
		{Delta: `{"actions":[{"kind":"crm_ticket","payload":{"subject":"help"}}]}` + "\nI've opened a support ticket for you."},
		{Done: true},
	}}
	retr := &fakeRetriever{result: retriever.Result{}}
	actionQueue := &fakeActions{}
	o := New(&fakeGate{}, projects, retr, fakeBuilder{}, cluster, actionQueue)

	stream, err := o.Answer(context.Background(), Request{ProjectSlug: "demo", Message: "open a ticket"})
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	events := drain(t, stream)

	var actionsEvent *Event
	for i := range events {
		if events[i].Name == "actions" {
			actionsEvent = &events[i]
		}
	}
	if actionsEvent == nil {
		t.Fatal("no actions event emitted")
	}
	refs := actionsEvent.Data.([]ActionPayload)
	if len(refs) != 1 || refs[0].Kind != "crm_ticket" {
		t.Fatalf("actions payload = %#v", refs)
	}
	if len(actionQueue.jobs) != 1 || actionQueue.jobs[0].Kind != domain.ActionCRMTicket {
		t.Fatalf("dispatcher jobs = %#v", actionQueue.jobs)
	}
}

type fakeClusterCalledErr struct{}

func (fakeClusterCalledErr) Error() string { return "fake cluster should not have been called" }

var errFakeClusterCalled error = fakeClusterCalledErr{}

package actions

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hibiken/asynq"
	"gopkg.in/gomail.v2"

	"github.com/corpusloop/platform/internal/apierr"
	"github.com/corpusloop/platform/internal/crawler"
	"github.com/corpusloop/platform/internal/domain"
)

// ProjectSource resolves a project's integration settings (CRM webhook,
// mail connector) at execution time, not at enqueue time, so a project's
// integration config can change between when an action is queued and when
// it runs.
type ProjectSource interface {
	Get(ctx context.Context, slug string) (domain.Project, error)
}

// Mailer sends a single email through whatever transport a project's mail
// connector names.
type Mailer interface {
	Send(ctx context.Context, connector, to, subject, body string) error
}

// WorkerJobStore is the subset of *Store the Worker needs to record
// terminal state as a job executes.
type WorkerJobStore interface {
	Save(ctx context.Context, job domain.ActionJob) error
}

// Worker runs enqueued action jobs. It is registered against an
// asynq.Server by Worker.Mux, kept separate from Dispatcher so a process
// can enqueue actions without also executing them.
type Worker struct {
	jobs          WorkerJobStore
	projects      ProjectSource
	mailer        Mailer
	webhookClient *http.Client
}

// NewWorker builds a Worker. webhookTimeout bounds each CRM webhook POST.
func NewWorker(jobs WorkerJobStore, projects ProjectSource, mailer Mailer, webhookTimeout time.Duration) *Worker {
	if webhookTimeout <= 0 {
		webhookTimeout = 10 * time.Second
	}
	return &Worker{
		jobs:     jobs,
		projects: projects,
		mailer:   mailer,
		webhookClient: &http.Client{Timeout: webhookTimeout},
	}
}

// Mux builds the asynq handler registration for this worker's task types.
func (w *Worker) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskTypeDispatch, w.handle)
	return mux
}

// handle executes one action job and records its terminal state. Returning
// a non-nil error tells asynq to retry (subject to MaxRetry/RetryDelay);
// returning nil after recording a Failed status makes the failure
// terminal, used for errors that would never succeed on retry (bad
// project, missing integration config).
func (w *Worker) handle(ctx context.Context, task *asynq.Task) error {
	job, err := decodePayload(task)
	if err != nil {
		return err
	}

	project, err := w.projects.Get(ctx, job.ProjectID)
	if err != nil {
		job.Status = domain.ActionFailed
		_ = w.jobs.Save(ctx, job)
		return nil
	}

	job.Status = domain.ActionRunning
	job.Attempts++
	_ = w.jobs.Save(ctx, job)

	var execErr error
	var terminal bool
	switch job.Kind {
	case domain.ActionCRMTicket:
		execErr, terminal = w.executeCRMTicket(ctx, project, job)
	case domain.ActionEmail:
		execErr, terminal = w.executeEmail(ctx, project, job)
	default:
		execErr, terminal = fmt.Errorf("actions: unknown action kind %q", job.Kind), true
	}

	if execErr != nil {
		job.Status = domain.ActionFailed
		_ = w.jobs.Save(ctx, job)
		if terminal {
			return nil
		}
		return execErr
	}

	job.Status = domain.ActionSucceeded
	return w.jobs.Save(ctx, job)
}

// executeCRMTicket POSTs the action payload as JSON to the project's
// configured CRM webhook. A missing webhook URL or one that fails the
// SSRF guard is a terminal misconfiguration, not a transient failure.
func (w *Worker) executeCRMTicket(ctx context.Context, project domain.Project, job domain.ActionJob) (err error, terminal bool) {
	webhookURL := project.Integrations.CRMWebhookURL
	if webhookURL == "" {
		return apierr.New(apierr.KindProjectMisconfigured, "project has no CRM webhook configured"), true
	}
	if _, err := crawler.ValidateFetchTarget(webhookURL); err != nil {
		return fmt.Errorf("actions: CRM webhook rejected: %w", err), true
	}

	body, err := json.Marshal(job.Payload)
	if err != nil {
		return fmt.Errorf("actions: encode CRM ticket payload: %w", err), true
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(body))
	if err != nil {
		return err, true
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.webhookClient.Do(req)
	if err != nil {
		return fmt.Errorf("actions: CRM webhook request: %w", err), false
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("actions: CRM webhook returned %d", resp.StatusCode), false
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("actions: CRM webhook returned %d", resp.StatusCode), true
	}
	return nil, false
}

func (w *Worker) executeEmail(ctx context.Context, project domain.Project, job domain.ActionJob) (err error, terminal bool) {
	connector := project.Integrations.MailConnector
	if connector == "" {
		return apierr.New(apierr.KindProjectMisconfigured, "project has no mail connector configured"), true
	}

	to, _ := job.Payload["to"].(string)
	subject, _ := job.Payload["subject"].(string)
	body, _ := job.Payload["body"].(string)
	if to == "" {
		return apierr.New(apierr.KindValidation, "email action missing recipient"), true
	}

	if err := w.mailer.Send(ctx, connector, to, subject, body); err != nil {
		return fmt.Errorf("actions: send email: %w", err), false
	}
	return nil, false
}

// SMTPMailer sends mail through an SMTP relay using gopkg.in/gomail.v2,
// the teacher pack's email dependency (present but unexercised elsewhere
// in the retrieved corpus).
type SMTPMailer struct {
	From string
}

// NewSMTPMailer builds a Mailer that sends From the given address.
func NewSMTPMailer(from string) *SMTPMailer {
	return &SMTPMailer{From: from}
}

// Send dials connector (an smtp:// or smtps:// URL with optional
// user:password@ credentials and port, 587 by default) and delivers one
// message. It blocks for the duration of the SMTP
// handshake and delivery; callers running it from an asynq handler get
// that synchronous behavior, which asynq's own worker pool already bounds.
func (m *SMTPMailer) Send(ctx context.Context, connector, to, subject, body string) error {
	host, port, user, pass, err := parseSMTPConnector(connector)
	if err != nil {
		return err
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.From)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)

	dialer := gomail.NewDialer(host, port, user, pass)
	return dialer.DialAndSend(msg)
}

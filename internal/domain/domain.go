// Package domain holds the platform's semantic entity types shared across
// every component (A–M). These are plain value types, not storage schemas:
// each storage-backed package (store, project, vectorindex, ...) persists
// them in whatever shape its backend wants.
package domain

import "time"

// Project is a multi-tenant namespace. All content and policy is scoped to
// exactly one project.
type Project struct {
	Slug          string            `bson:"_id" json:"slug"`
	Title         string            `bson:"title" json:"title"`
	Domain        string            `bson:"domain,omitempty" json:"domain,omitempty"`
	Model         string            `bson:"model" json:"model"`
	SystemPrompt  string            `bson:"system_prompt" json:"system_prompt"`
	Disabled      bool              `bson:"disabled" json:"disabled"`
	Features      ProjectFeatures   `bson:"features" json:"features"`
	Integrations  ProjectIntegrations `bson:"integrations" json:"integrations"`
	CreatedAt     time.Time         `bson:"created_at" json:"created_at"`
	UpdatedAt     time.Time         `bson:"updated_at" json:"updated_at"`
}

// ProjectFeatures are the per-project toggles from the spec's data model.
type ProjectFeatures struct {
	Emotions       bool `bson:"emotions" json:"emotions"`
	Voice          bool `bson:"voice" json:"voice"`
	Sources        bool `bson:"sources" json:"sources"`
	ImageCaptions  bool `bson:"image_captions" json:"image_captions"`
	Debug          bool `bson:"debug" json:"debug"`
	JSRender       bool `bson:"js_render" json:"js_render"`
}

// ProjectIntegrations holds the external collaborators a project may wire
// up (CRM webhook, mail connector, bot tokens). The platform only validates
// and dispatches to these; it does not implement the collaborators.
type ProjectIntegrations struct {
	CRMWebhookURL string            `bson:"crm_webhook_url,omitempty" json:"crm_webhook_url,omitempty"`
	MailConnector string            `bson:"mail_connector,omitempty" json:"mail_connector,omitempty"`
	BotTokens     map[string]string `bson:"bot_tokens,omitempty" json:"bot_tokens,omitempty"`
}

// Document is a single ingested artifact, deduplicated per project by
// content hash.
type Document struct {
	ID          string    `bson:"_id" json:"id"`
	ProjectID   string    `bson:"project_id" json:"project_id"`
	ContentHash string    `bson:"content_hash" json:"content_hash"`
	SourceURL   string    `bson:"source_url,omitempty" json:"source_url,omitempty"`
	MIME        string    `bson:"mime" json:"mime"`
	Title       string    `bson:"title,omitempty" json:"title,omitempty"`
	Text        string    `bson:"-" json:"-"` // streamed from blob storage, not embedded in the metadata doc
	Description string    `bson:"description,omitempty" json:"description,omitempty"`
	Priority    float64   `bson:"priority" json:"priority"`
	FetchedAt   time.Time `bson:"fetched_at" json:"fetched_at"`
	IndexedAt   time.Time `bson:"indexed_at" json:"indexed_at"`
	Deleted     bool      `bson:"deleted" json:"deleted"`
}

// Chunk is a bounded piece of a document's text with its embedding and
// lexical entry — the unit of retrieval.
type Chunk struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	ProjectID  string    `json:"project_id"`
	Ordinal    int       `json:"ordinal"`
	Text       string    `json:"text"`
	Embedding  []float32 `json:"-"`
	Tokens     []string  `json:"-"`
	VisibleAt  time.Time `json:"-"`
}

// CrawlStatus is the lifecycle state of a CrawlJob.
type CrawlStatus string

const (
	CrawlPending CrawlStatus = "pending"
	CrawlRunning CrawlStatus = "running"
	CrawlDone    CrawlStatus = "done"
	CrawlStopped CrawlStatus = "stopped"
	CrawlFailed  CrawlStatus = "failed"
)

// CrawlCounters tracks frontier progress for a CrawlJob.
type CrawlCounters struct {
	Queued     int `bson:"queued" json:"queued"`
	InProgress int `bson:"in_progress" json:"in_progress"`
	Done       int `bson:"done" json:"done"`
	Failed     int `bson:"failed" json:"failed"`
}

// CrawlJob is a single crawl run for a project.
type CrawlJob struct {
	ID         string        `bson:"_id" json:"id"`
	ProjectID  string        `bson:"project_id" json:"project_id"`
	SeedURL    string        `bson:"seed_url" json:"seed_url"`
	MaxDepth   int           `bson:"max_depth" json:"max_depth"`
	MaxPages   int           `bson:"max_pages" json:"max_pages"`
	JSRender   bool          `bson:"js_render" json:"js_render"`
	Status     CrawlStatus   `bson:"status" json:"status"`
	Counters   CrawlCounters `bson:"counters" json:"counters"`
	LastURL    string        `bson:"last_url,omitempty" json:"last_url,omitempty"`
	LastError  string        `bson:"last_error,omitempty" json:"last_error,omitempty"`
	StartedAt  time.Time     `bson:"started_at" json:"started_at"`
	FinishedAt time.Time     `bson:"finished_at,omitempty" json:"finished_at,omitempty"`
}

// FrontierState is the lifecycle of a single URL within a crawl job.
type FrontierState string

const (
	FrontierDiscovered FrontierState = "discovered"
	FrontierInProgress FrontierState = "in_progress"
	FrontierFetched    FrontierState = "fetched"
	FrontierFailed     FrontierState = "failed"
)

// FrontierEntry is one URL tracked by a crawl job's frontier.
type FrontierEntry struct {
	JobID    string        `json:"job_id"`
	URL      string        `json:"url"`
	Depth    int           `json:"depth"`
	State    FrontierState `json:"state"`
	Reason   string        `json:"reason,omitempty"`
}

// QAPair is manually curated high-priority knowledge that short-circuits
// retrieval.
type QAPair struct {
	ID        string  `bson:"_id" json:"id"`
	ProjectID string  `bson:"project_id" json:"project_id"`
	Question  string  `bson:"question" json:"question"`
	Answer    string  `bson:"answer" json:"answer"`
	Priority  float64 `bson:"priority" json:"priority"`
}

// UnansweredQuestion records a user question the orchestrator could not
// ground in the corpus.
type UnansweredQuestion struct {
	ID        string    `bson:"_id" json:"id"`
	ProjectID string    `bson:"project_id" json:"project_id"`
	Question  string    `bson:"question" json:"question"`
	AskedAt   time.Time `bson:"asked_at" json:"asked_at"`
}

// RequestStatsDaily is an append-only per-project daily counter.
type RequestStatsDaily struct {
	ProjectID string `bson:"project_id" json:"project_id"`
	Date      string `bson:"date" json:"date"` // YYYY-MM-DD
	Count     int64  `bson:"count" json:"count"`
}

// LLMHealth is the observed health of an LLM backend.
type LLMHealth string

const (
	LLMHealthUp      LLMHealth = "up"
	LLMHealthDown    LLMHealth = "down"
	LLMHealthUnknown LLMHealth = "unknown"
)

// LLMServer is one inference backend in the cluster.
type LLMServer struct {
	ID      string `bson:"_id" json:"id"`
	BaseURL string `bson:"base_url" json:"base_url"`
	Kind    string `bson:"kind" json:"kind"` // openai | anthropic | ollama
	Enabled bool   `bson:"enabled" json:"enabled"`
}

// ActionKind enumerates the model-requested side effects the dispatcher
// can execute.
type ActionKind string

const (
	ActionCRMTicket ActionKind = "crm_ticket"
	ActionEmail     ActionKind = "email"
)

// ActionStatus is the lifecycle of an ActionJob.
type ActionStatus string

const (
	ActionPending   ActionStatus = "pending"
	ActionRunning   ActionStatus = "running"
	ActionSucceeded ActionStatus = "succeeded"
	ActionFailed    ActionStatus = "failed"
)

// ActionJob is a single at-most-once side effect triggered by a model
// response.
type ActionJob struct {
	ID        string         `bson:"_id" json:"id"`
	RequestID string         `bson:"request_id" json:"request_id"`
	ProjectID string         `bson:"project_id" json:"project_id"`
	Kind      ActionKind     `bson:"kind" json:"kind"`
	Payload   map[string]any `bson:"payload" json:"payload"`
	Status    ActionStatus   `bson:"status" json:"status"`
	Attempts  int            `bson:"attempts" json:"attempts"`
	CreatedAt time.Time      `bson:"created_at" json:"created_at"`
}

// IdempotencyKey is the (request_id, kind) pair that bounds an ActionJob to
// at most one successful execution.
func (a ActionJob) IdempotencyKey() string {
	return a.RequestID + ":" + string(a.Kind)
}

// VoiceState is the voice session state machine's current node.
type VoiceState string

const (
	VoiceIdle       VoiceState = "idle"
	VoiceListening  VoiceState = "listening"
	VoiceProcessing VoiceState = "processing"
	VoiceSpeaking   VoiceState = "speaking"
	VoiceError      VoiceState = "error"
	VoiceClosed     VoiceState = "closed"
)

// VoiceTurn is one exchange in a voice session's bounded history.
type VoiceTurn struct {
	Role      string    `json:"role"` // user | assistant
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// VoiceSession is a time-bounded stateful voice interaction.
type VoiceSession struct {
	ID           string       `bson:"_id" json:"id"`
	ProjectID    string       `bson:"project_id" json:"project_id"`
	Language     string       `bson:"language" json:"language"`
	State        VoiceState   `bson:"state" json:"state"`
	History      []VoiceTurn  `bson:"history" json:"history"`
	CreatedAt    time.Time    `bson:"created_at" json:"created_at"`
	LastActivity time.Time    `bson:"last_activity" json:"last_activity"`
}

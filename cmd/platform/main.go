// Command platform is the long-running server entrypoint: it wires every
// component from spec.md §2 (A–M) to a concrete backend, starts the
// supervised background jobs, and serves the HTTP/SSE/WebSocket surface
// until an interrupt signal asks it to drain and exit.
package main

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/panjf2000/ants/v2"
	"github.com/qdrant/go-client/qdrant"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/v2/mongo"
	mongooptions "go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/corpusloop/platform/core/job"
	"github.com/corpusloop/platform/core/trigger"
	"github.com/corpusloop/platform/internal/actions"
	"github.com/corpusloop/platform/internal/cache"
	"github.com/corpusloop/platform/internal/chunker"
	"github.com/corpusloop/platform/internal/chunkstore"
	"github.com/corpusloop/platform/internal/config"
	"github.com/corpusloop/platform/internal/crawler"
	"github.com/corpusloop/platform/internal/embedclient"
	"github.com/corpusloop/platform/internal/embedworker"
	"github.com/corpusloop/platform/internal/events"
	"github.com/corpusloop/platform/internal/httpapi"
	"github.com/corpusloop/platform/internal/lexical"
	"github.com/corpusloop/platform/internal/llmcluster"
	"github.com/corpusloop/platform/internal/orchestrator"
	"github.com/corpusloop/platform/internal/project"
	"github.com/corpusloop/platform/internal/promptbuilder"
	"github.com/corpusloop/platform/internal/ratelimit"
	"github.com/corpusloop/platform/internal/reranker"
	"github.com/corpusloop/platform/internal/retriever"
	"github.com/corpusloop/platform/internal/store"
	"github.com/corpusloop/platform/internal/vectorindex"
	"github.com/corpusloop/platform/internal/voice"
	platformsync "github.com/corpusloop/platform/pkg/sync"
)

func main() {
	log := newLogger()

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("load configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mongoDB, mongoClient := mustMongo(ctx, cfg, log)
	defer mongoClient.Disconnect(context.Background())

	redisClient := redis.NewClient(&redis.Options{Addr: mustHostPort(cfg.CacheURL, "6379"), Password: cfg.RedisPassword})
	defer redisClient.Close()

	minioClient := mustMinio(cfg, log)
	qdrantClient := mustQdrant(cfg, log)

	documents := store.New(mongoDB.Collection("documents"), minioClient, cfg.MinioBucket)
	projects := project.New(
		mongoDB.Collection("projects"),
		mongoDB.Collection("qa_pairs"),
		mongoDB.Collection("unanswered_questions"),
		mongoDB.Collection("request_stats_daily"),
	)
	vectors := vectorindex.New(qdrantClient, cfg.EmbeddingDimensions)
	lexicalStore := lexical.NewStore()
	chunks := chunkstore.New(vectors, lexicalStore)
	embedder := embedclient.New(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.EmbeddingModel, cfg.EmbeddingDimensions)
	splitter, err := chunker.New("cl100k_base")
	if err != nil {
		log.WithError(err).Fatal("build chunk splitter")
	}
	redisCache := cache.New(redisClient)
	gate := ratelimit.New(redisClient, ratelimit.Limits{
		ReadPerMinute:  cfg.RateLimitReadPerMin,
		WritePerMinute: cfg.RateLimitWritePerMin,
		PerHour:        cfg.RateLimitPerHour,
	})

	cluster := buildLLMCluster(cfg, redisCache, log)
	cluster.StartHealthChecks(ctx)
	defer cluster.Stop()

	var retrieverOpts []retriever.Option
	if cfg.RerankModel != "" {
		retrieverOpts = append(retrieverOpts, retriever.WithReranker(reranker.New(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.RerankModel)))
	}
	retrieve := retriever.New(embedder, chunks.Vectors(), chunks.Lexical(), documents, projects, redisCache, retrieverOpts...)
	prompt := promptbuilder.New(splitter, promptbuilder.WithMaxTokens(cfg.PromptTokenBudget))

	redisConnOpt := asynq.RedisClientOpt{Addr: mustHostPort(cfg.CacheURL, "6379"), Password: cfg.RedisPassword}
	actionStore := actions.NewStore(mongoDB.Collection("action_jobs"))
	dispatcher := actions.NewDispatcher(redisConnOpt, actionStore)
	defer dispatcher.Close()

	answerer := orchestrator.New(gate, projects, retrieve, prompt, cluster, dispatcher)

	docChanged := events.NewInMemory(256)
	eventsBus := events.NewBus(docChanged)

	embedWorker := embedworker.New(documents, documents, embedder, chunks, splitter)
	embedJob := job.NewStreamJob(&job.StreamJobOptions{
		Config: &job.StreamJobConfig{MaxWork: cfg.EmbedWorkerConcurrency},
		Worker: embedWorker,
		In:     docChanged,
	})
	if err := embedJob.Start(ctx); err != nil {
		log.WithError(err).Fatal("start embedding worker")
	}
	defer embedJob.Stop()

	startIdleRescan(ctx, cfg, projects, documents, chunks, embedder, chunks, splitter, log)

	crawlJobs := crawler.NewJobStore(mongoDB.Collection("crawl_jobs"), mongoDB.Collection("crawl_frontier"))
	crawlerRunner := crawler.New(crawler.Config{
		Concurrency:  cfg.CrawlMaxConcurrency,
		FetchTimeout: cfg.CrawlPageTimeout,
	}, crawlJobs, documents, eventsBus)

	actionWorker := actions.NewWorker(actionStore, projects, actions.NewSMTPMailer(cfg.ActionSMTPFrom), cfg.ActionWebhookTimeout)
	actionServer := actions.NewServer(redisConnOpt, cfg.ActionWorkerConcurrency)
	go func() {
		if err := actionServer.Run(actionWorker.Mux()); err != nil {
			log.WithError(err).Error("action dispatcher server stopped")
		}
	}()
	defer actionServer.Shutdown()

	voiceManager, voiceHandler := buildVoice(cfg, mongoDB, redisCache, answerer, log)
	go voiceManager.RunGC(ctx, 30*time.Second)

	deps := &httpapi.Deps{
		Orchestrator:   answerer,
		Crawler:        crawlerRunner,
		CrawlJobs:      crawlJobs,
		Projects:       projects,
		Documents:      documents,
		Gate:           gate,
		VoiceManager:   voiceManager,
		VoiceHandler:   voiceHandler,
		QAUpload:       httpapi.NewQAUploadService(projects, cfg.MaxUploadSize),
		LLM:            cluster,
		Mongo:          mongoHealthChecker{client: mongoClient},
		Redis:          redisHealthChecker{client: redisClient},
		Vectors:        qdrantHealthChecker{client: qdrantClient},
		AllowedOrigins: cfg.AllowedOrigins,
		MaxUploadSize:  cfg.MaxUploadSize,
	}
	router := httpapi.NewRouter(deps)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}
	go func() {
		log.WithField("addr", cfg.HTTPAddr).Info("platform listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("http server stopped")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("http server shutdown")
	}
}

func newLogger() *logrus.Entry {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	return logrus.NewEntry(log)
}

func mustMongo(ctx context.Context, cfg *config.Config, log *logrus.Entry) (*mongo.Database, *mongo.Client) {
	client, err := mongo.Connect(ctx, mongooptions.Client().ApplyURI(cfg.MongoURL))
	if err != nil {
		log.WithError(err).Fatal("connect to mongo")
	}
	if err := client.Ping(ctx, nil); err != nil {
		log.WithError(err).Fatal("ping mongo")
	}
	return client.Database(cfg.MongoDatabase), client
}

func mustMinio(cfg *config.Config, log *logrus.Entry) *minio.Client {
	endpoint := cfg.DocumentStoreURL
	if u, err := url.Parse(cfg.DocumentStoreURL); err == nil && u.Host != "" {
		endpoint = u.Host
	}
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
	})
	if err != nil {
		log.WithError(err).Fatal("build minio client")
	}
	return client
}

func mustQdrant(cfg *config.Config, log *logrus.Entry) *qdrant.Client {
	host := cfg.VectorStoreURL
	port := 6334
	if u, err := url.Parse(cfg.VectorStoreURL); err == nil && u.Hostname() != "" {
		host = u.Hostname()
		if p, err := strconv.Atoi(u.Port()); err == nil && p > 0 {
			port = p
		}
	}
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: cfg.QdrantAPIKey,
		UseTLS: cfg.QdrantUseTLS,
	})
	if err != nil {
		log.WithError(err).Fatal("build qdrant client")
	}
	return client
}

// mustHostPort extracts host:port from a scheme://host:port[/path] URL,
// falling back to defaultPort when the URL carries none.
func mustHostPort(rawURL, defaultPort string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	if u.Port() == "" {
		return u.Hostname() + ":" + defaultPort
	}
	return u.Host
}

func buildLLMCluster(cfg *config.Config, c *cache.Cache, log *logrus.Entry) *llmcluster.Cluster {
	var backends []llmcluster.Backend
	if cfg.OpenAIAPIKey != "" {
		backends = append(backends, llmcluster.NewOpenAIBackend("openai", cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.LLMDefaultModel))
	}
	if cfg.AnthropicAPIKey != "" {
		backends = append(backends, llmcluster.NewAnthropicBackend("anthropic", cfg.AnthropicAPIKey, 4096, cfg.LLMDefaultModel))
	}
	if ollama, err := llmcluster.NewOllamaBackend("ollama", cfg.OllamaBaseURL, cfg.LLMDefaultModel); err == nil {
		backends = append(backends, ollama)
	} else {
		log.WithError(err).Warn("ollama backend unavailable")
	}
	return llmcluster.New(backends,
		llmcluster.WithPerBackendConcurrency(cfg.LLMPerBackendConcurrency),
		llmcluster.WithHealthCheckInterval(cfg.LLMHealthCheckInterval),
		llmcluster.WithMaxRetries(cfg.LLMMaxRetries),
		llmcluster.WithCompletionCache(c, cfg.CacheTTLLLMResults),
	)
}

func buildVoice(cfg *config.Config, db *mongo.Database, c *cache.Cache, answerer *orchestrator.Orchestrator, log *logrus.Entry) (*voice.Manager, *voice.Handler) {
	sessionStore := voice.NewMongoStore(db.Collection("voice_sessions"))
	manager := voice.New(sessionStore,
		voice.WithMaxActiveSessions(cfg.VoiceMaxConcurrentSessions),
		voice.WithIdleTimeout(cfg.VoiceSessionTimeout),
	)

	var recognizer voice.Recognizer = &voice.MockRecognizer{}
	if cfg.VoiceSTTBaseURL != "" {
		recognizer = voice.NewHTTPRecognizer(cfg.VoiceSTTBaseURL, cfg.VoiceSTTAPIKey)
	}
	var synthesizer voice.Synthesizer = &voice.MockSynthesizer{}
	if cfg.VoiceTTSBaseURL != "" {
		synthesizer = voice.NewCachingSynthesizer(voice.NewHTTPSynthesizer(cfg.VoiceTTSBaseURL, cfg.VoiceTTSAPIKey), c)
	}
	handler := voice.NewHandler(manager, recognizer, synthesizer, answerer)
	return manager, handler
}

// startIdleRescan drives embedworker.RescanWorker on a fixed schedule via
// the teacher's core/trigger.CronTrigger, the idle-cooldown half of
// spec.md §4.D. A bounded ants pool caps how many projects it rescans
// concurrently, matching EMBED_WORKER_CONCURRENCY.
func startIdleRescan(ctx context.Context, cfg *config.Config, projects *project.Registry, docs *store.Store, retractor embedworker.Retractor, embedder embedworker.Embedder, publisher embedworker.Publisher, splitter *chunker.Splitter, log *logrus.Entry) {
	seconds := int(cfg.EmbedIdleCooldown.Seconds())
	if seconds < 1 {
		seconds = 30
	}
	spec := fmt.Sprintf("@every %ds", seconds)

	var antsPool platformsync.Pool = platformsync.PoolOfNoPool()
	if n := cfg.EmbedWorkerConcurrency; n > 0 {
		if p, err := ants.NewPool(n); err != nil {
			log.WithError(err).Warn("idle rescan: build ants pool, falling back to unbounded goroutines")
		} else {
			antsPool = platformsync.PoolOfAnts(p)
		}
	}

	rescan := embedworker.NewRescanWorker(projects, docs, retractor, embedder, publisher, docs, splitter, antsPool, log)
	cron := trigger.NewCronTrigger(&trigger.CronTriggerOptions{Spec: spec})
	if _, err := cron.AddWorkers(ctx, rescan); err != nil {
		log.WithError(err).Error("schedule idle rescan")
	}
}

type mongoHealthChecker struct{ client *mongo.Client }

func (m mongoHealthChecker) Ping(ctx context.Context) error { return m.client.Ping(ctx, nil) }

type redisHealthChecker struct{ client *redis.Client }

func (r redisHealthChecker) Ping(ctx context.Context) error { return r.client.Ping(ctx).Err() }

type qdrantHealthChecker struct{ client *qdrant.Client }

func (q qdrantHealthChecker) Ping(ctx context.Context) error {
	_, err := q.client.HealthCheck(ctx)
	return err
}

package cli

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"nl2sql/internal/audit"
	"nl2sql/internal/classify"
	"nl2sql/internal/config"
	"nl2sql/internal/database"
	"nl2sql/internal/dba"
	"nl2sql/internal/executor"
	"nl2sql/internal/fileprocessing"
	"nl2sql/internal/llm"
	"nl2sql/internal/metrics"
	"nl2sql/internal/pipeline"
	"nl2sql/internal/resolve"
	"nl2sql/internal/retrieval"
	"nl2sql/internal/schema"
	"nl2sql/internal/sqlguard"
)

// app is the fully wired service graph shared by every command.
type app struct {
	exec      *executor.Executor
	schema    *schema.Manager
	store     *database.Store
	audit     *audit.Logger
	retriever *retrieval.Retriever
	ingester  *retrieval.Ingester
	approvals *dba.Service
	pipeline  *pipeline.Service

	closers []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// newApp connects to the target database and, when configured, the
// application database, then builds the pipeline on top of them.
func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	exec, err := executor.Connect(ctx, cfg.ReadOnlyDSN, cfg.DBADSN, executor.Options{
		QueryTimeout:   cfg.QueryTimeout,
		ExplainTimeout: cfg.ExplainTimeout,
		MaxRows:        cfg.MaxResultRows,
	}, logger.Named("executor"))
	if err != nil {
		return nil, err
	}
	a.exec = exec
	a.closers = append(a.closers, exec.Close)

	cache, err := schemaCache(cfg)
	if err != nil {
		return nil, err
	}
	a.schema = schema.NewManager(schema.NewPGSource(exec.ReadOnlyPool()), cache, cfg.SchemaCacheTTL, logger.Named("schema"))

	var auditStore audit.Store
	var vectors retrieval.VectorStore
	var embedder retrieval.Embedder
	if cfg.AppDSN != "" {
		store, err := database.Connect(ctx, cfg.AppDSN, logger.Named("database"))
		if err != nil {
			return nil, err
		}
		a.store = store
		a.closers = append(a.closers, func() { _ = store.Close() })
		if err := store.CreateSchema(ctx); err != nil {
			return nil, err
		}
		auditStore = store.Audit()
		vectors = store

		e, err := llm.NewOllamaEmbedder(cfg.OllamaURL, cfg.OllamaEmbeddingModel)
		if err != nil {
			return nil, err
		}
		embedder = e
	}

	var auditOpts []audit.Option
	if !cfg.EnableAudit {
		auditOpts = append(auditOpts, audit.Disabled())
	}
	a.audit = audit.New(auditStore, logger.Named("audit"), auditOpts...)
	a.approvals = dba.New(exec, a.audit, cfg.ApprovalTimeout, logger.Named("dba"))

	a.retriever = retrieval.New(embedder, vectors, a.schema, logger.Named("retrieval"))
	a.ingester = &retrieval.Ingester{
		Loader:    fileprocessing.NewLoader(cfg.IPFSAPIURL, logger.Named("documents")),
		Retriever: a.retriever,
		ChunkSize: fileprocessing.DefaultChunkSize,
	}

	model, err := llm.NewChatModel(llm.ModelConfig{
		Provider:            llm.Provider(cfg.LLMProvider),
		Model:               sqlModel(cfg),
		OllamaURL:           cfg.OllamaURL,
		OpenAIKey:           cfg.OpenAIAPIKey,
		OpenAIBaseURL:       cfg.OpenAIBaseURL,
		CloudflareAccountID: cfg.CloudflareAccountID,
		CloudflareToken:     cfg.CloudflareAuthToken,
	})
	if err != nil {
		return nil, err
	}
	agent := llm.NewSQLAgent(model, llm.WithLogger(logger.Named("llm")))

	// Without a Groq key both agents run on their rule-based fallbacks.
	var chat llm.ChatCompleter
	if c := llm.NewChatClient(cfg.GroqAPIKey, cfg.GroqBaseURL); c != nil {
		chat = c
	}

	classifier := classify.Default()
	loop := resolve.New(agent, agent, resolve.NewPlanProbe(exec.Explainer(sqlguard.ReadOnly), cfg.ExplainTimeout),
		resolve.WithMaxAttempts(cfg.MaxRetries),
		resolve.WithMode(sqlguard.ReadOnly),
		resolve.WithClassifier(classifier),
		resolve.WithObserver(metrics.ResolveObserver{}),
		resolve.WithLogger(logger.Named("resolve")),
	)

	a.pipeline = pipeline.New(pipeline.Deps{
		Gatekeeper:  llm.NewGatekeeper(chat, cfg.GroqModel, logger.Named("gatekeeper")),
		Retriever:   a.retriever,
		Resolver:    loop,
		Executor:    exec,
		Explainer:   llm.NewExplainer(chat, cfg.GroqModel, logger.Named("explainer")),
		Audit:       a.audit,
		Classifier:  classifier,
		MaxAttempts: cfg.MaxRetries,
		Logger:      logger.Named("pipeline"),
	})

	ok = true
	return a, nil
}

func schemaCache(cfg *config.Config) (schema.Cache, error) {
	if cfg.RedisURL == "" {
		return schema.NewMemoryCache(), nil
	}
	client, err := schema.ConnectRedis(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w\nSet REDIS_URL environment variable", err)
	}
	return schema.NewRedisCache(client, "nl2sql:schema:"), nil
}

func sqlModel(cfg *config.Config) string {
	if llm.Provider(cfg.LLMProvider) == llm.ProviderOllama {
		return cfg.OllamaSQLModel
	}
	return cfg.SQLModel
}

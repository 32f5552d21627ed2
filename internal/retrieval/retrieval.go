// Package retrieval builds the schema and examples context for a question
// from embedded table descriptions, past successful queries and ingested
// documentation.
package retrieval

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"nl2sql/internal/database"
	"nl2sql/internal/llm"
	"nl2sql/internal/resolve"
	"nl2sql/internal/schema"
)

const (
	TopTables    = 5
	TopQueries   = 3
	TopDocuments = 3
)

type Embedder interface {
	Embed(ctx context.Context, content string) (pgvector.Vector, error)
}

// VectorStore is implemented by *database.Store.
type VectorStore interface {
	SimilarTables(ctx context.Context, v pgvector.Vector, limit int) ([]database.TableEmbedding, error)
	SimilarQueryExamples(ctx context.Context, v pgvector.Vector, limit int) ([]database.QueryExample, error)
	SimilarDocuments(ctx context.Context, v pgvector.Vector, limit int) ([]database.SchemaDocument, error)
	UpsertTableEmbedding(ctx context.Context, te *database.TableEmbedding) error
	InsertQueryExample(ctx context.Context, ex *database.QueryExample) error
	ReplaceDocument(ctx context.Context, source string, docs []database.SchemaDocument) error
}

// Schema is implemented by *schema.Manager.
type Schema interface {
	Tables(ctx context.Context) ([]schema.Table, error)
	BuildContext(ctx context.Context, relevant []string) (string, error)
}

type Retriever struct {
	embedder Embedder
	store    VectorStore
	schema   Schema
	logger   *zap.Logger
}

// New builds a Retriever. With a nil embedder or store every question gets
// the full schema and the built-in examples.
func New(embedder Embedder, store VectorStore, s Schema, logger *zap.Logger) *Retriever {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retriever{embedder: embedder, store: store, schema: s, logger: logger}
}

func (r *Retriever) enabled() bool {
	return r.embedder != nil && r.store != nil
}

// Context is what retrieval found for one question.
type Context struct {
	Schema    string
	Examples  string
	Tables    []string
	Documents int
}

// Request packages c for the resolve loop.
func (c Context) Request(question string) resolve.GenerationRequest {
	return resolve.GenerationRequest{
		Question:        question,
		SchemaContext:   c.Schema,
		ExamplesContext: c.Examples,
	}
}

// Retrieve searches tables, past queries and documents concurrently. Search
// failures degrade to the full schema and the built-in examples; only a
// failure to read the schema itself is returned.
func (r *Retriever) Retrieve(ctx context.Context, question string) (Context, error) {
	var (
		tables  []database.TableEmbedding
		queries []database.QueryExample
		docs    []database.SchemaDocument
	)
	if r.enabled() {
		if err := r.search(ctx, question, &tables, &queries, &docs); err != nil {
			if ctx.Err() != nil {
				return Context{}, ctx.Err()
			}
			r.logger.Warn("similarity search failed, using full schema", zap.Error(err))
			tables, queries, docs = nil, nil, nil
		}
	}

	out := Context{Documents: len(docs)}
	if len(tables) > 0 {
		known, err := r.schema.Tables(ctx)
		if err != nil {
			return Context{}, fmt.Errorf("failed to load schema: %w", err)
		}
		// Embeddings can outlive the tables they describe.
		for _, t := range tables {
			if slices.ContainsFunc(known, func(k schema.Table) bool { return k.Name == t.Name }) {
				out.Tables = append(out.Tables, t.Name)
			}
		}
	}

	schemaText, err := r.schema.BuildContext(ctx, out.Tables)
	if err != nil {
		return Context{}, fmt.Errorf("failed to build schema context: %w", err)
	}
	if len(docs) > 0 {
		schemaText += "\n\n" + FormatDocuments(docs)
	}
	out.Schema = schemaText

	if len(queries) > 0 {
		out.Examples = FormatExamples(queries)
	} else {
		out.Examples = llm.ExampleQueries
	}

	r.logger.Info("retrieved context",
		zap.Strings("tables", out.Tables),
		zap.Int("examples", len(queries)),
		zap.Int("documents", len(docs)))
	return out, nil
}

func (r *Retriever) search(ctx context.Context, question string, tables *[]database.TableEmbedding, queries *[]database.QueryExample, docs *[]database.SchemaDocument) error {
	v, err := r.embedder.Embed(ctx, NormalizeQuestion(question))
	if err != nil {
		return fmt.Errorf("failed to embed question: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		*tables, err = r.store.SimilarTables(gctx, v, TopTables)
		return err
	})
	g.Go(func() error {
		var err error
		*queries, err = r.store.SimilarQueryExamples(gctx, v, TopQueries)
		return err
	})
	g.Go(func() error {
		var err error
		*docs, err = r.store.SimilarDocuments(gctx, v, TopDocuments)
		return err
	})
	return g.Wait()
}

// IndexSchema embeds the description of every table and stores it. It
// returns the number of tables indexed.
func (r *Retriever) IndexSchema(ctx context.Context) (int, error) {
	if !r.enabled() {
		return 0, fmt.Errorf("vector store not configured")
	}
	tables, err := r.schema.Tables(ctx)
	if err != nil {
		return 0, err
	}
	for i, t := range tables {
		desc := schema.Describe(t)
		v, err := r.embedder.Embed(ctx, NormalizeText(desc))
		if err != nil {
			return i, fmt.Errorf("failed to embed table %s: %w", t.Name, err)
		}
		if err := r.store.UpsertTableEmbedding(ctx, &database.TableEmbedding{Name: t.Name, Description: desc, Embedding: v}); err != nil {
			return i, err
		}
	}
	r.logger.Info("indexed schema", zap.Int("tables", len(tables)))
	return len(tables), nil
}

// StoreSuccessfulQuery remembers a question whose SQL returned rows so it can
// serve as an example later. Failures are logged, not returned.
func (r *Retriever) StoreSuccessfulQuery(ctx context.Context, question, sql string, elapsed time.Duration, rows int64) {
	if !r.enabled() {
		return
	}
	v, err := r.embedder.Embed(ctx, NormalizeQuestion(question))
	if err != nil {
		r.logger.Error("failed to embed query history", zap.Error(err))
		return
	}
	ex := &database.QueryExample{
		Question:         question,
		SQL:              sql,
		ExecutionSeconds: elapsed.Seconds(),
		RowCount:         rows,
		Embedding:        v,
	}
	if err := r.store.InsertQueryExample(ctx, ex); err != nil {
		r.logger.Error("failed to store query history", zap.Error(err))
		return
	}
	r.logger.Info("stored successful query", zap.Int64("id", ex.ID))
}

// IndexDocument embeds chunks of a data-dictionary document, replacing any
// earlier version stored under source.
func (r *Retriever) IndexDocument(ctx context.Context, source string, chunks []string) (int, error) {
	if !r.enabled() {
		return 0, fmt.Errorf("vector store not configured")
	}
	docs := make([]database.SchemaDocument, 0, len(chunks))
	for _, c := range chunks {
		if strings.TrimSpace(c) == "" {
			continue
		}
		v, err := r.embedder.Embed(ctx, NormalizeText(c))
		if err != nil {
			return 0, fmt.Errorf("failed to embed chunk %d of %s: %w", len(docs), source, err)
		}
		docs = append(docs, database.SchemaDocument{Chunk: len(docs), Content: c, Embedding: v})
	}
	if err := r.store.ReplaceDocument(ctx, source, docs); err != nil {
		return 0, err
	}
	r.logger.Info("indexed document", zap.String("source", source), zap.Int("chunks", len(docs)))
	return len(docs), nil
}

var (
	spaces      = regexp.MustCompile(`\s+`)
	punctuation = regexp.MustCompile(`[?!.,;:]`)
)

// NormalizeText lowercases text and collapses whitespace.
func NormalizeText(text string) string {
	return strings.TrimSpace(spaces.ReplaceAllString(strings.ToLower(text), " "))
}

// NormalizeQuestion is NormalizeText with sentence punctuation removed.
func NormalizeQuestion(q string) string {
	return strings.TrimSpace(punctuation.ReplaceAllString(NormalizeText(q), ""))
}

// FormatExamples renders past queries as numbered few-shot examples.
func FormatExamples(queries []database.QueryExample) string {
	var b strings.Builder
	for i, q := range queries {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "Example %d:\nQuestion: %s\nSQL: %s\n", i+1, q.Question, q.SQL)
	}
	return b.String()
}

func FormatDocuments(docs []database.SchemaDocument) string {
	var b strings.Builder
	b.WriteString("-- Related documentation:\n")
	for i, doc := range docs {
		fmt.Fprintf(&b, "Document %d:\n", i+1)
		fmt.Fprintf(&b, "Source: %s\n", doc.Source)
		fmt.Fprintf(&b, "Content: %s\n", doc.Content)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// ChunkLoader is implemented by *fileprocessing.Loader.
type ChunkLoader interface {
	Chunks(ctx context.Context, ref string, size int) ([]string, error)
}

// Ingester loads documents and indexes their chunks.
type Ingester struct {
	Loader    ChunkLoader
	Retriever *Retriever
	ChunkSize int
}

// IngestDocument indexes the file behind source and returns the number of
// chunks stored.
func (i Ingester) IngestDocument(ctx context.Context, source string) (int, error) {
	chunks, err := i.Loader.Chunks(ctx, source, i.ChunkSize)
	if err != nil {
		return 0, fmt.Errorf("failed to load %s: %w", source, err)
	}
	return i.Retriever.IndexDocument(ctx, source, chunks)
}

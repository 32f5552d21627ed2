package database

import (
	"context"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"
)

func (s *Store) InsertQueryExample(ctx context.Context, ex *QueryExample) error {
	if ex.CreatedAt.IsZero() {
		ex.CreatedAt = time.Now().UTC()
	}
	if _, err := s.db.ModelContext(ctx, ex).Insert(); err != nil {
		return fmt.Errorf("failed to insert query example: %w", err)
	}
	return nil
}

// SimilarQueryExamples returns the examples nearest to v by cosine distance.
func (s *Store) SimilarQueryExamples(ctx context.Context, v pgvector.Vector, limit int) ([]QueryExample, error) {
	var out []QueryExample
	err := s.db.ModelContext(ctx, &out).
		ExcludeColumn("embedding").
		OrderExpr("embedding <=> ?", v).
		Limit(limit).
		Select()
	if err != nil {
		return nil, fmt.Errorf("error querying similar query examples: %w", err)
	}
	return out, nil
}

// UpsertTableEmbedding replaces the stored description and embedding of a table.
func (s *Store) UpsertTableEmbedding(ctx context.Context, te *TableEmbedding) error {
	te.UpdatedAt = time.Now().UTC()
	_, err := s.db.ModelContext(ctx, te).
		OnConflict("(table_name) DO UPDATE").
		Set("description = EXCLUDED.description").
		Set("embedding = EXCLUDED.embedding").
		Set("updated_at = EXCLUDED.updated_at").
		Insert()
	if err != nil {
		return fmt.Errorf("failed to upsert embedding for %s: %w", te.Name, err)
	}
	return nil
}

func (s *Store) SimilarTables(ctx context.Context, v pgvector.Vector, limit int) ([]TableEmbedding, error) {
	var out []TableEmbedding
	err := s.db.ModelContext(ctx, &out).
		ExcludeColumn("embedding").
		OrderExpr("embedding <=> ?", v).
		Limit(limit).
		Select()
	if err != nil {
		return nil, fmt.Errorf("error querying similar tables: %w", err)
	}
	return out, nil
}

// ReplaceDocument drops any chunks previously stored for source and inserts
// docs in one transaction.
func (s *Store) ReplaceDocument(ctx context.Context, source string, docs []SchemaDocument) error {
	if len(docs) == 0 {
		return nil
	}
	now := time.Now().UTC()
	for i := range docs {
		docs[i].Source = source
		if docs[i].CreatedAt.IsZero() {
			docs[i].CreatedAt = now
		}
	}
	tx, err := s.db.BeginContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Close()

	if _, err := tx.ModelContext(ctx, (*SchemaDocument)(nil)).Where("source = ?", source).Delete(); err != nil {
		return fmt.Errorf("failed to delete chunks of %s: %w", source, err)
	}
	if _, err := tx.ModelContext(ctx, &docs).Insert(); err != nil {
		return fmt.Errorf("failed to insert document embedding: %w", err)
	}
	return tx.Commit()
}

func (s *Store) SimilarDocuments(ctx context.Context, v pgvector.Vector, limit int) ([]SchemaDocument, error) {
	var out []SchemaDocument
	err := s.db.ModelContext(ctx, &out).
		ExcludeColumn("embedding").
		OrderExpr("embedding <=> ?", v).
		Limit(limit).
		Select()
	if err != nil {
		return nil, fmt.Errorf("error querying similar documents: %w", err)
	}
	return out, nil
}

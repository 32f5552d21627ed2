package schema

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"nl2sql/internal/executor"
)

// Source reads catalog information from the target database.
type Source interface {
	Tables(ctx context.Context) ([]Table, error)
	Relationships(ctx context.Context) ([]Relationship, error)
	SampleRows(ctx context.Context, t Table, limit int) (Sample, error)
}

const tablesQuery = `
SELECT
    c.table_schema,
    c.table_name,
    c.column_name,
    c.data_type,
    c.is_nullable = 'YES' AS nullable,
    c.column_default,
    EXISTS (
        SELECT 1
        FROM information_schema.table_constraints tc
        JOIN information_schema.key_column_usage kcu
            ON kcu.constraint_name = tc.constraint_name
            AND kcu.table_schema = tc.table_schema
        WHERE tc.constraint_type = 'PRIMARY KEY'
            AND kcu.table_schema = c.table_schema
            AND kcu.table_name = c.table_name
            AND kcu.column_name = c.column_name
    ) AS primary_key
FROM information_schema.tables t
JOIN information_schema.columns c
    ON t.table_name = c.table_name
    AND t.table_schema = c.table_schema
WHERE t.table_schema NOT IN ('pg_catalog', 'information_schema')
    AND t.table_type = 'BASE TABLE'
ORDER BY t.table_name, c.ordinal_position`

const relationshipsQuery = `
SELECT
    tc.table_name AS from_table,
    kcu.column_name AS from_column,
    ccu.table_name AS to_table,
    ccu.column_name AS to_column
FROM information_schema.table_constraints AS tc
JOIN information_schema.key_column_usage AS kcu
    ON tc.constraint_name = kcu.constraint_name
    AND tc.table_schema = kcu.table_schema
JOIN information_schema.constraint_column_usage AS ccu
    ON ccu.constraint_name = tc.constraint_name
    AND ccu.table_schema = tc.table_schema
WHERE tc.constraint_type = 'FOREIGN KEY'
    AND tc.table_schema NOT IN ('pg_catalog', 'information_schema')
ORDER BY from_table, from_column`

// PGSource reads information_schema through a pgx pool.
type PGSource struct {
	pool *pgxpool.Pool
}

func NewPGSource(pool *pgxpool.Pool) *PGSource {
	return &PGSource{pool: pool}
}

func (s *PGSource) Tables(ctx context.Context) ([]Table, error) {
	rows, err := s.pool.Query(ctx, tablesQuery)
	if err != nil {
		return nil, fmt.Errorf("query tables: %w", err)
	}
	defer rows.Close()

	var tables []Table
	index := map[string]int{}
	for rows.Next() {
		var (
			tableSchema, tableName string
			col                    Column
		)
		if err := rows.Scan(&tableSchema, &tableName, &col.Name, &col.DataType, &col.Nullable, &col.Default, &col.PrimaryKey); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		key := tableSchema + "." + tableName
		i, ok := index[key]
		if !ok {
			i = len(tables)
			index[key] = i
			tables = append(tables, Table{Schema: tableSchema, Name: tableName})
		}
		tables[i].Columns = append(tables[i].Columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query tables: %w", err)
	}
	return tables, nil
}

func (s *PGSource) Relationships(ctx context.Context) ([]Relationship, error) {
	rows, err := s.pool.Query(ctx, relationshipsQuery)
	if err != nil {
		return nil, fmt.Errorf("query relationships: %w", err)
	}
	rels, err := pgx.CollectRows(rows, pgx.RowToStructByName[Relationship])
	if err != nil {
		return nil, fmt.Errorf("query relationships: %w", err)
	}
	return rels, nil
}

func (s *PGSource) SampleRows(ctx context.Context, t Table, limit int) (Sample, error) {
	ident := pgx.Identifier{t.Schema, t.Name}
	if t.Schema == "" {
		ident = pgx.Identifier{t.Name}
	}
	rows, err := s.pool.Query(ctx, "SELECT * FROM "+ident.Sanitize()+" LIMIT $1", limit)
	if err != nil {
		return Sample{}, fmt.Errorf("sample %s: %w", t.Name, err)
	}
	defer rows.Close()

	var sample Sample
	for _, f := range rows.FieldDescriptions() {
		sample.Columns = append(sample.Columns, f.Name)
	}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return Sample{}, fmt.Errorf("sample %s: %w", t.Name, err)
		}
		for i := range values {
			values[i] = executor.NormalizeValue(values[i])
		}
		sample.Rows = append(sample.Rows, values)
	}
	return sample, rows.Err()
}

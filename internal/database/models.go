package database

import (
	"time"

	"github.com/pgvector/pgvector-go"
)

type AuditRecord struct {
	tableName struct{} `pg:"audit_log"`

	ID               string    `pg:"log_id,pk"`
	Kind             string    `pg:"log_type,notnull"`
	Timestamp        time.Time `pg:"timestamp,notnull"`
	SessionID        string    `pg:"session_id"`
	Mode             string    `pg:"mode"`
	Question         string    `pg:"question"`
	SQL              string    `pg:"sql"`
	Success          *bool     `pg:"execution_success"`
	Error            string    `pg:"error_message"`
	ExecutionSeconds *float64  `pg:"execution_time_seconds"`
	RowsReturned     *int64    `pg:"rows_returned"`
	Action           string    `pg:"action"`
	Approved         bool      `pg:"dba_approved,use_zero"`
	ApproverID       string    `pg:"approver_id"`
}

// QueryExample is a question whose generated SQL executed and returned rows.
type QueryExample struct {
	tableName struct{} `pg:"query_examples"`

	ID               int64           `pg:"id,pk"`
	Question         string          `pg:"question,notnull"`
	SQL              string          `pg:"sql,notnull"`
	ExecutionSeconds float64         `pg:"execution_time_seconds,use_zero"`
	RowCount         int64           `pg:"row_count,use_zero"`
	CreatedAt        time.Time       `pg:"created_at,notnull"`
	Embedding        pgvector.Vector `pg:"embedding,type:vector"`
}

// TableEmbedding holds one embedded table description, keyed by table name.
type TableEmbedding struct {
	tableName struct{} `pg:"table_embeddings"`

	Name        string          `pg:"table_name,pk"`
	Description string          `pg:"description,notnull"`
	UpdatedAt   time.Time       `pg:"updated_at,notnull"`
	Embedding   pgvector.Vector `pg:"embedding,type:vector"`
}

// SchemaDocument is one chunk of an ingested data-dictionary document.
type SchemaDocument struct {
	tableName struct{} `pg:"schema_documents"`

	ID        int64           `pg:"id,pk"`
	Source    string          `pg:"source,notnull"`
	Chunk     int             `pg:"chunk,use_zero"`
	Content   string          `pg:"content,notnull"`
	CreatedAt time.Time       `pg:"created_at,notnull"`
	Embedding pgvector.Vector `pg:"embedding,type:vector"`
}

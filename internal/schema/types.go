package schema

type Column struct {
	Name       string  `json:"column_name"`
	DataType   string  `json:"data_type"`
	Nullable   bool    `json:"is_nullable"`
	Default    *string `json:"column_default,omitempty"`
	PrimaryKey bool    `json:"primary_key"`
}

type Table struct {
	Schema  string   `json:"table_schema"`
	Name    string   `json:"table_name"`
	Columns []Column `json:"columns"`
}

func (t Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// Relationship is a foreign key edge.
type Relationship struct {
	FromTable  string `json:"from_table" db:"from_table"`
	FromColumn string `json:"from_column" db:"from_column"`
	ToTable    string `json:"to_table" db:"to_table"`
	ToColumn   string `json:"to_column" db:"to_column"`
}

// Sample holds a few rows of a table, values already stringified.
type Sample struct {
	Columns []string
	Rows    [][]any
}

// Package schema introspects the target database and renders the schema
// text handed to the SQL model.
package schema

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	sampleRowsPerTable = 2
	sampleValueWidth   = 30
	cachePrefix        = "context:"
)

// Manager caches the catalog in process and rendered contexts in Cache.
type Manager struct {
	src    Source
	cache  Cache
	ttl    time.Duration
	logger *zap.Logger

	mu     sync.Mutex
	tables []Table
	rels   []Relationship
	keys   map[string]struct{}
}

func NewManager(src Source, cache Cache, ttl time.Duration, logger *zap.Logger) *Manager {
	if cache == nil {
		cache = NewMemoryCache()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{src: src, cache: cache, ttl: ttl, logger: logger, keys: map[string]struct{}{}}
}

// Tables returns every base table outside the system schemas.
func (m *Manager) Tables(ctx context.Context) ([]Table, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tables != nil {
		return m.tables, nil
	}
	tables, err := m.src.Tables(ctx)
	if err != nil {
		m.logger.Error("failed to fetch schema", zap.Error(err))
		return nil, err
	}
	if tables == nil {
		tables = []Table{}
	}
	m.tables = tables
	m.logger.Info("fetched schema", zap.Int("tables", len(tables)))
	return tables, nil
}

// Relationships returns foreign keys. Failures yield an empty list.
func (m *Manager) Relationships(ctx context.Context) []Relationship {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rels != nil {
		return m.rels
	}
	rels, err := m.src.Relationships(ctx)
	if err != nil {
		m.logger.Error("failed to fetch relationships", zap.Error(err))
		return []Relationship{}
	}
	if rels == nil {
		rels = []Relationship{}
	}
	m.rels = rels
	return rels
}

func (m *Manager) Table(ctx context.Context, name string) (Table, bool, error) {
	tables, err := m.Tables(ctx)
	if err != nil {
		return Table{}, false, err
	}
	for _, t := range tables {
		if t.Name == name {
			return t, true, nil
		}
	}
	return Table{}, false, nil
}

func (m *Manager) TableNames(ctx context.Context) ([]string, error) {
	tables, err := m.Tables(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(tables))
	for i, t := range tables {
		names[i] = t.Name
	}
	return names, nil
}

// Refresh drops every cached catalog entry and rendered context.
func (m *Manager) Refresh(ctx context.Context) error {
	m.mu.Lock()
	m.tables, m.rels = nil, nil
	keys := make([]string, 0, len(m.keys))
	for k := range m.keys {
		keys = append(keys, k)
	}
	m.keys = map[string]struct{}{}
	m.mu.Unlock()
	return m.cache.Delete(ctx, keys...)
}

// BuildContext renders CREATE TABLE style text for the relevant tables, or
// for every table when relevant is empty, followed by sample rows and the
// foreign key list.
func (m *Manager) BuildContext(ctx context.Context, relevant []string) (string, error) {
	key := contextKey(relevant)
	if v, ok, err := m.cache.Get(ctx, key); err != nil {
		m.logger.Warn("schema cache read failed", zap.Error(err))
	} else if ok {
		return v, nil
	}

	tables, err := m.Tables(ctx)
	if err != nil {
		return "", err
	}
	if len(relevant) > 0 {
		tables = slices.DeleteFunc(slices.Clone(tables), func(t Table) bool {
			return !slices.Contains(relevant, t.Name)
		})
	}

	samples := make(map[string]Sample, len(tables))
	for _, t := range tables {
		s, err := m.src.SampleRows(ctx, t, sampleRowsPerTable)
		if err != nil {
			m.logger.Warn("failed to fetch sample data", zap.String("table", t.Name), zap.Error(err))
			continue
		}
		samples[t.Name] = s
	}

	text := Render(tables, samples, m.Relationships(ctx))
	if err := m.cache.Set(ctx, key, text, m.ttl); err != nil {
		m.logger.Warn("schema cache write failed", zap.Error(err))
	} else {
		m.mu.Lock()
		m.keys[key] = struct{}{}
		m.mu.Unlock()
	}
	return text, nil
}

func contextKey(relevant []string) string {
	if len(relevant) == 0 {
		return cachePrefix + "*"
	}
	names := slices.Clone(relevant)
	slices.Sort(names)
	return cachePrefix + strings.Join(slices.Compact(names), ",")
}

// Render is the pure formatting half of BuildContext.
func Render(tables []Table, samples map[string]Sample, rels []Relationship) string {
	var parts []string
	for _, t := range tables {
		parts = append(parts, "-- Table: "+t.Name)

		defs := make([]string, len(t.Columns))
		for i, c := range t.Columns {
			def := fmt.Sprintf("    %s %s", c.Name, c.DataType)
			if c.PrimaryKey {
				def += " PRIMARY KEY"
			}
			if !c.Nullable {
				def += " NOT NULL"
			}
			if c.Default != nil && *c.Default != "" {
				def += " DEFAULT " + *c.Default
			}
			defs[i] = def
		}
		parts = append(parts, "CREATE TABLE "+t.Name+" (", strings.Join(defs, ",\n"), ");")

		if s, ok := samples[t.Name]; ok && len(s.Rows) > 0 {
			parts = append(parts, "-- Sample data from "+t.Name+":")
			parts = append(parts, "-- "+strings.Join(s.Columns, " | "))
			for _, row := range s.Rows {
				values := make([]string, len(row))
				for i, v := range row {
					values[i] = sampleValue(v)
				}
				parts = append(parts, "-- "+strings.Join(values, " | "))
			}
		}
		parts = append(parts, "")
	}

	if len(rels) > 0 {
		parts = append(parts, "-- Foreign Key Relationships:")
		for _, r := range rels {
			parts = append(parts, fmt.Sprintf("-- %s.%s -> %s.%s", r.FromTable, r.FromColumn, r.ToTable, r.ToColumn))
		}
	}
	return strings.Join(parts, "\n")
}

func sampleValue(v any) string {
	if v == nil {
		return "NULL"
	}
	s := fmt.Sprint(v)
	if r := []rune(s); len(r) > sampleValueWidth {
		return string(r[:sampleValueWidth])
	}
	return s
}

// Describe is the text embedded for a table when indexing the schema.
func Describe(t Table) string {
	types := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		types[i] = fmt.Sprintf("%s (%s)", c.Name, c.DataType)
	}
	return strings.Join([]string{
		"Table: " + t.Name,
		"Columns: " + strings.Join(t.ColumnNames(), ", "),
		"Column types: " + strings.Join(types, ", "),
	}, " | ")
}

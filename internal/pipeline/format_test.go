package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatExecutionTime(t *testing.T) {
	assert.Equal(t, "450 ms", FormatExecutionTime(450*time.Millisecond))
	assert.Equal(t, "2.30 s", FormatExecutionTime(2300*time.Millisecond))
	assert.Equal(t, "1m 5.0s", FormatExecutionTime(65*time.Second))
}

func TestPluralize(t *testing.T) {
	assert.Equal(t, "1 row", Pluralize(1, "row"))
	assert.Equal(t, "0 rows", Pluralize(0, "row"))
	assert.Equal(t, "12 rows", Pluralize(12, "row"))
}

func TestFormatResultTable(t *testing.T) {
	rows := []map[string]any{
		{"name": "Ada", "note": nil},
		{"name": "Grace|Hopper", "note": "line\nbreak"},
		{"name": "Linus", "note": "x"},
	}
	got := FormatResultTable([]string{"name", "note"}, rows, 2)
	want := "| name | note |\n" +
		"| --- | --- |\n" +
		"| Ada | NULL |\n" +
		"| Grace\\|Hopper | line break |\n" +
		"\n_Showing 2 of 3 rows_\n"
	assert.Equal(t, want, got)
	assert.Equal(t, "_No results_", FormatResultTable(nil, nil, 10))
}

func TestTruncateText(t *testing.T) {
	assert.Equal(t, "abc", TruncateText("abc", 5))
	assert.Equal(t, "ab...", TruncateText("abcdefgh", 5))
}

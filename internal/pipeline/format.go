package pipeline

import (
	"fmt"
	"strings"
	"time"
)

// FormatExecutionTime renders d as "450 ms", "2.30 s" or "1m 5.0s".
func FormatExecutionTime(d time.Duration) string {
	secs := d.Seconds()
	switch {
	case secs < 1:
		return fmt.Sprintf("%.0f ms", secs*1000)
	case secs < 60:
		return fmt.Sprintf("%.2f s", secs)
	default:
		minutes := int(secs / 60)
		return fmt.Sprintf("%dm %.1fs", minutes, secs-float64(minutes*60))
	}
}

func Pluralize(n int64, word string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}

// TruncateText cuts s to max runes, ending in "..." when shortened.
func TruncateText(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}

// FormatResultTable renders rows as a markdown table of at most maxRows
// rows. Cell values are cut to 100 characters.
func FormatResultTable(columns []string, rows []map[string]any, maxRows int) string {
	if len(rows) == 0 || len(columns) == 0 {
		return "_No results_"
	}
	shown := rows
	if maxRows > 0 && len(rows) > maxRows {
		shown = rows[:maxRows]
	}

	var b strings.Builder
	b.WriteString("| " + strings.Join(columns, " | ") + " |\n")
	b.WriteString("|" + strings.Repeat(" --- |", len(columns)) + "\n")
	for _, row := range shown {
		cells := make([]string, len(columns))
		for i, c := range columns {
			v, ok := row[c]
			if !ok || v == nil {
				cells[i] = "NULL"
				continue
			}
			cell := strings.ReplaceAll(fmt.Sprint(v), "|", `\|`)
			cells[i] = TruncateText(strings.ReplaceAll(cell, "\n", " "), 100)
		}
		b.WriteString("| " + strings.Join(cells, " | ") + " |\n")
	}
	if len(shown) < len(rows) {
		fmt.Fprintf(&b, "\n_Showing %d of %d rows_\n", len(shown), len(rows))
	}
	return b.String()
}

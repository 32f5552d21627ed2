package sqlguard

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hasIssueContaining(issues []string, fragment string) bool {
	for _, issue := range issues {
		if strings.Contains(strings.ToLower(issue), strings.ToLower(fragment)) {
			return true
		}
	}
	return false
}

func TestCheckReadOnly(t *testing.T) {
	cases := []struct {
		name     string
		sql      string
		safe     bool
		fragment string
	}{
		{name: "plain select", sql: "SELECT * FROM t", safe: true},
		{name: "select with where", sql: "SELECT * FROM users WHERE active = true", safe: true},
		{name: "update rejected", sql: "UPDATE t SET x=1", fragment: "read-only"},
		{name: "insert rejected", sql: "INSERT INTO t VALUES (1)", fragment: "read-only"},
		{name: "cte select", sql: "WITH totals AS (SELECT region, SUM(amount) AS s FROM sales GROUP BY region) SELECT * FROM totals", safe: true},
		{name: "cte with delete", sql: "WITH gone AS (DELETE FROM t RETURNING *) SELECT * FROM gone", fragment: "read-only"},
		{name: "block comment flagged", sql: "/* report */ SELECT 1", fragment: "injection"},
		{name: "lowercase select", sql: "select name from customers", safe: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := Check(tc.sql, ReadOnly)
			assert.Equal(t, tc.safe, v.IsSafe, "issues: %v", v.Issues)
			assert.Equal(t, v.IsSafe, len(v.Issues) == 0)
			if tc.fragment != "" {
				assert.True(t, hasIssueContaining(v.Issues, tc.fragment), "issues %v lack %q", v.Issues, tc.fragment)
			}
		})
	}
}

func TestCheckEmpty(t *testing.T) {
	for _, sql := range []string{"", "   ", "\n\t"} {
		v := Check(sql, ReadOnly)
		require.False(t, v.IsSafe)
		assert.Equal(t, []string{IssueEmpty}, v.Issues)
	}
}

func TestCheckUnbalancedParentheses(t *testing.T) {
	for _, sql := range []string{
		"SELECT COUNT(* FROM t",
		"SELECT COUNT(*)) FROM t",
		"SELECT a FROM t WHERE (b = 1",
		"SELECT a FROM t WHERE )b = 1(",
	} {
		for _, mode := range []Mode{ReadOnly, Privileged} {
			v := Check(sql, mode)
			assert.False(t, v.IsSafe, sql)
			assert.True(t, hasIssueContaining(v.Issues, "parentheses"), "%s: %v", sql, v.Issues)
		}
	}
}

func TestCheckUnbalancedQuotes(t *testing.T) {
	v := Check("SELECT * FROM t WHERE name = 'bob", ReadOnly)
	assert.False(t, v.IsSafe)
	assert.True(t, hasIssueContaining(v.Issues, "quotes"))
}

func TestCheckDestructiveInAnyMode(t *testing.T) {
	stmts := []string{
		"DROP TABLE users",
		"truncate table logs",
		"ALTER TABLE users ADD COLUMN test VARCHAR(255)",
		"Create table new_table (id INT)",
		"RENAME TABLE a TO b",
	}
	for _, sql := range stmts {
		for _, mode := range []Mode{ReadOnly, Privileged} {
			v := Check(sql, mode)
			assert.False(t, v.IsSafe, sql)
			assert.True(t, hasIssueContaining(v.Issues, "Destructive operation detected"), "%s: %v", sql, v.Issues)
		}
		assert.NotEmpty(t, CheckDestructive(sql))
	}
}

func TestCheckDestructiveWholeWordOnly(t *testing.T) {
	assert.Empty(t, CheckDestructive("SELECT created_at, dropped_calls FROM calls"))
	assert.Equal(t, []string{"Destructive operation detected: DROP"}, CheckDestructive("select 1; drop table x"))
}

func TestHasInjection(t *testing.T) {
	attempts := []string{
		"SELECT * FROM users; DROP TABLE users;",
		"SELECT * FROM users UNION SELECT * FROM passwords",
		"SELECT * FROM users WHERE id = 1 OR 1=1 --",
		"SELECT * FROM t /* hidden */",
		"SELECT 1; SELECT 2",
		"EXEC (xp_cmdshell 'dir')",
	}
	for _, sql := range attempts {
		assert.True(t, HasInjection(sql), sql)
	}
	assert.False(t, HasInjection("SELECT name, email FROM users WHERE active = true"))
	assert.False(t, HasInjection("SELECT 1;"))
	assert.False(t, HasInjection("SELECT ';' AS sep FROM t"))
}

func TestCheckPrivilegedWhereGuard(t *testing.T) {
	v := Check("DELETE FROM users", Privileged)
	require.False(t, v.IsSafe)
	assert.Contains(t, v.Issues, "DELETE query without WHERE clause - affects all rows!")

	v = Check("UPDATE users SET active = false", Privileged)
	assert.Contains(t, v.Issues, "UPDATE query without WHERE clause - affects all rows!")

	v = Check("DELETE FROM users WHERE inactive_days > 365", Privileged)
	assert.True(t, v.IsSafe, "issues: %v", v.Issues)

	v = Check("UPDATE users SET active = false WHERE id = 1", Privileged)
	assert.True(t, v.IsSafe, "issues: %v", v.Issues)
}

func TestCheckIsPure(t *testing.T) {
	for _, sql := range []string{"SELECT 1", "DROP TABLE x; --", "UPDATE t SET a=1", ""} {
		for _, mode := range []Mode{ReadOnly, Privileged} {
			first := Check(sql, mode)
			second := Check(sql, mode)
			if diff := cmp.Diff(first, second); diff != "" {
				t.Fatalf("Check(%q, %v) not stable (-first +second):\n%s", sql, mode, diff)
			}
		}
	}
}

func TestHasWhereClause(t *testing.T) {
	assert.True(t, HasWhereClause("DELETE FROM users WHERE inactive_days > 365"))
	assert.False(t, HasWhereClause("DELETE FROM users"))
	assert.False(t, HasWhereClause("SELECT nowhere FROM t"))
}

func TestQueryType(t *testing.T) {
	cases := []struct {
		sql  string
		want StatementType
	}{
		{"SELECT 1", Select},
		{"  with x as (select 1) select * from x", Select},
		{"INSERT INTO t VALUES (1)", Insert},
		{"-- note\nUPDATE t SET a = 1", Update},
		{"DELETE FROM t", Delete},
		{"VACUUM", DDL},
		{"", Unknown},
	}
	for _, tc := range cases {
		if got := QueryType(tc.sql); got != tc.want {
			t.Errorf("QueryType(%q) = %v, want %v", tc.sql, got, tc.want)
		}
	}
}

func TestSplitStatements(t *testing.T) {
	got := SplitStatements("SELECT 'a;b' FROM t; SELECT \"x;y\" FROM u;")
	want := []string{"SELECT 'a;b' FROM t", `SELECT "x;y" FROM u`}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("SplitStatements mismatch (-want +got):\n%s", diff)
	}
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("dba")
	require.NoError(t, err)
	assert.Equal(t, Privileged, m)

	m, err = ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ReadOnly, m)

	_, err = ParseMode("root")
	assert.Error(t, err)
}

package executor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCountQueryFor(t *testing.T) {
	cases := []struct {
		name, sql, want string
		ok              bool
	}{
		{
			name: "update with where",
			sql:  "UPDATE accounts SET active = false WHERE last_login < '2023-01-01';",
			want: "SELECT COUNT(*) FROM accounts WHERE last_login < '2023-01-01'",
			ok:   true,
		},
		{
			name: "update lower case with alias",
			sql:  "update accounts a set active = false where a.id > 10",
			want: "SELECT COUNT(*) FROM accounts a where a.id > 10",
			ok:   true,
		},
		{
			name: "update without where",
			sql:  "UPDATE accounts SET active = true",
			want: "SELECT COUNT(*) FROM accounts",
			ok:   true,
		},
		{
			name: "update returning",
			sql:  "UPDATE t SET x = 1 WHERE y = 2 RETURNING id",
			want: "SELECT COUNT(*) FROM t WHERE y = 2",
			ok:   true,
		},
		{
			name: "update from join",
			sql:  "UPDATE t SET x = o.x FROM other o WHERE o.id = t.id",
			ok:   false,
		},
		{
			name: "delete",
			sql:  "DELETE FROM sessions WHERE expires_at < now()",
			want: "SELECT COUNT(*) FROM sessions WHERE expires_at < now()",
			ok:   true,
		},
		{
			name: "delete using",
			sql:  "DELETE FROM a USING b WHERE a.id = b.id",
			ok:   false,
		},
		{name: "select", sql: "SELECT 1", ok: false},
		{name: "insert", sql: "INSERT INTO t VALUES (1)", ok: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := CountQueryFor(tc.sql)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookup(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestFromEnvDefaults(t *testing.T) {
	cfg, err := FromEnv(lookup(map[string]string{
		"NEON_READONLY_CONNECTION_STRING": "postgres://reader@localhost/app",
	}))
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.QueryTimeout)
	assert.Equal(t, 10*time.Second, cfg.ExplainTimeout)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 10000, cfg.MaxResultRows)
	assert.Equal(t, "ollama", cfg.LLMProvider)
	assert.Equal(t, 10*time.Minute, cfg.SchemaCacheTTL)
	assert.Equal(t, time.Hour, cfg.ApprovalTimeout)
	assert.True(t, cfg.EnableAudit)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.False(t, cfg.DBAEnabled())
}

func TestFromEnvOverrides(t *testing.T) {
	cfg, err := FromEnv(lookup(map[string]string{
		"NEON_READONLY_CONNECTION_STRING": "postgres://reader@localhost/app",
		"NEON_DBA_CONNECTION_STRING":      "postgres://owner@localhost/app",
		"MAX_QUERY_RETRIES":               "5",
		"ENABLE_AUDIT_LOGGING":            "false",
		"LLM_PROVIDER":                    "OpenAI",
		"OPENAI_API_KEY":                  "sk-test",
		"RATE_LIMIT_RPS":                  "2.5",
		"SESSION_TIMEOUT_HOURS":           "4",
	}))
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.MaxRetries)
	assert.False(t, cfg.EnableAudit)
	assert.Equal(t, "openai", cfg.LLMProvider)
	assert.InDelta(t, 2.5, cfg.RateLimitRPS, 1e-9)
	assert.Equal(t, 4*time.Hour, cfg.ApprovalTimeout)
	assert.True(t, cfg.DBAEnabled())
}

func TestFromEnvRejectsInvalid(t *testing.T) {
	cases := map[string]map[string]string{
		"missing readonly dsn": {},
		"bad integer": {
			"NEON_READONLY_CONNECTION_STRING": "postgres://x",
			"MAX_QUERY_RETRIES":               "three",
		},
		"retries out of range": {
			"NEON_READONLY_CONNECTION_STRING": "postgres://x",
			"MAX_QUERY_RETRIES":               "20",
		},
		"unknown provider": {
			"NEON_READONLY_CONNECTION_STRING": "postgres://x",
			"LLM_PROVIDER":                    "carrier-pigeon",
		},
		"openai without key": {
			"NEON_READONLY_CONNECTION_STRING": "postgres://x",
			"LLM_PROVIDER":                    "openai",
		},
		"dba user without password": {
			"NEON_READONLY_CONNECTION_STRING": "postgres://x",
			"DBA_USER":                        "admin",
		},
	}
	for name, vars := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := FromEnv(lookup(vars))
			assert.Error(t, err)
		})
	}
}

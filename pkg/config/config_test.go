package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Adithya-Monish-Kumar-K/tfsearch/pkg/errors"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_EngineJSON(t *testing.T) {
	path := writeConfig(t, `{
		"config": {"name": "Coffee search", "version": "0.1", "max_responses": 3},
		"files": ["docs/a.txt", "docs/b.txt"]
	}`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "Coffee search", cfg.Engine.Name)
	assert.Equal(t, 3, cfg.Engine.MaxResponses)
	assert.Equal(t, []string{"docs/a.txt", "docs/b.txt"}, cfg.Files)
	assert.Equal(t, "requests.json", cfg.Requests)
	assert.Equal(t, "answers.json", cfg.Answers)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoad_YAMLSections(t *testing.T) {
	path := writeConfig(t, `
config:
  max_responses: 5
files: [a.txt]
server:
  port: 9000
  readTimeout: 5s
search:
  matchMode: all
redis:
  enabled: true
  cacheTTL: 2m
watch:
  enabled: true
  debounce: 250ms
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "all", cfg.Search.MatchMode)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, 2*time.Minute, cfg.Redis.CacheTTL)
	assert.Equal(t, 250*time.Millisecond, cfg.Watch.Debounce)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("TF_MAX_RESPONSES", "9")
	t.Setenv("TF_SEARCH_MATCH_MODE", "all")
	t.Setenv("TF_KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("TF_LOGGING_LEVEL", "debug")

	cfg, err := Load(writeConfig(t, `{"config": {"max_responses": 5}, "files": ["a.txt"]}`))
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.Engine.MaxResponses)
	assert.Equal(t, "all", cfg.Search.MatchMode)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_Errors(t *testing.T) {
	tests := map[string]struct {
		body    string
		message string
	}{
		"missing config section": {
			body:    `{"files": ["a.txt"]}`,
			message: "field 'config' not found",
		},
		"missing files": {
			body:    `{"config": {"max_responses": 5}}`,
			message: "field 'files' not found or empty",
		},
		"zero responses": {
			body:    `{"config": {"max_responses": 0}, "files": ["a.txt"]}`,
			message: "max_responses must be positive",
		},
		"bad match mode": {
			body:    `{"config": {"max_responses": 1}, "files": ["a.txt"], "search": {"matchMode": "some"}}`,
			message: "search.matchMode",
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.body))
			require.Error(t, err)
			assert.ErrorIs(t, err, apperrors.ErrInvalidConfig)
			assert.Contains(t, err.Error(), tc.message)
		})
	}
}

func TestLoad_ReportsEveryProblem(t *testing.T) {
	_, err := Load(writeConfig(t, `{"indexer": {"maxWorkers": -1}}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "field 'config' not found")
	assert.Contains(t, err.Error(), "field 'files' not found or empty")
	assert.Contains(t, err.Error(), "maxWorkers must not be negative")
}

func TestLoad_FileProblems(t *testing.T) {
	_, err := Load("")
	assert.ErrorIs(t, err, apperrors.ErrInvalidConfig)

	_, err = Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = Load(writeConfig(t, `{"config": [`))
	assert.Error(t, err)
}

func TestValidate_CodeBuiltConfig(t *testing.T) {
	cfg := Default()
	cfg.Files = []string{"a.txt"}
	assert.Error(t, cfg.Validate())
	cfg.MarkEngineSet()
	assert.NoError(t, cfg.Validate())
}

func TestPostgresDSN(t *testing.T) {
	dsn := Default().Postgres.DSN()
	assert.Equal(t, "host=localhost port=5432 user=tfsearch password=localdev dbname=tfsearch sslmode=disable", dsn)
}

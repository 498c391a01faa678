package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/corpus-core/internal/core/domain"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ModeAll, cfg.Mode)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.Empty(t, cfg.Redis.URL)
	assert.Equal(t, domain.DefaultCoordinatorConfig(), cfg.Coordinator.Domain())
	assert.True(t, cfg.RunsAPI())
	assert.True(t, cfg.RunsWorker())
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode: worker
server:
  port: 9000
kafka:
  brokers: [kafka-1:9092, kafka-2:9092]
  topics:
    crawl: crawler.requests
coordinator:
  staleLockAfter: 5m
  maxIterations: 10
scheduler:
  retention: 48h
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ModeWorker, cfg.Mode)
	assert.False(t, cfg.RunsAPI())
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "crawler.requests", cfg.Kafka.Topics.Crawl)
	// Unset topics keep their defaults
	assert.Equal(t, "corpus.compute-done", cfg.Kafka.Topics.ComputeDone)

	c := cfg.Coordinator.Domain()
	assert.Equal(t, 5*time.Minute, c.StaleLockAfter)
	assert.Equal(t, 10, c.MaxIterations)
	assert.Equal(t, 30*time.Second, c.IdleThreshold)
	assert.Equal(t, 48*time.Hour, cfg.Scheduler.Retention)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("RUN_MODE", "api")
	t.Setenv("PORT", "8181")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("KAFKA_BROKERS", "a:9092, b:9092")
	t.Setenv("CRAWL_IDLE_THRESHOLD", "45s")
	t.Setenv("SCHEDULER_ENABLED", "false")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://app.example.com")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ModeAPI, cfg.Mode)
	assert.Equal(t, 8181, cfg.Server.Port)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Redis.URL)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 45*time.Second, cfg.Coordinator.IdleThreshold)
	assert.False(t, cfg.Scheduler.Enabled)
	assert.Equal(t, []string{"https://app.example.com"}, cfg.Server.AllowedOrigins)
}

func TestLoad_MalformedEnv(t *testing.T) {
	t.Setenv("PORT", "eighty")
	t.Setenv("CRAWL_START_DELAY", "soon")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PORT")
	assert.Contains(t, err.Error(), "CRAWL_START_DELAY")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad mode", func(c *Config) { c.Mode = "batch" }},
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"no database", func(c *Config) { c.Postgres.URL = "" }},
		{"no brokers", func(c *Config) { c.Kafka.Brokers = nil }},
		{"no prometheus", func(c *Config) { c.Prometheus.URL = "" }},
		{"no data root", func(c *Config) { c.Storage.DataRoot = "" }},
		{"no retention", func(c *Config) { c.Scheduler.Retention = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	assert.NoError(t, Default().Validate())
}

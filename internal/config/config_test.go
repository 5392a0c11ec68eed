package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
ai:
  provider: gemini
  gemini_api_key: g-key
  model: gemini-1.5-flash
site:
  items_per_page: 12
ingest:
  max_per_run: 3
  ranking: score
  fulltext_rss_base_url: https://ftr.example.com/
storage:
  backend: postgres
  postgres:
    dsn: postgres://localhost/chiripo
blob:
  backend: gcs
  bucket: bodies-bucket
publisher:
  backend: sns
  aws:
    region: ap-northeast-1
    topic_arn: arn:aws:sns:ap-northeast-1:123:articles
jobs:
  workers: 4
daily:
  schedule: "30 8 * * *"
logging:
  development: false
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, "gemini", cfg.AI.Provider)
	require.Equal(t, "g-key", cfg.AI.Key())
	require.Equal(t, 12, cfg.Site.ItemsPerPage)
	require.Equal(t, 3, cfg.Ingest.MaxPerRun)
	require.Equal(t, "score", cfg.Ingest.Ranking)
	require.Equal(t, "https://ftr.example.com", cfg.Ingest.FullTextRSSBaseURL)
	require.Equal(t, "postgres", cfg.Storage.Backend)
	require.Equal(t, "bodies-bucket", cfg.Blob.Bucket)
	require.Equal(t, "sns", cfg.Publisher.Backend)
	require.Equal(t, 4, cfg.Jobs.Workers)
	require.Equal(t, "30 8 * * *", cfg.Daily.Schedule)
	require.False(t, cfg.Logging.Development)

	// untouched keys keep their defaults
	require.Equal(t, 240, cfg.Ingest.RefreshIntervalMinutes)
	require.Equal(t, 2000, cfg.Site.DisplayLimit)
	require.Equal(t, "newsite_admin", cfg.Admin.CookieName)
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "openai", cfg.AI.Provider)
	require.Equal(t, "https://api.openai.com/v1", cfg.AI.BaseURL)
	require.Equal(t, "https://picsum.photos", cfg.Site.CDNBaseURL)
	require.Equal(t, 24, cfg.Site.ItemsPerPage)
	require.Equal(t, 6, cfg.Ingest.DailyArticleLimit)
	require.Equal(t, 30, cfg.Ingest.SeedTarget)
	require.Equal(t, 20, cfg.Ingest.StartupThreshold)
	require.Equal(t, "auto", cfg.Storage.Backend)
	require.Equal(t, "data/chiripo.db", cfg.Storage.SQLite.Path)
	require.Equal(t, "credentials/firebase-service-account.json", cfg.Storage.Firestore.CredentialsFile)
	require.Equal(t, 32, cfg.Jobs.QueueDepth)
	require.Equal(t, 10, cfg.Trends.CacheMinutes)
	require.Equal(t, "0 9 * * *", cfg.Daily.Schedule)
	require.Equal(t, 180, int(cfg.Ingest.JobTimeout().Seconds()))
	require.Equal(t, 5, cfg.Fetch.Headless.ArticleWaitSec)
}

//nolint:paralleltest // mutates process environment
func TestLoadLegacyEnvironment(t *testing.T) {
	t.Setenv("PORT", "7070")
	t.Setenv("OPENAI_API_KEY", "sk-legacy")
	t.Setenv("DISABLE_RSS_UPDATE", "true")
	t.Setenv("NEWS_REFRESH_INTERVAL", "15")
	t.Setenv("ADMIN_SECRET", "  hunter2 ")
	t.Setenv("FIREBASE_PROJECT_ID", "chiripo-prod")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 7070, cfg.Server.Port)
	require.Equal(t, "sk-legacy", cfg.AI.Key())
	require.True(t, cfg.Ingest.UpdatesDisabled)
	require.Equal(t, 15, cfg.Ingest.RefreshIntervalMinutes)
	require.Equal(t, "hunter2", cfg.Admin.Secret)
	require.True(t, cfg.Admin.Enabled())
	require.Equal(t, "chiripo-prod", cfg.Storage.Firestore.ProjectID)
}

//nolint:paralleltest // mutates process environment
func TestPrefixedEnvironmentWinsOverLegacy(t *testing.T) {
	t.Setenv("PORT", "7070")
	t.Setenv("CHIRIPO_SERVER_PORT", "6060")
	t.Setenv("CHIRIPO_JOBS_WORKERS", "5")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 6060, cfg.Server.Port)
	require.Equal(t, 5, cfg.Jobs.Workers)
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server:    ServerConfig{Port: 8001},
		AI:        AIConfig{Provider: "openai"},
		Site:      SiteConfig{ItemsPerPage: 24},
		Ingest:    IngestConfig{RefreshIntervalMinutes: 240, MaxPerRun: 5, Ranking: "trend"},
		Storage:   StorageConfig{Backend: "auto"},
		Blob:      BlobConfig{Backend: "none"},
		Publisher: PublisherConfig{Backend: "none"},
		Jobs:      JobsConfig{Workers: 2},
	}
	require.NoError(t, base.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"provider", func(c *Config) { c.AI.Provider = "claude" }, "ai.provider"},
		{"refresh", func(c *Config) { c.Ingest.RefreshIntervalMinutes = 0 }, "ingest.refresh_interval_minutes"},
		{"max per run", func(c *Config) { c.Ingest.MaxPerRun = 0 }, "ingest.max_per_run"},
		{"ranking", func(c *Config) { c.Ingest.Ranking = "random" }, "ingest.ranking"},
		{"items per page", func(c *Config) { c.Site.ItemsPerPage = -1 }, "site.items_per_page"},
		{"storage backend", func(c *Config) { c.Storage.Backend = "mysql" }, "storage.backend"},
		{"postgres dsn", func(c *Config) { c.Storage.Backend = "postgres" }, "storage.postgres.dsn"},
		{"blob backend", func(c *Config) { c.Blob.Backend = "s3" }, "blob.backend"},
		{"gcs bucket", func(c *Config) { c.Blob.Backend = "gcs" }, "blob.bucket"},
		{"azure", func(c *Config) { c.Blob.Backend = "azure" }, "blob.azure_connection_string"},
		{"publisher backend", func(c *Config) { c.Publisher.Backend = "kafka" }, "publisher.backend"},
		{"pubsub", func(c *Config) { c.Publisher.Backend = "pubsub" }, "publisher.project_id"},
		{"sns", func(c *Config) { c.Publisher.Backend = "sns" }, "publisher.aws.topic_arn"},
		{"sqs", func(c *Config) { c.Publisher.Backend = "sqs" }, "publisher.aws.queue_url"},
		{"headless", func(c *Config) { c.Fetch.Headless.Enabled = true }, "fetch.headless.max_parallel"},
		{"workers", func(c *Config) { c.Jobs.Workers = 0 }, "jobs.workers"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected error containing %q", tt.want)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error = %v, want substring %q", err, tt.want)
			}
		})
	}
}

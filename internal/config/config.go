// Package config loads and validates site configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	AI        AIConfig        `mapstructure:"ai"`
	Site      SiteConfig      `mapstructure:"site"`
	Ingest    IngestConfig    `mapstructure:"ingest"`
	Fetch     FetchConfig     `mapstructure:"fetch"`
	Trends    TrendsConfig    `mapstructure:"trends"`
	Scoring   ScoringConfig   `mapstructure:"scoring"`
	Admin     AdminConfig     `mapstructure:"admin"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Blob      BlobConfig      `mapstructure:"blob"`
	Publisher PublisherConfig `mapstructure:"publisher"`
	Jobs      JobsConfig      `mapstructure:"jobs"`
	Daily     DailyConfig     `mapstructure:"daily"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                  int `mapstructure:"port"`
	RequestTimeoutSeconds int `mapstructure:"request_timeout_seconds"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// AIConfig selects and configures the summarization provider.
type AIConfig struct {
	Provider       string `mapstructure:"provider"`
	APIKey         string `mapstructure:"api_key"`
	GeminiAPIKey   string `mapstructure:"gemini_api_key"`
	Model          string `mapstructure:"model"`
	BaseURL        string `mapstructure:"base_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// Key returns the credential for the selected provider.
func (c AIConfig) Key() string {
	if c.Provider == "gemini" {
		return c.GeminiAPIKey
	}
	return c.APIKey
}

// SiteConfig covers presentation settings.
type SiteConfig struct {
	CDNBaseURL   string `mapstructure:"cdn_base_url"`
	ItemsPerPage int    `mapstructure:"items_per_page"`
	DisplayLimit int    `mapstructure:"display_limit"`
	ConfirmLimit int    `mapstructure:"confirm_limit"`
}

// IngestConfig governs RSS harvesting and AI processing.
type IngestConfig struct {
	RefreshIntervalMinutes int    `mapstructure:"refresh_interval_minutes"`
	MaxPerRun              int    `mapstructure:"max_per_run"`
	StartupThreshold       int    `mapstructure:"startup_threshold"`
	DailyArticleLimit      int    `mapstructure:"daily_article_limit"`
	SeedTarget             int    `mapstructure:"seed_target"`
	UpdatesDisabled        bool   `mapstructure:"updates_disabled"`
	FullTextRSSBaseURL     string `mapstructure:"fulltext_rss_base_url"`
	FeedsFile              string `mapstructure:"feeds_file"`
	UserAgent              string `mapstructure:"user_agent"`
	Ranking                string `mapstructure:"ranking"`
	JobTimeoutSeconds      int    `mapstructure:"job_timeout_seconds"`
}

// RefreshInterval returns the scheduler period.
func (c IngestConfig) RefreshInterval() time.Duration {
	return time.Duration(c.RefreshIntervalMinutes) * time.Minute
}

// JobTimeout bounds synchronous ingestion endpoints.
func (c IngestConfig) JobTimeout() time.Duration {
	return time.Duration(c.JobTimeoutSeconds) * time.Second
}

// FetchConfig configures article page retrieval.
type FetchConfig struct {
	UserAgent      string         `mapstructure:"user_agent"`
	TimeoutSeconds int            `mapstructure:"timeout_seconds"`
	PerHostRPS     float64        `mapstructure:"per_host_rps"`
	PerHostBurst   int            `mapstructure:"per_host_burst"`
	Headless       HeadlessConfig `mapstructure:"headless"`
}

// HeadlessConfig configures the chromedp fallback.
type HeadlessConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxParallel   int  `mapstructure:"max_parallel"`
	NavTimeoutSec int  `mapstructure:"nav_timeout_seconds"`
	// ArticleWaitSec bounds the wait for an article container to render.
	ArticleWaitSec int `mapstructure:"article_wait_seconds"`
}

// TrendsConfig lists trend sources.
type TrendsConfig struct {
	GoogleRSSURL    string   `mapstructure:"google_rss_url"`
	CacheMinutes    int      `mapstructure:"cache_minutes"`
	RapidAPIKey     string   `mapstructure:"rapidapi_key"`
	RapidAPIHost    string   `mapstructure:"rapidapi_host"`
	NitterEnabled   bool     `mapstructure:"nitter_enabled"`
	NitterInstances []string `mapstructure:"nitter_instances"`
}

// ScoringConfig configures search-potential scoring.
type ScoringConfig struct {
	AutocompleteEnabled bool   `mapstructure:"autocomplete_enabled"`
	AutocompleteURL     string `mapstructure:"autocomplete_url"`
}

// AdminConfig controls the admin pages.
type AdminConfig struct {
	Secret     string `mapstructure:"secret"`
	CookieName string `mapstructure:"cookie_name"`
}

// Enabled reports whether admin features are available.
func (c AdminConfig) Enabled() bool {
	return strings.TrimSpace(c.Secret) != ""
}

// StorageConfig selects the article/explanation persistence backend.
type StorageConfig struct {
	Backend   string          `mapstructure:"backend"`
	SQLite    SQLiteConfig    `mapstructure:"sqlite"`
	Bolt      BoltConfig      `mapstructure:"bolt"`
	Postgres  PostgresConfig  `mapstructure:"postgres"`
	Firestore FirestoreConfig `mapstructure:"firestore"`
}

// SQLiteConfig configures the embedded SQL database.
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// BoltConfig configures the embedded key/value database.
type BoltConfig struct {
	Path string `mapstructure:"path"`
}

// PostgresConfig controls access to the relational database.
type PostgresConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// FirestoreConfig points at the service-account credential.
type FirestoreConfig struct {
	CredentialsJSON string `mapstructure:"credentials_json"`
	CredentialsFile string `mapstructure:"credentials_file"`
	ProjectID       string `mapstructure:"project_id"`
}

// BlobConfig selects where raw article HTML is archived.
type BlobConfig struct {
	Backend         string `mapstructure:"backend"`
	Prefix          string `mapstructure:"prefix"`
	Bucket          string `mapstructure:"bucket"`
	LocalDir        string `mapstructure:"local_dir"`
	AzureConnection string `mapstructure:"azure_connection_string"`
	AzureContainer  string `mapstructure:"azure_container"`
}

// PublisherConfig holds metadata for article-published notifications.
type PublisherConfig struct {
	Backend   string    `mapstructure:"backend"`
	Topic     string    `mapstructure:"topic"`
	ProjectID string    `mapstructure:"project_id"`
	AWS       AWSConfig `mapstructure:"aws"`
}

// AWSConfig configures the SNS/SQS publishers.
type AWSConfig struct {
	Region          string `mapstructure:"region"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	TopicARN        string `mapstructure:"topic_arn"`
	QueueURL        string `mapstructure:"queue_url"`
}

// JobsConfig sizes the background worker pool.
type JobsConfig struct {
	Workers    int `mapstructure:"workers"`
	QueueDepth int `mapstructure:"queue_depth"`
}

// DailyConfig schedules the daily AI memo.
type DailyConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule"`
}

// legacyEnv maps config keys to the environment names used by existing deployments.
var legacyEnv = map[string]string{
	"server.port":                        "PORT",
	"ai.api_key":                         "OPENAI_API_KEY",
	"ai.model":                           "OPENAI_MODEL",
	"ai.gemini_api_key":                  "GEMINI_API_KEY",
	"site.cdn_base_url":                  "CDN_BASE_URL",
	"ingest.refresh_interval_minutes":    "NEWS_REFRESH_INTERVAL",
	"ingest.daily_article_limit":         "DAILY_ARTICLE_LIMIT",
	"ingest.fulltext_rss_base_url":       "FULLTEXT_RSS_BASE_URL",
	"ingest.updates_disabled":            "DISABLE_RSS_UPDATE",
	"admin.secret":                       "ADMIN_SECRET",
	"storage.firestore.credentials_json": "FIREBASE_SERVICE_ACCOUNT_JSON",
	"storage.firestore.project_id":       "FIREBASE_PROJECT_ID",
	"storage.postgres.dsn":               "DATABASE_URL",
	"trends.rapidapi_key":                "RAPIDAPI_KEY",
}

const envPrefix = "CHIRIPO"

// Load builds a Config from .env, disk and environment.
func Load(path string) (Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	if err := bindLegacyEnv(v); err != nil {
		return Config{}, err
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// loadDotEnv never overrides variables already present in the process environment.
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func bindLegacyEnv(v *viper.Viper) error {
	for key, legacy := range legacyEnv {
		prefixed := envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, legacy); err != nil {
			return fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8001)
	v.SetDefault("server.request_timeout_seconds", 200)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")

	v.SetDefault("ai.provider", "openai")
	v.SetDefault("ai.api_key", "")
	v.SetDefault("ai.gemini_api_key", "")
	v.SetDefault("ai.model", "gpt-4o-mini")
	v.SetDefault("ai.base_url", "https://api.openai.com/v1")
	v.SetDefault("ai.timeout_seconds", 120)

	v.SetDefault("site.cdn_base_url", "https://picsum.photos")
	v.SetDefault("site.items_per_page", 24)
	v.SetDefault("site.display_limit", 2000)
	v.SetDefault("site.confirm_limit", 20)

	v.SetDefault("ingest.refresh_interval_minutes", 240)
	v.SetDefault("ingest.max_per_run", 5)
	v.SetDefault("ingest.startup_threshold", 20)
	v.SetDefault("ingest.daily_article_limit", 6)
	v.SetDefault("ingest.seed_target", 30)
	v.SetDefault("ingest.updates_disabled", false)
	v.SetDefault("ingest.fulltext_rss_base_url", "")
	v.SetDefault("ingest.feeds_file", "")
	v.SetDefault("ingest.user_agent", "NewsSite/1.0")
	v.SetDefault("ingest.ranking", "trend")
	v.SetDefault("ingest.job_timeout_seconds", 180)

	v.SetDefault("fetch.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 "+
		"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	v.SetDefault("fetch.timeout_seconds", 20)
	v.SetDefault("fetch.per_host_rps", 1.0)
	v.SetDefault("fetch.per_host_burst", 2)
	v.SetDefault("fetch.headless.enabled", false)
	v.SetDefault("fetch.headless.max_parallel", 1)
	v.SetDefault("fetch.headless.nav_timeout_seconds", 30)
	v.SetDefault("fetch.headless.article_wait_seconds", 5)

	v.SetDefault("trends.google_rss_url", "https://trends.google.com/trending/rss?geo=JP")
	v.SetDefault("trends.cache_minutes", 10)
	v.SetDefault("trends.rapidapi_key", "")
	v.SetDefault("trends.rapidapi_host", "super-duper-trends.p.rapidapi.com")
	v.SetDefault("trends.nitter_enabled", false)
	v.SetDefault("trends.nitter_instances", []string{
		"https://nitter.privacyredirect.com",
		"https://nitter.catsarch.com",
		"https://nitter.tiekoetter.com",
	})

	v.SetDefault("scoring.autocomplete_enabled", false)
	v.SetDefault("scoring.autocomplete_url", "https://suggestqueries.google.com/complete/search")

	v.SetDefault("admin.secret", "")
	v.SetDefault("admin.cookie_name", "newsite_admin")

	v.SetDefault("storage.backend", "auto")
	v.SetDefault("storage.sqlite.path", "data/chiripo.db")
	v.SetDefault("storage.bolt.path", "data/chiripo.bolt")
	v.SetDefault("storage.postgres.dsn", "")
	v.SetDefault("storage.postgres.max_conns", 4)
	v.SetDefault("storage.firestore.credentials_json", "")
	v.SetDefault("storage.firestore.credentials_file", "credentials/firebase-service-account.json")
	v.SetDefault("storage.firestore.project_id", "")

	v.SetDefault("blob.backend", "none")
	v.SetDefault("blob.prefix", "bodies")
	v.SetDefault("blob.bucket", "")
	v.SetDefault("blob.local_dir", "data/bodies")
	v.SetDefault("blob.azure_connection_string", "")
	v.SetDefault("blob.azure_container", "")

	v.SetDefault("publisher.backend", "none")
	v.SetDefault("publisher.topic", "article-published")
	v.SetDefault("publisher.project_id", "")
	v.SetDefault("publisher.aws.region", "")
	v.SetDefault("publisher.aws.access_key_id", "")
	v.SetDefault("publisher.aws.secret_access_key", "")
	v.SetDefault("publisher.aws.topic_arn", "")
	v.SetDefault("publisher.aws.queue_url", "")

	v.SetDefault("jobs.workers", 2)
	v.SetDefault("jobs.queue_depth", 32)

	v.SetDefault("daily.enabled", true)
	v.SetDefault("daily.schedule", "0 9 * * *")
}

func (c *Config) normalize() {
	c.AI.Provider = strings.ToLower(strings.TrimSpace(c.AI.Provider))
	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	c.Blob.Backend = strings.ToLower(strings.TrimSpace(c.Blob.Backend))
	c.Publisher.Backend = strings.ToLower(strings.TrimSpace(c.Publisher.Backend))
	c.Ingest.Ranking = strings.ToLower(strings.TrimSpace(c.Ingest.Ranking))
	c.Admin.Secret = strings.TrimSpace(c.Admin.Secret)
	c.Ingest.FullTextRSSBaseURL = strings.TrimRight(c.Ingest.FullTextRSSBaseURL, "/")
}

// Validate enforces required values and reasonable limits.
//
//nolint:gocyclo // flat list of independent checks
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	switch c.AI.Provider {
	case "openai", "gemini":
	default:
		return fmt.Errorf("ai.provider must be openai or gemini, got %q", c.AI.Provider)
	}
	if c.Ingest.RefreshIntervalMinutes <= 0 {
		return fmt.Errorf("ingest.refresh_interval_minutes must be > 0")
	}
	if c.Ingest.MaxPerRun <= 0 {
		return fmt.Errorf("ingest.max_per_run must be > 0")
	}
	switch c.Ingest.Ranking {
	case "", "trend", "score":
	default:
		return fmt.Errorf("ingest.ranking must be trend or score, got %q", c.Ingest.Ranking)
	}
	if c.Site.ItemsPerPage <= 0 {
		return fmt.Errorf("site.items_per_page must be > 0")
	}
	switch c.Storage.Backend {
	case "auto", "firestore", "sqlite", "bolt", "memory":
	case "postgres":
		if c.Storage.Postgres.DSN == "" {
			return fmt.Errorf("storage.postgres.dsn must be set when storage.backend is postgres")
		}
	default:
		return fmt.Errorf("storage.backend %q is not supported", c.Storage.Backend)
	}
	switch c.Blob.Backend {
	case "", "none", "memory", "local":
	case "gcs":
		if c.Blob.Bucket == "" {
			return fmt.Errorf("blob.bucket must be set when blob.backend is gcs")
		}
	case "azure":
		if c.Blob.AzureConnection == "" || c.Blob.AzureContainer == "" {
			return fmt.Errorf("blob.azure_connection_string and blob.azure_container must be set for azure")
		}
	default:
		return fmt.Errorf("blob.backend %q is not supported", c.Blob.Backend)
	}
	switch c.Publisher.Backend {
	case "", "none", "memory":
	case "pubsub":
		if c.Publisher.ProjectID == "" || c.Publisher.Topic == "" {
			return fmt.Errorf("publisher.project_id and publisher.topic must be set for pubsub")
		}
	case "sns":
		if c.Publisher.AWS.TopicARN == "" || c.Publisher.AWS.Region == "" {
			return fmt.Errorf("publisher.aws.topic_arn and publisher.aws.region must be set for sns")
		}
	case "sqs":
		if c.Publisher.AWS.QueueURL == "" || c.Publisher.AWS.Region == "" {
			return fmt.Errorf("publisher.aws.queue_url and publisher.aws.region must be set for sqs")
		}
	default:
		return fmt.Errorf("publisher.backend %q is not supported", c.Publisher.Backend)
	}
	if c.Fetch.Headless.Enabled && c.Fetch.Headless.MaxParallel <= 0 {
		return fmt.Errorf("fetch.headless.max_parallel must be > 0 when headless is enabled")
	}
	if c.Jobs.Workers <= 0 {
		return fmt.Errorf("jobs.workers must be > 0")
	}
	return nil
}

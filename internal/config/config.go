// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/insight-crawler/internal/crawler"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server        ServerConfig               `mapstructure:"server"`
	Auth          AuthConfig                 `mapstructure:"auth"`
	API           APIConfig                  `mapstructure:"api"`
	Crawler       CrawlerConfig              `mapstructure:"crawler"`
	HTTP          HTTPConfig                 `mapstructure:"http"`
	Compliance    ComplianceConfig           `mapstructure:"compliance"`
	RateLimit     RateLimitConfig            `mapstructure:"ratelimit"`
	Processor     ProcessorConfig            `mapstructure:"processor"`
	Storage       StorageConfig              `mapstructure:"storage"`
	DB            DBConfig                   `mapstructure:"db"`
	Archive       ArchiveConfig              `mapstructure:"archive"`
	PubSub        PubSubConfig               `mapstructure:"pubsub"`
	Schedule      ScheduleConfig             `mapstructure:"schedule"`
	Logging       LoggingConfig              `mapstructure:"logging"`
	Organizations []crawler.OrganizationSpec `mapstructure:"organizations"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// APIConfig throttles the admin API. A zero rate disables throttling.
type APIConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// CrawlerConfig governs crawl runs and discovery parsing.
type CrawlerConfig struct {
	Concurrency   int    `mapstructure:"concurrency"`
	UserAgent     string `mapstructure:"user_agent"`
	FeedParser    string `mapstructure:"feed_parser"`
	LinkExtractor string `mapstructure:"link_extractor"`
	MaxCandidates int    `mapstructure:"max_candidates"`
}

// HTTPConfig configures the outbound HTTP client.
type HTTPConfig struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// ComplianceConfig configures robots.txt handling.
type ComplianceConfig struct {
	RobotsTTLMinutes int    `mapstructure:"robots_ttl_minutes"`
	RobotsMode       string `mapstructure:"robots_mode"`
}

// RateLimitConfig sets the per-domain admission window.
type RateLimitConfig struct {
	WindowSeconds int `mapstructure:"window_seconds"`
}

// ProcessorConfig controls text chunking and batch processing.
type ProcessorConfig struct {
	ChunkSize         int  `mapstructure:"chunk_size"`
	Overlap           int  `mapstructure:"overlap"`
	Concurrency       int  `mapstructure:"concurrency"`
	EnforceCompliance bool `mapstructure:"enforce_compliance"`
}

// StorageConfig selects the relational store.
type StorageConfig struct {
	Provider string `mapstructure:"provider"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// ArchiveConfig sets where raw fetched documents are kept.
type ArchiveConfig struct {
	Provider    string `mapstructure:"provider"`
	GCSBucket   string `mapstructure:"gcs_bucket"`
	LocalDir    string `mapstructure:"local_dir"`
	Prefix      string `mapstructure:"prefix"`
	ContentType string `mapstructure:"content_type"`
}

// PubSubConfig holds metadata for publish-subscribe notifications.
type PubSubConfig struct {
	Provider      string `mapstructure:"provider"`
	ProjectID     string `mapstructure:"project_id"`
	DocumentTopic string `mapstructure:"document_topic"`
	CrawlTopic    string `mapstructure:"crawl_topic"`
}

// ScheduleConfig holds cron expressions used by `serve`. Empty expressions disable a job.
type ScheduleConfig struct {
	Crawl        string `mapstructure:"crawl"`
	Process      string `mapstructure:"process"`
	ProcessBatch int    `mapstructure:"process_batch"`
}

// LoggingConfig toggles zap development features. An empty encoding follows the mode:
// console for development, json otherwise.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
	Encoding    string `mapstructure:"encoding"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("INSIGHT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

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
	if len(cfg.Organizations) == 0 {
		cfg.Organizations = DefaultOrganizations()
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("api.requests_per_second", 0)
	v.SetDefault("api.burst", 10)
	v.SetDefault("crawler.concurrency", 4)
	v.SetDefault("crawler.user_agent", "insight-crawler/0.1 (+https://github.com/JakeFAU/insight-crawler)")
	v.SetDefault("crawler.feed_parser", "scan")
	v.SetDefault("crawler.link_extractor", "scan")
	v.SetDefault("crawler.max_candidates", 20)
	v.SetDefault("http.timeout_seconds", 30)
	v.SetDefault("compliance.robots_ttl_minutes", 60)
	v.SetDefault("compliance.robots_mode", "scan")
	v.SetDefault("ratelimit.window_seconds", 60)
	v.SetDefault("processor.chunk_size", 1000)
	v.SetDefault("processor.overlap", 200)
	v.SetDefault("processor.concurrency", 4)
	v.SetDefault("processor.enforce_compliance", true)
	v.SetDefault("storage.provider", "memory")
	v.SetDefault("db.max_conns", 8)
	v.SetDefault("archive.provider", "none")
	v.SetDefault("archive.prefix", "documents")
	v.SetDefault("archive.content_type", "text/html; charset=utf-8")
	v.SetDefault("pubsub.provider", "none")
	v.SetDefault("pubsub.document_topic", "document.processed")
	v.SetDefault("pubsub.crawl_topic", "crawl.completed")
	v.SetDefault("schedule.process_batch", 50)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.API.RequestsPerSecond < 0 {
		return fmt.Errorf("api.requests_per_second must be >= 0")
	}
	if c.API.RequestsPerSecond > 0 && c.API.Burst <= 0 {
		return fmt.Errorf("api.burst must be > 0 when throttling is enabled")
	}
	if c.Crawler.Concurrency <= 0 {
		return fmt.Errorf("crawler.concurrency must be > 0")
	}
	if c.Crawler.MaxCandidates <= 0 {
		return fmt.Errorf("crawler.max_candidates must be > 0")
	}
	if err := oneOf("crawler.feed_parser", c.Crawler.FeedParser, "scan", "gofeed"); err != nil {
		return err
	}
	if err := oneOf("crawler.link_extractor", c.Crawler.LinkExtractor, "scan", "goquery"); err != nil {
		return err
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.Compliance.RobotsTTLMinutes <= 0 {
		return fmt.Errorf("compliance.robots_ttl_minutes must be > 0")
	}
	if err := oneOf("compliance.robots_mode", c.Compliance.RobotsMode, "scan", "agent"); err != nil {
		return err
	}
	if c.RateLimit.WindowSeconds <= 0 {
		return fmt.Errorf("ratelimit.window_seconds must be > 0")
	}
	if c.Processor.ChunkSize <= 0 {
		return fmt.Errorf("processor.chunk_size must be > 0")
	}
	if c.Processor.Overlap < 0 || c.Processor.Overlap >= c.Processor.ChunkSize {
		return fmt.Errorf("processor.overlap must be >= 0 and < processor.chunk_size")
	}
	if c.Processor.Concurrency <= 0 {
		return fmt.Errorf("processor.concurrency must be > 0")
	}
	if err := oneOf("storage.provider", c.Storage.Provider, "memory", "postgres"); err != nil {
		return err
	}
	if c.Storage.Provider == "postgres" && c.DB.DSN == "" {
		return fmt.Errorf("db.dsn must be set when storage.provider is postgres")
	}
	if err := c.validateArchive(); err != nil {
		return err
	}
	if err := oneOf("pubsub.provider", c.PubSub.Provider, "none", "memory", "gcp"); err != nil {
		return err
	}
	if c.PubSub.Provider == "gcp" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub.provider is gcp")
	}
	if c.Logging.Encoding != "" {
		if err := oneOf("logging.encoding", c.Logging.Encoding, "console", "json"); err != nil {
			return err
		}
	}
	if c.Schedule.Process != "" && c.Schedule.ProcessBatch <= 0 {
		return fmt.Errorf("schedule.process_batch must be > 0 when schedule.process is set")
	}
	return ValidateOrganizations(c.Organizations)
}

func (c Config) validateArchive() error {
	if err := oneOf("archive.provider", c.Archive.Provider, "none", "memory", "local", "gcs"); err != nil {
		return err
	}
	switch c.Archive.Provider {
	case "gcs":
		if c.Archive.GCSBucket == "" {
			return fmt.Errorf("archive.gcs_bucket must be set when archive.provider is gcs")
		}
	case "local":
		if c.Archive.LocalDir == "" {
			return fmt.Errorf("archive.local_dir must be set when archive.provider is local")
		}
	}
	return nil
}

// ValidateOrganizations checks the organization table entries.
func ValidateOrganizations(specs []crawler.OrganizationSpec) error {
	seen := make(map[string]struct{}, len(specs))
	for i, spec := range specs {
		if spec.Slug == "" {
			return fmt.Errorf("organizations[%d].slug is required", i)
		}
		if _, dup := seen[spec.Slug]; dup {
			return fmt.Errorf("organizations[%d]: duplicate slug %q", i, spec.Slug)
		}
		seen[spec.Slug] = struct{}{}
		if spec.Name == "" {
			return fmt.Errorf("organization %q: name is required", spec.Slug)
		}
		if spec.TrustWeight < 0 || spec.TrustWeight > 1 {
			return fmt.Errorf("organization %q: trust_weight must be within [0,1]", spec.Slug)
		}
		if spec.Policy.RateLimit <= 0 {
			return fmt.Errorf("organization %q: crawl_policy.rate_limit must be > 0", spec.Slug)
		}
		if spec.Policy.MaxDepth < 1 {
			return fmt.Errorf("organization %q: crawl_policy.max_depth must be >= 1", spec.Slug)
		}
		u, err := url.Parse(spec.Website)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("organization %q: website must be an absolute URL", spec.Slug)
		}
	}
	return nil
}

func oneOf(key, value string, allowed ...string) error {
	for _, candidate := range allowed {
		if value == candidate {
			return nil
		}
	}
	return fmt.Errorf("%s must be one of %s, got %q", key, strings.Join(allowed, "|"), value)
}

// HTTPTimeout converts the HTTP timeout into a duration.
func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// RobotsTTL converts the robots cache TTL into a duration.
func (c Config) RobotsTTL() time.Duration {
	return time.Duration(c.Compliance.RobotsTTLMinutes) * time.Minute
}

// RateLimitWindow converts the admission window into a duration.
func (c Config) RateLimitWindow() time.Duration {
	return time.Duration(c.RateLimit.WindowSeconds) * time.Second
}

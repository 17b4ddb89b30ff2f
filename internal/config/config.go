// Package config loads runtime configuration for the hnzh pipeline from
// YAML and HNZH_-prefixed environment variables via spf13/viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ProviderConfig describes one configured LLM backend.
type ProviderConfig struct {
	Name          string `mapstructure:"name"`
	BaseURL       string `mapstructure:"base_url"`
	Model         string `mapstructure:"model"`
	APIKey        string `mapstructure:"api_key"`
	ThinkingModel bool   `mapstructure:"thinking_model"`
}

// Config holds every runtime configuration slot plus the ambient wiring
// (Postgres DSN, upstream/reader base URLs, LLM provider table) needed to
// construct the pipeline.
type Config struct {
	PostgresDSN string `mapstructure:"postgres_dsn"`

	UpstreamBaseURL string        `mapstructure:"upstream_base_url"`
	ReaderBaseURL   string        `mapstructure:"reader_base_url"`
	ReaderWithImage bool          `mapstructure:"reader_with_images"`
	HTTPTimeout     time.Duration `mapstructure:"http_timeout"`

	Providers       []ProviderConfig `mapstructure:"providers"`
	CurrentProvider string           `mapstructure:"current_provider"`

	// Runtime-settable slots. Stored as the authoritative startup
	// values; the scheduler's KVSetting-backed overrides (read by the
	// internal/pipeline *FromSettings helpers, written by the admin CLI)
	// take precedence once loaded.
	SchedulerIntervalMS           int  `mapstructure:"scheduler_interval_ms"`
	SchedulerStoryLimit           int  `mapstructure:"scheduler_story_limit"`
	MaxCommentTranslations        int  `mapstructure:"max_comment_translations"`
	CommentRefreshEnabled         bool `mapstructure:"comment_refresh_enabled"`
	CommentRefreshIntervalMS      int  `mapstructure:"comment_refresh_interval_ms"`
	CommentRefreshStoryLimit      int  `mapstructure:"comment_refresh_story_limit"`
	CommentRefreshBatchSize       int  `mapstructure:"comment_refresh_batch_size"`
	ArticleTranslationConcurrency int  `mapstructure:"article_translation_concurrency"`
	QueueMaxConcurrency           int  `mapstructure:"queue_max_concurrency"`

	RetentionIntervalMS          int `mapstructure:"retention_interval_ms"`
	RetentionMaxItems            int `mapstructure:"retention_max_items"`
	RetentionDeleteItemsBatch    int `mapstructure:"retention_delete_items_batch"`
	RetentionMaxComments         int `mapstructure:"retention_max_comments"`
	RetentionDeleteCommentsBatch int `mapstructure:"retention_delete_comments_batch"`

	MetricsAddr string `mapstructure:"metrics_addr"`
}

// setDefaults: a 30-minute main cycle fetching 30 stories, a
// comment-refresh cycle every 10 minutes over the 30 most recent
// stories in batches of 5, and retention ceilings of 3000 items /
// 100000 comments.
func setDefaults(v *viper.Viper) {
	v.SetDefault("upstream_base_url", "https://hacker-news.firebaseio.com/v0")
	v.SetDefault("reader_base_url", "http://localhost:8090")
	v.SetDefault("reader_with_images", false)
	v.SetDefault("http_timeout", 30*time.Second)
	v.SetDefault("current_provider", "default")

	v.SetDefault("scheduler_interval_ms", 30*60*1000)
	v.SetDefault("scheduler_story_limit", 30)
	v.SetDefault("max_comment_translations", 50)

	v.SetDefault("comment_refresh_enabled", true)
	v.SetDefault("comment_refresh_interval_ms", 10*60*1000)
	v.SetDefault("comment_refresh_story_limit", 30)
	v.SetDefault("comment_refresh_batch_size", 5)

	v.SetDefault("article_translation_concurrency", 5)
	v.SetDefault("queue_max_concurrency", 3)

	v.SetDefault("retention_max_items", 3000)
	v.SetDefault("retention_delete_items_batch", 200)
	v.SetDefault("retention_max_comments", 100000)
	v.SetDefault("retention_delete_comments_batch", 10000)
	v.SetDefault("retention_interval_ms", 24*60*60*1000)

	v.SetDefault("metrics_addr", "")
}

// Load reads hnzh-config.yaml from $HOME and the working directory, falling
// back to defaults for anything unset, and overlays HNZH_-prefixed
// environment variables.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("hnzh-config")
	v.SetConfigType("yaml")
	v.AddConfigPath("$HOME")
	v.AddConfigPath(".")
	v.SetEnvPrefix("HNZH")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.PostgresDSN == "" {
		return nil, fmt.Errorf("postgres_dsn is required")
	}
	return &cfg, nil
}

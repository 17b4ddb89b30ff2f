package pipeline

import (
	"context"
	"strconv"

	"hnzh/internal/domain/settings"
	"hnzh/internal/logging"
)

// Settings keys for the runtime-mutable scheduler knobs. Values stored
// under these keys override the startup configuration wherever a
// *FromSettings helper below is called; Restart itself does not read the
// store.
const (
	SettingSchedulerIntervalMS      = "scheduler_interval"
	SettingSchedulerStoryLimit      = "scheduler_story_limit"
	SettingMaxCommentTranslations   = "max_comment_translations"
	SettingCommentRefreshEnabled    = "comment_refresh_enabled"
	SettingCommentRefreshIntervalMS = "comment_refresh_interval"
	SettingCommentRefreshStoryLimit = "comment_refresh_story_limit"
	SettingCommentRefreshBatchSize  = "comment_refresh_batch_size"
	SettingArticleConcurrency       = "article_translation_concurrency"
	SettingQueueMaxConcurrency      = "queue_max_concurrency"
)

func intSetting(ctx context.Context, store settings.Store, logger logging.Logger, key string, fallback int) int {
	raw, ok, err := store.GetSetting(ctx, key)
	if err != nil {
		logger.Warn("settings: read %s: %v", key, err)
		return fallback
	}
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		logger.Warn("settings: %s holds non-integer %q, ignoring", key, raw)
		return fallback
	}
	return n
}

func boolSetting(ctx context.Context, store settings.Store, logger logging.Logger, key string, fallback bool) bool {
	raw, ok, err := store.GetSetting(ctx, key)
	if err != nil {
		logger.Warn("settings: read %s: %v", key, err)
		return fallback
	}
	if !ok {
		return fallback
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		logger.Warn("settings: %s holds non-boolean %q, ignoring", key, raw)
		return fallback
	}
	return b
}

// FetchConfigFromSettings overlays any stored overrides onto base.
func FetchConfigFromSettings(ctx context.Context, store settings.Store, logger logging.Logger, base FetchConfig) FetchConfig {
	logger = logging.OrNop(logger)
	base.IntervalMS = intSetting(ctx, store, logger, SettingSchedulerIntervalMS, base.IntervalMS)
	base.StoryLimit = intSetting(ctx, store, logger, SettingSchedulerStoryLimit, base.StoryLimit)
	base.ArticleConcurrency = intSetting(ctx, store, logger, SettingArticleConcurrency, base.ArticleConcurrency)
	base.MaxCommentTranslations = intSetting(ctx, store, logger, SettingMaxCommentTranslations, base.MaxCommentTranslations)
	return base
}

// CommentRefreshConfigFromSettings overlays any stored overrides onto base.
func CommentRefreshConfigFromSettings(ctx context.Context, store settings.Store, logger logging.Logger, base CommentRefreshConfig) CommentRefreshConfig {
	logger = logging.OrNop(logger)
	base.Enabled = boolSetting(ctx, store, logger, SettingCommentRefreshEnabled, base.Enabled)
	base.IntervalMS = intSetting(ctx, store, logger, SettingCommentRefreshIntervalMS, base.IntervalMS)
	base.StoryLimit = intSetting(ctx, store, logger, SettingCommentRefreshStoryLimit, base.StoryLimit)
	base.BatchSize = intSetting(ctx, store, logger, SettingCommentRefreshBatchSize, base.BatchSize)
	base.MaxCommentTranslations = intSetting(ctx, store, logger, SettingMaxCommentTranslations, base.MaxCommentTranslations)
	return base
}

// QueueConcurrencyFromSettings returns the stored queue concurrency
// override, or fallback when none is set.
func QueueConcurrencyFromSettings(ctx context.Context, store settings.Store, logger logging.Logger, fallback int) int {
	return intSetting(ctx, store, logging.OrNop(logger), SettingQueueMaxConcurrency, fallback)
}

package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchConfigFromSettingsOverlaysStoredValues(t *testing.T) {
	ctx := context.Background()
	cache := newFakeCache()
	require.NoError(t, cache.SetSetting(ctx, SettingSchedulerStoryLimit, "12"))
	require.NoError(t, cache.SetSetting(ctx, SettingMaxCommentTranslations, "7"))

	base := FetchConfig{IntervalMS: 1000, StoryLimit: 30, ArticleConcurrency: 5, MaxCommentTranslations: 50}
	got := FetchConfigFromSettings(ctx, cache, nil, base)

	assert.Equal(t, 1000, got.IntervalMS, "a key with no stored value keeps the startup default")
	assert.Equal(t, 12, got.StoryLimit)
	assert.Equal(t, 5, got.ArticleConcurrency)
	assert.Equal(t, 7, got.MaxCommentTranslations)
}

func TestFetchConfigFromSettingsIgnoresMalformedValues(t *testing.T) {
	ctx := context.Background()
	cache := newFakeCache()
	require.NoError(t, cache.SetSetting(ctx, SettingSchedulerStoryLimit, "not-a-number"))

	base := FetchConfig{StoryLimit: 30}
	got := FetchConfigFromSettings(ctx, cache, nil, base)
	assert.Equal(t, 30, got.StoryLimit)
}

func TestCommentRefreshConfigFromSettingsOverlaysStoredValues(t *testing.T) {
	ctx := context.Background()
	cache := newFakeCache()
	require.NoError(t, cache.SetSetting(ctx, SettingCommentRefreshEnabled, "false"))
	require.NoError(t, cache.SetSetting(ctx, SettingCommentRefreshBatchSize, "9"))

	base := CommentRefreshConfig{Enabled: true, IntervalMS: 5, StoryLimit: 30, BatchSize: 5}
	got := CommentRefreshConfigFromSettings(ctx, cache, nil, base)

	assert.False(t, got.Enabled)
	assert.Equal(t, 9, got.BatchSize)
	assert.Equal(t, 5, got.IntervalMS)
}

func TestQueueConcurrencyFromSettings(t *testing.T) {
	ctx := context.Background()
	cache := newFakeCache()
	assert.Equal(t, 3, QueueConcurrencyFromSettings(ctx, cache, nil, 3))

	require.NoError(t, cache.SetSetting(ctx, SettingQueueMaxConcurrency, "8"))
	assert.Equal(t, 8, QueueConcurrencyFromSettings(ctx, cache, nil, 3))
}

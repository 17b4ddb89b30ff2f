package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hnzh/internal/domain/content"
	"hnzh/internal/domain/feed"
)

// Completing an article kicks off a comment capture: the tree is walked,
// comment rows are stored, and translatable comments get translations.
func TestFetchScheduler_ArticleDoneCapturesComments(t *testing.T) {
	deps, cache, upstream, _, reader := newTestDeps()
	story := itemDetail(40, "A story with comments", "https://example.com/c")
	story.Descendants = 3
	story.Kids = []int{400, 401}
	upstream.topIDs = []int{40}
	upstream.items[40] = story
	upstream.comments[400] = feed.CommentDetail{ID: 400, By: "a", Text: "first comment", Time: 10, Kids: []int{402}}
	upstream.comments[401] = feed.CommentDetail{ID: 401, By: "b", Text: "", Deleted: true, Time: 11}
	upstream.comments[402] = feed.CommentDetail{ID: 402, By: "c", Text: "a reply", Time: 12}
	reader.outcomes["https://example.com/c"] = content.Outcome{Markdown: "a body long enough to clear the minimum length threshold for an article"}

	sched := NewFetchScheduler(deps, FetchConfig{})
	require.NoError(t, sched.RunOnce(context.Background()))

	require.Eventually(t, func() bool {
		comments, err := cache.FindCommentsByItem(context.Background(), 40)
		return err == nil && len(comments) == 3
	}, time.Second, time.Millisecond, "the full tree is stored, deleted comments included")

	require.Eventually(t, func() bool {
		rows, err := cache.FindCommentTranslationsByIDs(context.Background(), []int{400, 401, 402})
		return err == nil && len(rows) == 2
	}, time.Second, time.Millisecond, "only the two translatable comments get translations")
}

// A second cycle over an item whose comments are already cached never
// re-fetches or re-translates them.
func TestFetchScheduler_CachedCommentsAreNotRefetched(t *testing.T) {
	deps, cache, upstream, _, reader := newTestDeps()
	story := itemDetail(41, "Another story", "https://example.com/d")
	story.Descendants = 1
	story.Kids = []int{410}
	upstream.topIDs = []int{41}
	upstream.items[41] = story
	upstream.comments[410] = feed.CommentDetail{ID: 410, By: "a", Text: "hello", Time: 10}
	reader.outcomes["https://example.com/d"] = content.Outcome{Markdown: "a body long enough to clear the minimum length threshold for an article"}

	sched := NewFetchScheduler(deps, FetchConfig{})
	require.NoError(t, sched.RunOnce(context.Background()))

	require.Eventually(t, func() bool {
		has, _ := cache.HasComments(context.Background(), 41)
		return has
	}, time.Second, time.Millisecond)

	translated, err := cache.FindCommentTranslationsByIDs(context.Background(), []int{410})
	require.NoError(t, err)

	require.NoError(t, sched.RunOnce(context.Background()))
	time.Sleep(20 * time.Millisecond)

	after, err := cache.FindCommentTranslationsByIDs(context.Background(), []int{410})
	require.NoError(t, err)
	assert.Equal(t, translated, after)
}

func record(id, parent int, tm int64, text string) feed.CommentRecord {
	return feed.CommentRecord{CommentID: id, ItemID: 1, ParentID: parent, Text: text, Time: tm}
}

func TestSelectTranslatableWalksDepthFirstTimeAscending(t *testing.T) {
	records := []feed.CommentRecord{
		record(30, 1, 3, "late root"),
		record(10, 1, 1, "early root"),
		record(11, 10, 5, "reply to early"),
		record(12, 10, 4, "earlier reply to early"),
		record(31, 30, 6, "reply to late"),
	}

	got := selectTranslatable(records, 1, 10)
	ids := make([]int, 0, len(got))
	for _, c := range got {
		ids = append(ids, c.CommentID)
	}
	assert.Equal(t, []int{10, 12, 11, 30, 31}, ids,
		"each root's subtree is exhausted before the next root, siblings in time order")
}

func TestSelectTranslatableTreatsOrphansAsRoots(t *testing.T) {
	records := []feed.CommentRecord{
		record(50, 1, 1, "root"),
		record(61, 60, 2, "orphan: parent 60 was never fetched"),
	}

	got := selectTranslatable(records, 1, 10)
	require.Len(t, got, 2)
}

func TestSelectTranslatableHonorsLimitAndSkipsDeadText(t *testing.T) {
	records := []feed.CommentRecord{
		record(70, 1, 1, "keep"),
		{CommentID: 71, ItemID: 1, ParentID: 1, Time: 2, Text: "dead", Dead: true},
		{CommentID: 72, ItemID: 1, ParentID: 1, Time: 3, Text: ""},
		record(73, 1, 4, "keep too"),
		record(74, 1, 5, "over the limit"),
	}

	got := selectTranslatable(records, 1, 2)
	require.Len(t, got, 2)
	assert.Equal(t, 70, got[0].CommentID)
	assert.Equal(t, 73, got[1].CommentID)
}

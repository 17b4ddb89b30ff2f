package pipeline

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"hnzh/internal/domain/content"
	"hnzh/internal/domain/feed"
	"hnzh/internal/domain/llm"
	"hnzh/internal/domain/settings"
	"hnzh/internal/domain/translation"
)

// fakeCache is an in-memory translation.Cache + settings.Store used to
// exercise the schedulers without a Postgres instance. It mirrors the
// cascade/invalidation semantics pgcache.Store implements for real.
type fakeCache struct {
	mu        sync.Mutex
	items     map[int]translation.Item
	titles    map[int]translation.TitleTranslation
	articles  map[int]translation.ArticleTranslation
	comments  map[int]translation.Comment
	commentTr map[int]translation.CommentTranslation
	status    settings.SchedulerStatus
	kv        map[string]string
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		items:     make(map[int]translation.Item),
		titles:    make(map[int]translation.TitleTranslation),
		articles:  make(map[int]translation.ArticleTranslation),
		comments:  make(map[int]translation.Comment),
		commentTr: make(map[int]translation.CommentTranslation),
		kv:        make(map[string]string),
	}
}

var _ translation.Cache = (*fakeCache)(nil)
var _ settings.Store = (*fakeCache)(nil)

func (c *fakeCache) GetTitle(ctx context.Context, itemID int, currentHash string) (*translation.TitleTranslation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	row, ok := c.titles[itemID]
	if !ok || row.PromptHash != currentHash {
		return nil, nil
	}
	out := row
	return &out, nil
}

func (c *fakeCache) UpsertTitle(ctx context.Context, row translation.TitleTranslation) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.titles[row.ItemID] = row
	return nil
}

func (c *fakeCache) UpsertTitles(ctx context.Context, rows []translation.TitleTranslation) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, row := range rows {
		c.titles[row.ItemID] = row
	}
	return nil
}

func (c *fakeCache) DeleteTitlesNotMatching(ctx context.Context, currentHash string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for id, row := range c.titles {
		if row.PromptHash != currentHash {
			delete(c.titles, id)
			n++
		}
	}
	return n, nil
}

func (c *fakeCache) GetArticle(ctx context.Context, itemID int) (*translation.ArticleTranslation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	row, ok := c.articles[itemID]
	if !ok {
		return nil, nil
	}
	out := row
	return &out, nil
}

func (c *fakeCache) SetArticle(ctx context.Context, row translation.ArticleTranslation) error {
	if err := row.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.articles[row.ItemID] = row
	return nil
}

func (c *fakeCache) SetArticleStatus(ctx context.Context, itemID int, status translation.ArticleStatus, errMsg string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	row := c.articles[itemID]
	row.ItemID = itemID
	row.Status = status
	row.ErrorMessage = errMsg
	c.articles[itemID] = row
	return nil
}

func (c *fakeCache) FindAllDoneArticles(ctx context.Context) ([]translation.ArticleTranslation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []translation.ArticleTranslation
	for _, row := range c.articles {
		if row.Status == translation.ArticleDone {
			out = append(out, row)
		}
	}
	return out, nil
}

func (c *fakeCache) DeleteArticle(ctx context.Context, itemID int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.articles, itemID)
	return nil
}

func (c *fakeCache) DeleteAllArticles(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.articles = make(map[int]translation.ArticleTranslation)
	return nil
}

func (c *fakeCache) GetItem(ctx context.Context, itemID int) (*translation.Item, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	row, ok := c.items[itemID]
	if !ok {
		return nil, nil
	}
	out := row
	return &out, nil
}

func (c *fakeCache) UpsertItem(ctx context.Context, row translation.Item) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[row.ItemID] = row
	return nil
}

func (c *fakeCache) DeleteItem(ctx context.Context, itemID int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, itemID)
	delete(c.titles, itemID)
	delete(c.articles, itemID)
	for cid, cm := range c.comments {
		if cm.ItemID == itemID {
			delete(c.comments, cid)
			delete(c.commentTr, cid)
		}
	}
	return nil
}

func (c *fakeCache) UpsertComments(ctx context.Context, rows []translation.Comment) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, row := range rows {
		c.comments[row.CommentID] = row
	}
	return nil
}

func (c *fakeCache) FindCommentsByItem(ctx context.Context, itemID int) ([]translation.Comment, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []translation.Comment
	for _, row := range c.comments {
		if row.ItemID == itemID {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CommentID < out[j].CommentID })
	return out, nil
}

func (c *fakeCache) HasComments(ctx context.Context, itemID int) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, row := range c.comments {
		if row.ItemID == itemID {
			return true, nil
		}
	}
	return false, nil
}

func (c *fakeCache) DeleteOldestComments(ctx context.Context, n int) ([]int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	type kv struct {
		id  int
		row translation.Comment
	}
	all := make([]kv, 0, len(c.comments))
	for id, row := range c.comments {
		all = append(all, kv{id, row})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].row.FetchedAt < all[j].row.FetchedAt })
	if n > len(all) {
		n = len(all)
	}
	ids := make([]int, 0, n)
	for i := 0; i < n; i++ {
		ids = append(ids, all[i].id)
		delete(c.comments, all[i].id)
	}
	return ids, nil
}

func (c *fakeCache) UpsertCommentTranslations(ctx context.Context, rows []translation.CommentTranslation) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, row := range rows {
		c.commentTr[row.CommentID] = row
	}
	return nil
}

func (c *fakeCache) FindCommentTranslationsByIDs(ctx context.Context, ids []int) ([]translation.CommentTranslation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []translation.CommentTranslation
	for _, id := range ids {
		if row, ok := c.commentTr[id]; ok {
			out = append(out, row)
		}
	}
	return out, nil
}

func (c *fakeCache) DeleteCommentTranslationsByIDs(ctx context.Context, ids []int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		delete(c.commentTr, id)
	}
	return nil
}

func (c *fakeCache) CountItems(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items), nil
}

func (c *fakeCache) CountComments(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.comments), nil
}

func (c *fakeCache) DeleteOldestItems(ctx context.Context, n int) ([]int, error) {
	c.mu.Lock()
	type kv struct {
		id  int
		row translation.Item
	}
	all := make([]kv, 0, len(c.items))
	for id, row := range c.items {
		all = append(all, kv{id, row})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].row.FetchedAt < all[j].row.FetchedAt })
	if n > len(all) {
		n = len(all)
	}
	ids := make([]int, 0, n)
	for i := 0; i < n; i++ {
		ids = append(ids, all[i].id)
	}
	c.mu.Unlock()

	for _, id := range ids {
		_ = c.DeleteItem(ctx, id)
	}
	return ids, nil
}

func (c *fakeCache) RecentItemsByPostedAt(ctx context.Context, n int) ([]translation.Item, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	all := make([]translation.Item, 0, len(c.items))
	for _, row := range c.items {
		all = append(all, row)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Time > all[j].Time })
	if n < len(all) {
		all = all[:n]
	}
	return all, nil
}

func (c *fakeCache) GetSetting(ctx context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.kv[key]
	return v, ok, nil
}

func (c *fakeCache) SetSetting(ctx context.Context, key, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.kv[key] = value
	return nil
}

func (c *fakeCache) GetSchedulerStatus(ctx context.Context) (settings.SchedulerStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status, nil
}

func (c *fakeCache) SetSchedulerStatus(ctx context.Context, status settings.SchedulerStatus) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = status
	return nil
}

// fakeUpstream implements feed.UpstreamClient over an in-memory item/comment set.
type fakeUpstream struct {
	mu       sync.Mutex
	topIDs   []int
	items    map[int]feed.ItemDetail
	comments map[int]feed.CommentDetail
}

var _ feed.UpstreamClient = (*fakeUpstream)(nil)

func newFakeUpstream() *fakeUpstream {
	return &fakeUpstream{items: make(map[int]feed.ItemDetail), comments: make(map[int]feed.CommentDetail)}
}

func (u *fakeUpstream) FetchTopIDs(ctx context.Context) ([]int, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make([]int, len(u.topIDs))
	copy(out, u.topIDs)
	return out, nil
}

func (u *fakeUpstream) FetchItem(ctx context.Context, id int) (*feed.ItemDetail, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	it, ok := u.items[id]
	if !ok {
		return nil, nil
	}
	out := it
	return &out, nil
}

func (u *fakeUpstream) FetchItemsBatch(ctx context.Context, ids []int) ([]feed.ItemDetail, error) {
	out := make([]feed.ItemDetail, 0, len(ids))
	for _, id := range ids {
		it, _ := u.FetchItem(ctx, id)
		if it != nil {
			out = append(out, *it)
		}
	}
	return out, nil
}

func (u *fakeUpstream) FetchComment(ctx context.Context, id int) (*feed.CommentDetail, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	c, ok := u.comments[id]
	if !ok {
		return nil, nil
	}
	out := c
	return &out, nil
}

func (u *fakeUpstream) FetchCommentTree(ctx context.Context, ids []int, itemID int) ([]feed.CommentRecord, error) {
	var out []feed.CommentRecord
	var walk func(ids []int, parentID int)
	walk = func(ids []int, parentID int) {
		for _, id := range ids {
			detail, _ := u.FetchComment(ctx, id)
			if detail == nil {
				continue
			}
			out = append(out, feed.CommentRecord{
				CommentID: detail.ID,
				ItemID:    itemID,
				ParentID:  parentID,
				Author:    detail.By,
				Text:      detail.Text,
				Time:      detail.Time,
				Kids:      detail.Kids,
				Deleted:   detail.Deleted,
				Dead:      detail.Dead,
			})
			if len(detail.Kids) > 0 {
				walk(detail.Kids, detail.ID)
			}
		}
	}
	walk(ids, itemID)
	sort.Slice(out, func(i, j int) bool { return out[i].CommentID < out[j].CommentID })
	return out, nil
}

// fakeTranslator implements llm.Translator with scriptable failures so
// tests can reproduce mid-cycle and partial-batch scenarios.
type fakeTranslator struct {
	mu          sync.Mutex
	failTitleID map[int]bool // any item in a batch containing this id fails the whole batch
	omitTitleID map[int]bool // item is silently omitted from the response
}

var _ llm.Translator = (*fakeTranslator)(nil)

func newFakeTranslator() *fakeTranslator {
	return &fakeTranslator{failTitleID: make(map[int]bool), omitTitleID: make(map[int]bool)}
}

func (t *fakeTranslator) TranslateTitles(ctx context.Context, items []llm.TitleInput, prompt string) ([]llm.TitleOutput, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, it := range items {
		if t.failTitleID[it.ID] {
			return nil, fmt.Errorf("simulated translation failure for item %d", it.ID)
		}
	}
	out := make([]llm.TitleOutput, 0, len(items))
	for _, it := range items {
		if t.omitTitleID[it.ID] {
			continue
		}
		out = append(out, llm.TitleOutput{ID: it.ID, TranslatedTitle: "zh:" + it.Title})
	}
	return out, nil
}

func (t *fakeTranslator) TranslateArticle(ctx context.Context, markdown, prompt string) (string, error) {
	if markdown == "" {
		return "", nil
	}
	return "zh-article:" + markdown, nil
}

func (t *fakeTranslator) GenerateTLDR(ctx context.Context, markdown, prompt string) (string, error) {
	return "zh-tldr", nil
}

func (t *fakeTranslator) TranslateComments(ctx context.Context, items []llm.CommentInput, prompt string) ([]llm.CommentOutput, error) {
	out := make([]llm.CommentOutput, 0, len(items))
	for _, it := range items {
		out = append(out, llm.CommentOutput{ID: it.ID, TranslatedText: "zh:" + it.Text})
	}
	return out, nil
}

// fakeReader implements content.ArticleFetcher with per-URL canned outcomes.
type fakeReader struct {
	mu        sync.Mutex
	outcomes  map[string]content.Outcome
	callCount int
}

var _ content.ArticleFetcher = (*fakeReader)(nil)

func newFakeReader() *fakeReader {
	return &fakeReader{outcomes: make(map[string]content.Outcome)}
}

func (r *fakeReader) FetchArticleBody(ctx context.Context, url string) content.Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callCount++
	if out, ok := r.outcomes[url]; ok {
		return out
	}
	return content.Outcome{Err: fmt.Errorf("no canned outcome for %s", url)}
}

package pipeline

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"hnzh/internal/async"
	"hnzh/internal/domain/feed"
	"hnzh/internal/domain/jobs"
	"hnzh/internal/domain/llm"
	"hnzh/internal/domain/translation"
	"hnzh/internal/eventbus"
	"hnzh/internal/health"
	"hnzh/internal/logging"
	"hnzh/internal/prompts"
)

// FetchConfig holds the "scheduler_*" runtime configuration slots.
type FetchConfig struct {
	IntervalMS             int
	StoryLimit             int
	ArticleConcurrency     int
	MaxCommentTranslations int
}

// Titles are translated in fixed chunks, each chunk immediately followed
// by its article fan-out, so a crash mid-cycle leaves only the
// still-untranslated tail to redo.
const titleBatchSize = 5

func (c FetchConfig) normalize() FetchConfig {
	if c.IntervalMS <= 0 {
		c.IntervalMS = 30 * 60 * 1000
	}
	if c.StoryLimit <= 0 {
		c.StoryLimit = 30
	}
	if c.ArticleConcurrency <= 0 {
		c.ArticleConcurrency = 5
	}
	if c.MaxCommentTranslations <= 0 {
		c.MaxCommentTranslations = 50
	}
	return c
}

// FetchScheduler drives the central fetch-and-translate cycle: discover
// the top-ranked stories, translate missing or stale titles in interleaved
// chunks, and fan each chunk's articles out for body fetch, translation,
// and comment capture.
type FetchScheduler struct {
	deps Deps

	mu       sync.Mutex
	cfg      FetchConfig
	timer    *time.Timer
	stopCh   chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
}

// NewFetchScheduler creates a scheduler with initial configuration cfg.
func NewFetchScheduler(deps Deps, cfg FetchConfig) *FetchScheduler {
	deps.Logger = logging.OrNop(deps.Logger)
	return &FetchScheduler{
		deps:    deps,
		cfg:     cfg.normalize(),
		stopCh:  make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// Start runs one cycle immediately, then every cfg.IntervalMS until Stop.
func (s *FetchScheduler) Start(ctx context.Context) {
	go s.loop(ctx)
}

func (s *FetchScheduler) loop(ctx context.Context) {
	s.runGuarded(ctx)
	for {
		s.mu.Lock()
		interval := time.Duration(s.cfg.IntervalMS) * time.Millisecond
		s.timer = time.NewTimer(interval)
		timer := s.timer
		s.mu.Unlock()

		select {
		case <-timer.C:
			s.runGuarded(ctx)
		case <-s.stopCh:
			timer.Stop()
			close(s.stopped)
			return
		}
	}
}

// runGuarded executes one cycle, recovering from and logging any panic so
// a single bad cycle never takes the scheduler down.
func (s *FetchScheduler) runGuarded(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.deps.Logger.Error("fetch-scheduler: cycle panicked: %v", r)
		}
	}()
	if err := s.RunOnce(ctx); err != nil {
		s.deps.Logger.Warn("fetch-scheduler: cycle failed: %v", err)
	}
}

// Stop idempotently stops the timer loop. In-flight tasks are not aborted.
func (s *FetchScheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// Done is closed once the loop has exited.
func (s *FetchScheduler) Done() <-chan struct{} {
	return s.stopped
}

// Restart replaces the configuration and restarts the timer with the new
// interval; it does not affect any cycle currently running.
func (s *FetchScheduler) Restart(cfg FetchConfig) {
	s.mu.Lock()
	s.cfg = cfg.normalize()
	if s.timer != nil {
		s.timer.Stop()
		s.timer.Reset(time.Duration(s.cfg.IntervalMS) * time.Millisecond)
	}
	s.mu.Unlock()
}

// RunOnce performs exactly one fetch-and-translate cycle on demand,
// independent of the timer.
func (s *FetchScheduler) RunOnce(ctx context.Context) error {
	start := time.Now()
	s.mu.Lock()
	cfg := s.cfg
	s.mu.Unlock()

	defer func() {
		if s.deps.Metrics != nil {
			s.deps.Metrics.RecordCycle("fetch", time.Since(start))
		}
	}()

	ids, err := s.deps.Upstream.FetchTopIDs(ctx)
	if err != nil {
		return fmt.Errorf("fetch top ids: %w", err)
	}
	if len(ids) > cfg.StoryLimit {
		ids = ids[:cfg.StoryLimit]
	}
	items, err := s.deps.Upstream.FetchItemsBatch(ctx, ids)
	if err != nil {
		return fmt.Errorf("fetch items batch: %w", err)
	}
	if s.deps.Health != nil {
		s.deps.Health.RecordSuccess(health.Upstream)
	}

	articlePrompt := s.deps.Prompts.GetPrompt(prompts.Article)
	hash := prompts.PromptHash(articlePrompt)

	// Partition into items whose title is missing or stale under the
	// current prompt hash, and items whose title is current but whose
	// article is still pending. Rank order is preserved in both lists;
	// items with a terminal article are skipped entirely.
	var needTitle, onlyArticle []feed.ItemDetail
	for _, it := range items {
		title, err := s.deps.Cache.GetTitle(ctx, it.ID, hash)
		if err != nil {
			s.deps.Logger.Warn("fetch-scheduler: get title %d: %v", it.ID, err)
			continue
		}
		if title == nil {
			needTitle = append(needTitle, it)
			continue
		}
		if it.URL == "" {
			continue
		}
		article, err := s.deps.Cache.GetArticle(ctx, it.ID)
		if err != nil {
			s.deps.Logger.Warn("fetch-scheduler: get article %d: %v", it.ID, err)
			continue
		}
		if article == nil || !article.Status.Terminal() {
			onlyArticle = append(onlyArticle, it)
		}
	}

	titlesTranslated := 0

	s.runArticleBatch(ctx, onlyArticle, cfg, articlePrompt)

	for start := 0; start < len(needTitle); start += titleBatchSize {
		end := start + titleBatchSize
		if end > len(needTitle) {
			end = len(needTitle)
		}
		chunk := needTitle[start:end]
		titlesTranslated += s.translateTitleChunk(ctx, chunk, hash)

		// Text-only items are complete once their title lands; items
		// with a URL go straight into this chunk's article fan-out.
		var chunkArticles []feed.ItemDetail
		for _, it := range chunk {
			title, _ := s.deps.Cache.GetTitle(ctx, it.ID, hash)
			if title == nil {
				continue
			}
			if it.URL == "" {
				if err := s.deps.Cache.UpsertItem(ctx, itemFromDetail(it)); err != nil {
					s.deps.Logger.Warn("fetch-scheduler: upsert item %d: %v", it.ID, err)
				}
				continue
			}
			chunkArticles = append(chunkArticles, it)
		}
		s.runArticleBatch(ctx, chunkArticles, cfg, articlePrompt)
	}

	now := time.Now().Unix()
	if s.deps.Settings != nil {
		_ = s.deps.Settings.SetSchedulerStatus(ctx, statusOf(now, len(items), titlesTranslated))
	}
	return nil
}

func itemFromDetail(it feed.ItemDetail) translation.Item {
	return translation.Item{
		ItemID:      it.ID,
		TitleEN:     it.Title,
		By:          it.By,
		Score:       it.Score,
		Time:        it.Time,
		URL:         it.URL,
		Descendants: it.Descendants,
	}
}

// translateTitleChunk calls the batch translator and persists every
// returned row, leaving items the model omitted to be retried next cycle.
func (s *FetchScheduler) translateTitleChunk(ctx context.Context, chunk []feed.ItemDetail, hash string) int {
	if len(chunk) == 0 {
		return 0
	}
	byID := make(map[int]feed.ItemDetail, len(chunk))
	inputs := make([]llm.TitleInput, 0, len(chunk))
	for _, it := range chunk {
		byID[it.ID] = it
		inputs = append(inputs, llm.TitleInput{ID: it.ID, Title: it.Title})
	}

	prompt := s.deps.Prompts.GetPrompt(prompts.Article)
	outputs, err := s.deps.Translator.TranslateTitles(ctx, inputs, prompt)
	if err != nil {
		s.deps.Logger.Warn("fetch-scheduler: translate titles: %v", err)
		return 0
	}
	if s.deps.Metrics != nil {
		s.deps.Metrics.RecordBatchSize("title", len(chunk))
	}

	rows := make([]translation.TitleTranslation, 0, len(outputs))
	for _, out := range outputs {
		it, ok := byID[out.ID]
		if !ok {
			continue
		}
		rows = append(rows, translation.TitleTranslation{
			ItemID:     it.ID,
			TitleEN:    it.Title,
			TitleZH:    out.TranslatedTitle,
			PromptHash: hash,
		})
	}
	if err := s.deps.Cache.UpsertTitles(ctx, rows); err != nil {
		s.deps.Logger.Warn("fetch-scheduler: upsert titles: %v", err)
		return 0
	}
	return len(rows)
}

// runArticleBatch runs the article task for every item with a URL, fanned
// out with up to cfg.ArticleConcurrency tasks in flight at once.
func (s *FetchScheduler) runArticleBatch(ctx context.Context, items []feed.ItemDetail, cfg FetchConfig, articlePrompt string) {
	sem := make(chan struct{}, cfg.ArticleConcurrency)
	var wg sync.WaitGroup
	for _, it := range items {
		if it.URL == "" {
			continue
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(it feed.ItemDetail) {
			defer wg.Done()
			defer func() { <-sem }()
			if err := submitOrRun(ctx, s.deps, it.ID, jobs.KindArticle, func(ctx context.Context) error {
				return s.articleTask(ctx, it, articlePrompt, cfg)
			}); err != nil {
				s.deps.Logger.Warn("fetch-scheduler: article task %d: %v", it.ID, err)
			}
		}(it)
	}
	wg.Wait()
}

// articleTask fetches, translates, and persists one item's article. It is
// idempotent under re-entry: a terminal article row short-circuits, and a
// missing title translation aborts without error (the title batch simply
// did not produce one this cycle).
func (s *FetchScheduler) articleTask(ctx context.Context, it feed.ItemDetail, articlePrompt string, cfg FetchConfig) error {
	existing, err := s.deps.Cache.GetArticle(ctx, it.ID)
	if err != nil {
		return fmt.Errorf("get article %d: %w", it.ID, err)
	}
	if existing != nil && existing.Status.Terminal() {
		return nil
	}

	hash := prompts.PromptHash(articlePrompt)
	title, err := s.deps.Cache.GetTitle(ctx, it.ID, hash)
	if err != nil {
		return fmt.Errorf("get title %d: %w", it.ID, err)
	}
	if title == nil {
		return nil
	}

	outcome := s.deps.Reader.FetchArticleBody(ctx, it.URL)
	if outcome.Blocked {
		if s.deps.Health != nil {
			s.deps.Health.RecordSuccess(health.Reader)
		}
		if err := s.deps.Cache.SetArticle(ctx, translation.ArticleTranslation{
			ItemID:       it.ID,
			OriginalURL:  it.URL,
			Status:       translation.ArticleBlocked,
			ErrorMessage: "content blocked (http 451)",
		}); err != nil {
			return fmt.Errorf("set blocked article %d: %w", it.ID, err)
		}
		return nil
	}
	if outcome.Err != nil {
		// A failed or too-short body leaves no article row behind: the
		// item stays invisible to the discovery filter's terminal-status
		// check and is retried on a future cycle.
		if s.deps.Health != nil {
			s.deps.Health.RecordFailure(health.Reader, outcome.Err)
		}
		s.publish(eventbus.Event{Type: eventbus.EventArticleError, StoryID: it.ID, Title: title.TitleZH, Error: outcome.Err.Error()})
		return fmt.Errorf("fetch article body %d: %w", it.ID, outcome.Err)
	}
	if s.deps.Health != nil {
		s.deps.Health.RecordSuccess(health.Reader)
	}

	tldrPrompt := s.deps.Prompts.GetPrompt(prompts.TLDR)

	var translated, tldr string
	var translateErr, tldrErr error
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		translated, translateErr = s.deps.Translator.TranslateArticle(ctx, outcome.Markdown, articlePrompt)
	}()
	go func() {
		defer wg.Done()
		tldr, tldrErr = s.deps.Translator.GenerateTLDR(ctx, outcome.Markdown, tldrPrompt)
	}()
	wg.Wait()

	if translateErr != nil || translated == "" {
		msg := "empty article translation"
		if translateErr != nil {
			msg = translateErr.Error()
		}
		_ = s.deps.Cache.SetArticleStatus(ctx, it.ID, translation.ArticleError, msg)
		s.publish(eventbus.Event{Type: eventbus.EventArticleError, StoryID: it.ID, Title: title.TitleZH, Error: msg})
		return fmt.Errorf("translate article %d: %s", it.ID, msg)
	}
	if tldrErr != nil {
		// A failed summary never blocks the article.
		tldr = ""
	}

	// Write order matters for readers racing this task: article row, then
	// item row, then the completion event. A client reacting to the event
	// is guaranteed to find the done article on its next read.
	if err := s.deps.Cache.SetArticle(ctx, translation.ArticleTranslation{
		ItemID:          it.ID,
		TitleSnapshot:   title.TitleZH,
		ContentMarkdown: translated,
		OriginalURL:     it.URL,
		Status:          translation.ArticleDone,
		TLDR:            tldr,
	}); err != nil {
		return fmt.Errorf("set article %d: %w", it.ID, err)
	}
	if err := s.deps.Cache.UpsertItem(ctx, itemFromDetail(it)); err != nil {
		s.deps.Logger.Warn("fetch-scheduler: upsert item %d: %v", it.ID, err)
	}

	async.Go(s.deps.Logger, "comment-subtask", func() {
		s.commentSubtask(context.Background(), it, cfg)
	})

	s.publish(eventbus.Event{
		Type:        eventbus.EventArticleDone,
		StoryID:     it.ID,
		Title:       title.TitleZH,
		Content:     translated,
		OriginalURL: it.URL,
		TLDR:        tldr,
		Story: map[string]any{
			"id":          it.ID,
			"title":       title.TitleZH,
			"by":          it.By,
			"score":       it.Score,
			"time":        it.Time,
			"url":         it.URL,
			"descendants": it.Descendants,
			"tldr":        tldr,
		},
	})
	return nil
}

func (s *FetchScheduler) publish(event eventbus.Event) {
	if s.deps.Bus != nil {
		s.deps.Bus.Publish(event)
	}
}

// commentSubtask captures and translates an item's comment tree,
// best-effort: a failure here never rolls back the already-persisted
// article.
func (s *FetchScheduler) commentSubtask(ctx context.Context, it feed.ItemDetail, cfg FetchConfig) {
	if it.Descendants == 0 {
		return
	}
	has, err := s.deps.Cache.HasComments(ctx, it.ID)
	if err != nil {
		s.deps.Logger.Warn("comment-subtask: has comments %d: %v", it.ID, err)
		return
	}
	if has {
		return
	}

	detail, err := s.deps.Upstream.FetchItem(ctx, it.ID)
	if err != nil || detail == nil {
		return
	}
	records, err := s.deps.Upstream.FetchCommentTree(ctx, detail.Kids, it.ID)
	if err != nil {
		s.deps.Logger.Warn("comment-subtask: fetch tree %d: %v", it.ID, err)
		return
	}

	selected := selectTranslatable(records, it.ID, cfg.MaxCommentTranslations)

	// Comment rows land before their translation rows, so a translation
	// never references a comment that is not yet stored.
	if err := s.deps.Cache.UpsertComments(ctx, toCommentRows(records)); err != nil {
		s.deps.Logger.Warn("comment-subtask: upsert comments %d: %v", it.ID, err)
		return
	}
	if len(selected) == 0 {
		return
	}

	commentPrompt := s.deps.Prompts.GetPrompt(prompts.Comment)
	inputs := make([]llm.CommentInput, 0, len(selected))
	originalByID := make(map[int]string, len(selected))
	for _, c := range selected {
		inputs = append(inputs, llm.CommentInput{ID: c.CommentID, Text: c.Text})
		originalByID[c.CommentID] = c.Text
	}
	outputs, err := s.deps.Translator.TranslateComments(ctx, inputs, commentPrompt)
	if err != nil {
		s.deps.Logger.Warn("comment-subtask: translate comments %d: %v", it.ID, err)
		return
	}
	if s.deps.Metrics != nil {
		s.deps.Metrics.RecordBatchSize("comment", len(inputs))
	}

	rows := make([]translation.CommentTranslation, 0, len(outputs))
	for _, out := range outputs {
		rows = append(rows, translation.CommentTranslation{
			CommentID: out.ID,
			TextEN:    originalByID[out.ID],
			TextZH:    out.TranslatedText,
		})
	}
	if err := s.deps.Cache.UpsertCommentTranslations(ctx, rows); err != nil {
		s.deps.Logger.Warn("comment-subtask: upsert comment translations %d: %v", it.ID, err)
	}
}

// selectTranslatable walks the flat comment list as a tree, depth-first
// with siblings in time-ascending order, and returns the first k comments
// with non-empty text that are neither deleted nor dead. A comment whose
// parent is missing from the fetched set is treated as a root.
func selectTranslatable(records []feed.CommentRecord, itemID, k int) []feed.CommentRecord {
	present := make(map[int]bool, len(records))
	for _, r := range records {
		present[r.CommentID] = true
	}
	children := make(map[int][]feed.CommentRecord, len(records))
	var roots []feed.CommentRecord
	for _, r := range records {
		if r.ParentID == itemID || !present[r.ParentID] {
			roots = append(roots, r)
			continue
		}
		children[r.ParentID] = append(children[r.ParentID], r)
	}

	byTime := func(s []feed.CommentRecord) {
		sort.SliceStable(s, func(i, j int) bool { return s[i].Time < s[j].Time })
	}
	byTime(roots)
	for id := range children {
		byTime(children[id])
	}

	var out []feed.CommentRecord
	var walk func(list []feed.CommentRecord) bool
	walk = func(list []feed.CommentRecord) bool {
		for _, c := range list {
			if len(out) >= k {
				return true
			}
			if c.HasTranslatableText() {
				out = append(out, c)
			}
			if walk(children[c.CommentID]) {
				return true
			}
		}
		return false
	}
	walk(roots)
	return out
}

func toCommentRows(records []feed.CommentRecord) []translation.Comment {
	out := make([]translation.Comment, 0, len(records))
	for _, r := range records {
		out = append(out, translation.Comment{
			CommentID: r.CommentID,
			ItemID:    r.ItemID,
			ParentID:  r.ParentID,
			Author:    r.Author,
			Text:      r.Text,
			Time:      r.Time,
			Kids:      r.Kids,
			Deleted:   r.Deleted,
			Dead:      r.Dead,
		})
	}
	return out
}

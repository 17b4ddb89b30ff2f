package pipeline

import (
	"context"
	"sync"
	"time"

	"hnzh/internal/domain/feed"
	"hnzh/internal/domain/llm"
	"hnzh/internal/domain/translation"
	"hnzh/internal/logging"
	"hnzh/internal/prompts"
)

// CommentRefreshConfig holds the "comment_refresh_*" configuration slots.
type CommentRefreshConfig struct {
	Enabled                bool
	IntervalMS             int
	StoryLimit             int
	BatchSize              int
	MaxCommentTranslations int
}

// The first refresh is held back so it never co-fires with the fetch
// scheduler's immediate startup cycle.
const commentRefreshInitialDelay = 30 * time.Second

func (c CommentRefreshConfig) normalize() CommentRefreshConfig {
	if c.IntervalMS <= 0 {
		c.IntervalMS = 10 * 60 * 1000
	}
	if c.StoryLimit <= 0 {
		c.StoryLimit = 30
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 5
	}
	if c.MaxCommentTranslations <= 0 {
		c.MaxCommentTranslations = 50
	}
	return c
}

// CommentRefreshScheduler periodically diffs each recent item's upstream
// comment tree against the cache and translates only the new comments,
// independent of the fetch scheduler.
type CommentRefreshScheduler struct {
	deps Deps

	mu       sync.Mutex
	cfg      CommentRefreshConfig
	timer    *time.Timer
	stopCh   chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
}

// NewCommentRefreshScheduler creates a scheduler with initial configuration cfg.
func NewCommentRefreshScheduler(deps Deps, cfg CommentRefreshConfig) *CommentRefreshScheduler {
	deps.Logger = logging.OrNop(deps.Logger)
	return &CommentRefreshScheduler{
		deps:    deps,
		cfg:     cfg.normalize(),
		stopCh:  make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// Start waits the initial delay, then runs cycles on its own interval
// until Stop. A no-op if cfg.Enabled is false.
func (s *CommentRefreshScheduler) Start(ctx context.Context) {
	s.mu.Lock()
	enabled := s.cfg.Enabled
	s.mu.Unlock()
	if !enabled {
		close(s.stopped)
		return
	}
	go s.loop(ctx)
}

func (s *CommentRefreshScheduler) loop(ctx context.Context) {
	select {
	case <-time.After(commentRefreshInitialDelay):
	case <-s.stopCh:
		close(s.stopped)
		return
	}

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

func (s *CommentRefreshScheduler) runGuarded(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.deps.Logger.Error("comment-refresh: cycle panicked: %v", r)
		}
	}()
	if err := s.RunOnce(ctx); err != nil {
		s.deps.Logger.Warn("comment-refresh: cycle failed: %v", err)
	}
}

// Stop idempotently stops the loop.
func (s *CommentRefreshScheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// Done is closed once the loop has exited.
func (s *CommentRefreshScheduler) Done() <-chan struct{} {
	return s.stopped
}

// RunOnce performs one comment-refresh cycle.
func (s *CommentRefreshScheduler) RunOnce(ctx context.Context) error {
	start := time.Now()
	s.mu.Lock()
	cfg := s.cfg
	s.mu.Unlock()

	defer func() {
		if s.deps.Metrics != nil {
			s.deps.Metrics.RecordCycle("comment-refresh", time.Since(start))
		}
	}()

	items, err := s.deps.Cache.RecentItemsByPostedAt(ctx, cfg.StoryLimit)
	if err != nil {
		return err
	}

	sem := make(chan struct{}, cfg.BatchSize)
	var wg sync.WaitGroup
	for _, it := range items {
		wg.Add(1)
		sem <- struct{}{}
		go func(it translation.Item) {
			defer wg.Done()
			defer func() { <-sem }()
			s.refreshItem(ctx, it, cfg)
		}(it)
	}
	wg.Wait()
	return nil
}

// refreshItem diffs the upstream comment tree against cached comment
// IDs, persists every fetched comment, then translates only the new
// ones. Per-item failures are logged and never halt the batch.
func (s *CommentRefreshScheduler) refreshItem(ctx context.Context, it translation.Item, cfg CommentRefreshConfig) {
	detail, err := s.deps.Upstream.FetchItem(ctx, it.ItemID)
	if err != nil || detail == nil || len(detail.Kids) == 0 {
		return
	}

	records, err := s.deps.Upstream.FetchCommentTree(ctx, detail.Kids, it.ItemID)
	if err != nil {
		s.deps.Logger.Warn("comment-refresh: fetch tree %d: %v", it.ItemID, err)
		return
	}

	existing, err := s.deps.Cache.FindCommentsByItem(ctx, it.ItemID)
	if err != nil {
		s.deps.Logger.Warn("comment-refresh: find comments %d: %v", it.ItemID, err)
		return
	}
	knownIDs := make(map[int]bool, len(existing))
	for _, c := range existing {
		knownIDs[c.CommentID] = true
	}

	if err := s.deps.Cache.UpsertComments(ctx, toCommentRows(records)); err != nil {
		s.deps.Logger.Warn("comment-refresh: upsert comments %d: %v", it.ItemID, err)
		return
	}

	var fresh []feed.CommentRecord
	for _, r := range records {
		if !knownIDs[r.CommentID] && r.HasTranslatableText() {
			fresh = append(fresh, r)
		}
	}
	if len(fresh) == 0 {
		return
	}
	if len(fresh) > cfg.MaxCommentTranslations {
		fresh = fresh[:cfg.MaxCommentTranslations]
	}

	commentPrompt := s.deps.Prompts.GetPrompt(prompts.Comment)
	inputs := make([]llm.CommentInput, 0, len(fresh))
	originalByID := make(map[int]string, len(fresh))
	for _, c := range fresh {
		inputs = append(inputs, llm.CommentInput{ID: c.CommentID, Text: c.Text})
		originalByID[c.CommentID] = c.Text
	}
	outputs, err := s.deps.Translator.TranslateComments(ctx, inputs, commentPrompt)
	if err != nil {
		s.deps.Logger.Warn("comment-refresh: translate comments %d: %v", it.ItemID, err)
		return
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
		s.deps.Logger.Warn("comment-refresh: upsert comment translations %d: %v", it.ItemID, err)
	}
}

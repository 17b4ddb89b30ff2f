// Package pgcache implements the translation cache against Postgres. A
// small LRU layer sits in front of the hot single-row title and article
// reads so repeated scheduler lookups within a cycle don't round-trip
// the database.
package pgcache

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	lru "github.com/hashicorp/golang-lru/v2"

	"hnzh/internal/domain/translation"
	"hnzh/internal/logging"
)

const (
	itemsTable           = "hnzh_items"
	titlesTable          = "hnzh_title_translations"
	articlesTable        = "hnzh_article_translations"
	commentsTable        = "hnzh_comments"
	commentTrTable       = "hnzh_comment_translations"
	settingsTable        = "hnzh_settings"
	schedulerStatusTable = "hnzh_scheduler_status"
	titleCacheSize       = 2048
	articleCacheSize     = 512
)

// Store implements translation.Cache backed by a pgxpool.Pool.
type Store struct {
	pool       *pgxpool.Pool
	logger     logging.Logger
	titleLRU   *lru.Cache[int, translation.TitleTranslation]
	articleLRU *lru.Cache[int, translation.ArticleTranslation]
}

var _ translation.Cache = (*Store)(nil)

// New creates a Store. logger may be nil.
func New(pool *pgxpool.Pool, logger logging.Logger) *Store {
	titleCache, _ := lru.New[int, translation.TitleTranslation](titleCacheSize)
	articleCache, _ := lru.New[int, translation.ArticleTranslation](articleCacheSize)
	return &Store{
		pool:       pool,
		logger:     logging.OrNop(logger),
		titleLRU:   titleCache,
		articleLRU: articleCache,
	}
}

// EnsureSchema creates every hnzh table and its indices if absent.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("pgcache store not initialized")
	}

	statements := []string{
		`CREATE TABLE IF NOT EXISTS ` + itemsTable + ` (
			item_id     INTEGER PRIMARY KEY,
			title_en    TEXT NOT NULL,
			by_user     TEXT NOT NULL DEFAULT '',
			score       INTEGER NOT NULL DEFAULT 0,
			posted_at   BIGINT NOT NULL,
			url         TEXT NOT NULL DEFAULT '',
			descendants INTEGER NOT NULL DEFAULT 0,
			fetched_at  BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_hnzh_items_fetched_at ON ` + itemsTable + ` (fetched_at ASC)`,
		`CREATE INDEX IF NOT EXISTS idx_hnzh_items_posted_at ON ` + itemsTable + ` (posted_at DESC)`,

		// No FK to items: a title row is written while the item is still
		// queued (possibly before its article finishes, or before the item
		// row exists at all), so it cannot reference a row that may not
		// exist yet. DeleteItem removes it explicitly instead.
		`CREATE TABLE IF NOT EXISTS ` + titlesTable + ` (
			item_id     INTEGER PRIMARY KEY,
			title_en    TEXT NOT NULL,
			title_zh    TEXT NOT NULL,
			prompt_hash TEXT NOT NULL,
			updated_at  BIGINT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS ` + articlesTable + ` (
			item_id          INTEGER PRIMARY KEY,
			title_snapshot   TEXT NOT NULL DEFAULT '',
			content_markdown TEXT NOT NULL DEFAULT '',
			original_url     TEXT NOT NULL DEFAULT '',
			status           TEXT NOT NULL DEFAULT 'queued',
			error_message    TEXT NOT NULL DEFAULT '',
			tldr             TEXT NOT NULL DEFAULT '',
			updated_at       BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_hnzh_articles_status ON ` + articlesTable + ` (status)`,

		`CREATE TABLE IF NOT EXISTS ` + commentsTable + ` (
			comment_id INTEGER PRIMARY KEY,
			item_id    INTEGER NOT NULL,
			parent_id  INTEGER NOT NULL,
			author     TEXT NOT NULL DEFAULT '',
			text       TEXT NOT NULL DEFAULT '',
			posted_at  BIGINT NOT NULL,
			kids       JSONB,
			deleted    BOOLEAN NOT NULL DEFAULT false,
			dead       BOOLEAN NOT NULL DEFAULT false,
			fetched_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_hnzh_comments_item ON ` + commentsTable + ` (item_id)`,
		`CREATE INDEX IF NOT EXISTS idx_hnzh_comments_fetched_at ON ` + commentsTable + ` (fetched_at ASC)`,

		`CREATE TABLE IF NOT EXISTS ` + commentTrTable + ` (
			comment_id INTEGER PRIMARY KEY,
			text_en    TEXT NOT NULL,
			text_zh    TEXT NOT NULL,
			updated_at BIGINT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS ` + settingsTable + ` (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			updated_at BIGINT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS ` + schedulerStatusTable + ` (
			id                INTEGER PRIMARY KEY DEFAULT 1,
			last_run_at       BIGINT,
			stories_fetched   INTEGER NOT NULL DEFAULT 0,
			titles_translated INTEGER NOT NULL DEFAULT 0,
			updated_at        BIGINT NOT NULL,
			CHECK (id = 1)
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure hnzh schema: %w", err)
		}
	}
	return nil
}

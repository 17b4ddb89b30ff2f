package pgcache

import (
	"context"
	"fmt"
	"time"

	"hnzh/internal/domain/translation"
)

// GetArticle returns nil if no row exists.
func (s *Store) GetArticle(ctx context.Context, itemID int) (*translation.ArticleTranslation, error) {
	if cached, ok := s.articleLRU.Get(itemID); ok {
		row := cached
		return &row, nil
	}

	row := s.pool.QueryRow(ctx,
		`SELECT item_id, title_snapshot, content_markdown, original_url, status, error_message, tldr, updated_at
		 FROM `+articlesTable+` WHERE item_id = $1`, itemID)

	var a translation.ArticleTranslation
	var status string
	if err := row.Scan(&a.ItemID, &a.TitleSnapshot, &a.ContentMarkdown, &a.OriginalURL, &status, &a.ErrorMessage, &a.TLDR, &a.UpdatedAt); err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get article %d: %w", itemID, err)
	}
	a.Status = translation.ArticleStatus(status)
	s.articleLRU.Add(itemID, a)
	return &a, nil
}

// SetArticle writes the full row atomically, updating UpdatedAt. Rows
// violating the status/body/error consistency rules are rejected.
func (s *Store) SetArticle(ctx context.Context, row translation.ArticleTranslation) error {
	if err := row.Validate(); err != nil {
		return err
	}
	if row.UpdatedAt == 0 {
		row.UpdatedAt = time.Now().Unix()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+articlesTable+` (item_id, title_snapshot, content_markdown, original_url, status, error_message, tldr, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		 ON CONFLICT (item_id) DO UPDATE SET
		   title_snapshot = EXCLUDED.title_snapshot, content_markdown = EXCLUDED.content_markdown,
		   original_url = EXCLUDED.original_url, status = EXCLUDED.status,
		   error_message = EXCLUDED.error_message, tldr = EXCLUDED.tldr, updated_at = EXCLUDED.updated_at`,
		row.ItemID, row.TitleSnapshot, row.ContentMarkdown, row.OriginalURL, string(row.Status), row.ErrorMessage, row.TLDR, row.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("set article %d: %w", row.ItemID, err)
	}
	s.articleLRU.Add(row.ItemID, row)
	return nil
}

// SetArticleStatus updates only the status/error_message columns, leaving
// content untouched, for queued->running->error transitions that
// don't yet have a body to write.
func (s *Store) SetArticleStatus(ctx context.Context, itemID int, status translation.ArticleStatus, errMsg string) error {
	now := time.Now().Unix()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+articlesTable+` (item_id, status, error_message, updated_at)
		 VALUES ($1,$2,$3,$4)
		 ON CONFLICT (item_id) DO UPDATE SET
		   status = EXCLUDED.status, error_message = EXCLUDED.error_message, updated_at = EXCLUDED.updated_at`,
		itemID, string(status), errMsg, now,
	)
	if err != nil {
		return fmt.Errorf("set article status %d: %w", itemID, err)
	}
	s.articleLRU.Remove(itemID)
	return nil
}

// FindAllDoneArticles returns every article translation whose status is done.
func (s *Store) FindAllDoneArticles(ctx context.Context) ([]translation.ArticleTranslation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT item_id, title_snapshot, content_markdown, original_url, status, error_message, tldr, updated_at
		 FROM `+articlesTable+` WHERE status = $1`, string(translation.ArticleDone))
	if err != nil {
		return nil, fmt.Errorf("find done articles: %w", err)
	}
	defer rows.Close()

	var out []translation.ArticleTranslation
	for rows.Next() {
		var a translation.ArticleTranslation
		var status string
		if err := rows.Scan(&a.ItemID, &a.TitleSnapshot, &a.ContentMarkdown, &a.OriginalURL, &status, &a.ErrorMessage, &a.TLDR, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan done article: %w", err)
		}
		a.Status = translation.ArticleStatus(status)
		out = append(out, a)
	}
	return out, rows.Err()
}

// DeleteArticle removes a single article translation row.
func (s *Store) DeleteArticle(ctx context.Context, itemID int) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM `+articlesTable+` WHERE item_id = $1`, itemID); err != nil {
		return fmt.Errorf("delete article %d: %w", itemID, err)
	}
	s.articleLRU.Remove(itemID)
	return nil
}

// DeleteAllArticles truncates the article translation table.
func (s *Store) DeleteAllArticles(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM `+articlesTable); err != nil {
		return fmt.Errorf("delete all articles: %w", err)
	}
	s.articleLRU.Purge()
	return nil
}

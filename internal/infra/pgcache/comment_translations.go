package pgcache

import (
	"context"
	"fmt"
	"time"

	"hnzh/internal/domain/translation"
)

// UpsertCommentTranslations writes a batch of comment translation rows
// within one transaction.
func (s *Store) UpsertCommentTranslations(ctx context.Context, rows []translation.CommentTranslation) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin upsert comment translations tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	now := time.Now().Unix()
	for _, row := range rows {
		if row.UpdatedAt == 0 {
			row.UpdatedAt = now
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO `+commentTrTable+` (comment_id, text_en, text_zh, updated_at)
			 VALUES ($1,$2,$3,$4)
			 ON CONFLICT (comment_id) DO UPDATE SET
			   text_en = EXCLUDED.text_en, text_zh = EXCLUDED.text_zh, updated_at = EXCLUDED.updated_at`,
			row.CommentID, row.TextEN, row.TextZH, row.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("upsert comment translation %d: %w", row.CommentID, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit upsert comment translations tx: %w", err)
	}
	return nil
}

// FindCommentTranslationsByIDs returns whichever of ids have a stored
// translation; ids absent from the result simply have no row.
func (s *Store) FindCommentTranslationsByIDs(ctx context.Context, ids []int) ([]translation.CommentTranslation, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT comment_id, text_en, text_zh, updated_at FROM `+commentTrTable+` WHERE comment_id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("find comment translations: %w", err)
	}
	defer rows.Close()

	var out []translation.CommentTranslation
	for rows.Next() {
		var c translation.CommentTranslation
		if err := rows.Scan(&c.CommentID, &c.TextEN, &c.TextZH, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan comment translation: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// DeleteCommentTranslationsByIDs removes translation rows for the given ids.
func (s *Store) DeleteCommentTranslationsByIDs(ctx context.Context, ids []int) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := s.pool.Exec(ctx, `DELETE FROM `+commentTrTable+` WHERE comment_id = ANY($1)`, ids); err != nil {
		return fmt.Errorf("delete comment translations: %w", err)
	}
	return nil
}

package pgcache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"hnzh/internal/domain/translation"
)

// UpsertComments writes a batch of comment rows within one transaction.
func (s *Store) UpsertComments(ctx context.Context, rows []translation.Comment) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin upsert comments tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	now := time.Now().Unix()
	for _, row := range rows {
		if row.FetchedAt == 0 {
			row.FetchedAt = now
		}
		kidsJSON, err := json.Marshal(row.Kids)
		if err != nil {
			return fmt.Errorf("marshal kids for comment %d: %w", row.CommentID, err)
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO `+commentsTable+` (comment_id, item_id, parent_id, author, text, posted_at, kids, deleted, dead, fetched_at)
			 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
			 ON CONFLICT (comment_id) DO UPDATE SET
			   item_id = EXCLUDED.item_id, parent_id = EXCLUDED.parent_id, author = EXCLUDED.author,
			   text = EXCLUDED.text, posted_at = EXCLUDED.posted_at, kids = EXCLUDED.kids,
			   deleted = EXCLUDED.deleted, dead = EXCLUDED.dead, fetched_at = EXCLUDED.fetched_at`,
			row.CommentID, row.ItemID, row.ParentID, row.Author, row.Text, row.Time, kidsJSON, row.Deleted, row.Dead, row.FetchedAt,
		)
		if err != nil {
			return fmt.Errorf("upsert comment %d: %w", row.CommentID, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit upsert comments tx: %w", err)
	}
	return nil
}

// FindCommentsByItem returns every comment row for itemID.
func (s *Store) FindCommentsByItem(ctx context.Context, itemID int) ([]translation.Comment, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT comment_id, item_id, parent_id, author, text, posted_at, kids, deleted, dead, fetched_at
		 FROM `+commentsTable+` WHERE item_id = $1`, itemID)
	if err != nil {
		return nil, fmt.Errorf("find comments for item %d: %w", itemID, err)
	}
	defer rows.Close()

	var out []translation.Comment
	for rows.Next() {
		var c translation.Comment
		var kidsJSON []byte
		if err := rows.Scan(&c.CommentID, &c.ItemID, &c.ParentID, &c.Author, &c.Text, &c.Time, &kidsJSON, &c.Deleted, &c.Dead, &c.FetchedAt); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		if len(kidsJSON) > 0 {
			_ = json.Unmarshal(kidsJSON, &c.Kids)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// HasComments reports whether any comment row exists for itemID.
func (s *Store) HasComments(ctx context.Context, itemID int) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM `+commentsTable+` WHERE item_id = $1)`, itemID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("has comments for item %d: %w", itemID, err)
	}
	return exists, nil
}

// DeleteOldestComments deletes up to n comments ordered by FetchedAt
// ascending, returning the deleted IDs.
func (s *Store) DeleteOldestComments(ctx context.Context, n int) ([]int, error) {
	if n <= 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		`DELETE FROM `+commentsTable+` WHERE comment_id IN (
			SELECT comment_id FROM `+commentsTable+` ORDER BY fetched_at ASC LIMIT $1
		) RETURNING comment_id`, n)
	if err != nil {
		return nil, fmt.Errorf("delete oldest comments: %w", err)
	}
	defer rows.Close()

	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan deleted comment id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CountComments reports the total row count for the retention sweeper.
func (s *Store) CountComments(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM `+commentsTable).Scan(&n); err != nil {
		return 0, fmt.Errorf("count comments: %w", err)
	}
	return n, nil
}

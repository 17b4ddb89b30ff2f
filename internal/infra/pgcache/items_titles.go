package pgcache

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"hnzh/internal/domain/translation"
)

// GetItem returns nil if no row exists.
func (s *Store) GetItem(ctx context.Context, itemID int) (*translation.Item, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT item_id, title_en, by_user, score, posted_at, url, descendants, fetched_at
		 FROM `+itemsTable+` WHERE item_id = $1`, itemID)

	var it translation.Item
	if err := row.Scan(&it.ItemID, &it.TitleEN, &it.By, &it.Score, &it.Time, &it.URL, &it.Descendants, &it.FetchedAt); err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get item %d: %w", itemID, err)
	}
	return &it, nil
}

// UpsertItem writes or replaces the item row, stamping FetchedAt on write.
func (s *Store) UpsertItem(ctx context.Context, row translation.Item) error {
	if row.FetchedAt == 0 {
		row.FetchedAt = time.Now().Unix()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+itemsTable+` (item_id, title_en, by_user, score, posted_at, url, descendants, fetched_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		 ON CONFLICT (item_id) DO UPDATE SET
		   title_en = EXCLUDED.title_en, by_user = EXCLUDED.by_user, score = EXCLUDED.score,
		   posted_at = EXCLUDED.posted_at, url = EXCLUDED.url, descendants = EXCLUDED.descendants,
		   fetched_at = EXCLUDED.fetched_at`,
		row.ItemID, row.TitleEN, row.By, row.Score, row.Time, row.URL, row.Descendants, row.FetchedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert item %d: %w", row.ItemID, err)
	}
	return nil
}

// DeleteItem removes the item row and cascades explicitly to its titles,
// articles, and comments. None of those tables carry an
// FK to items, since title/article rows are routinely written before the
// item row exists.
func (s *Store) DeleteItem(ctx context.Context, itemID int) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin delete item tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	ids, err := commentIDsForItemTx(ctx, tx, itemID)
	if err != nil {
		return err
	}
	if len(ids) > 0 {
		if _, err := tx.Exec(ctx, `DELETE FROM `+commentTrTable+` WHERE comment_id = ANY($1)`, ids); err != nil {
			return fmt.Errorf("delete comment translations for item %d: %w", itemID, err)
		}
	}
	if _, err := tx.Exec(ctx, `DELETE FROM `+commentsTable+` WHERE item_id = $1`, itemID); err != nil {
		return fmt.Errorf("delete comments for item %d: %w", itemID, err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM `+titlesTable+` WHERE item_id = $1`, itemID); err != nil {
		return fmt.Errorf("delete title for item %d: %w", itemID, err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM `+articlesTable+` WHERE item_id = $1`, itemID); err != nil {
		return fmt.Errorf("delete article for item %d: %w", itemID, err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM `+itemsTable+` WHERE item_id = $1`, itemID); err != nil {
		return fmt.Errorf("delete item %d: %w", itemID, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit delete item tx: %w", err)
	}
	s.titleLRU.Remove(itemID)
	s.articleLRU.Remove(itemID)
	return nil
}

func commentIDsForItemTx(ctx context.Context, tx pgx.Tx, itemID int) ([]int, error) {
	rows, err := tx.Query(ctx, `SELECT comment_id FROM `+commentsTable+` WHERE item_id = $1`, itemID)
	if err != nil {
		return nil, fmt.Errorf("select comment ids for item %d: %w", itemID, err)
	}
	defer rows.Close()
	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan comment id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// RecentItemsByPostedAt returns the n most recently posted items.
func (s *Store) RecentItemsByPostedAt(ctx context.Context, n int) ([]translation.Item, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT item_id, title_en, by_user, score, posted_at, url, descendants, fetched_at
		 FROM `+itemsTable+` ORDER BY posted_at DESC LIMIT $1`, n)
	if err != nil {
		return nil, fmt.Errorf("recent items: %w", err)
	}
	defer rows.Close()

	var out []translation.Item
	for rows.Next() {
		var it translation.Item
		if err := rows.Scan(&it.ItemID, &it.TitleEN, &it.By, &it.Score, &it.Time, &it.URL, &it.Descendants, &it.FetchedAt); err != nil {
			return nil, fmt.Errorf("scan recent item: %w", err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// CountItems reports the total row count for the retention sweeper.
func (s *Store) CountItems(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM `+itemsTable).Scan(&n); err != nil {
		return 0, fmt.Errorf("count items: %w", err)
	}
	return n, nil
}

// DeleteOldestItems deletes up to n items ordered by FetchedAt ascending,
// cascading to comments/translations, and returns the deleted IDs.
func (s *Store) DeleteOldestItems(ctx context.Context, n int) ([]int, error) {
	if n <= 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT item_id FROM `+itemsTable+` ORDER BY fetched_at ASC LIMIT $1`, n)
	if err != nil {
		return nil, fmt.Errorf("select oldest items: %w", err)
	}
	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan oldest item id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, id := range ids {
		if err := s.DeleteItem(ctx, id); err != nil {
			return ids, err
		}
	}
	return ids, nil
}

// GetTitle returns nil if no row exists, or if the stored prompt hash
// disagrees with currentHash (lazy invalidation on prompt change).
func (s *Store) GetTitle(ctx context.Context, itemID int, currentHash string) (*translation.TitleTranslation, error) {
	if cached, ok := s.titleLRU.Get(itemID); ok {
		if cached.PromptHash != currentHash {
			return nil, nil
		}
		row := cached
		return &row, nil
	}

	row := s.pool.QueryRow(ctx,
		`SELECT item_id, title_en, title_zh, prompt_hash, updated_at
		 FROM `+titlesTable+` WHERE item_id = $1`, itemID)

	var t translation.TitleTranslation
	if err := row.Scan(&t.ItemID, &t.TitleEN, &t.TitleZH, &t.PromptHash, &t.UpdatedAt); err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get title %d: %w", itemID, err)
	}
	s.titleLRU.Add(itemID, t)
	if t.PromptHash != currentHash {
		return nil, nil
	}
	return &t, nil
}

// UpsertTitle writes or replaces a single title translation row.
func (s *Store) UpsertTitle(ctx context.Context, row translation.TitleTranslation) error {
	row, err := s.upsertTitleRow(ctx, s.pool, row)
	if err != nil {
		return err
	}
	s.titleLRU.Add(row.ItemID, row)
	return nil
}

func (s *Store) upsertTitleRow(ctx context.Context, exec queryExecer, row translation.TitleTranslation) (translation.TitleTranslation, error) {
	if row.UpdatedAt == 0 {
		row.UpdatedAt = time.Now().Unix()
	}
	_, err := exec.Exec(ctx,
		`INSERT INTO `+titlesTable+` (item_id, title_en, title_zh, prompt_hash, updated_at)
		 VALUES ($1,$2,$3,$4,$5)
		 ON CONFLICT (item_id) DO UPDATE SET
		   title_en = EXCLUDED.title_en, title_zh = EXCLUDED.title_zh,
		   prompt_hash = EXCLUDED.prompt_hash, updated_at = EXCLUDED.updated_at`,
		row.ItemID, row.TitleEN, row.TitleZH, row.PromptHash, row.UpdatedAt,
	)
	if err != nil {
		return row, fmt.Errorf("upsert title %d: %w", row.ItemID, err)
	}
	return row, nil
}

// UpsertTitles writes a batch of title translations within one
// transaction; a single failure rolls the whole batch back. The LRU is
// only refreshed once the transaction has committed.
func (s *Store) UpsertTitles(ctx context.Context, rows []translation.TitleTranslation) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin upsert titles tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	written := make([]translation.TitleTranslation, 0, len(rows))
	for _, row := range rows {
		stamped, err := s.upsertTitleRow(ctx, tx, row)
		if err != nil {
			return err
		}
		written = append(written, stamped)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit upsert titles tx: %w", err)
	}
	for _, row := range written {
		s.titleLRU.Add(row.ItemID, row)
	}
	return nil
}

// DeleteTitlesNotMatching evicts rows whose prompt hash no longer matches,
// for explicit eager eviction rather than the lazy compare in GetTitle.
func (s *Store) DeleteTitlesNotMatching(ctx context.Context, currentHash string) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM `+titlesTable+` WHERE prompt_hash <> $1`, currentHash)
	if err != nil {
		return 0, fmt.Errorf("delete stale titles: %w", err)
	}
	s.titleLRU.Purge()
	return int(tag.RowsAffected()), nil
}

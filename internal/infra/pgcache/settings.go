package pgcache

import (
	"context"
	"fmt"
	"time"

	"hnzh/internal/domain/settings"
)

var _ settings.Store = (*Store)(nil)

// GetSetting returns ("", false, nil) if key has no stored value.
func (s *Store) GetSetting(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.pool.QueryRow(ctx, `SELECT value FROM `+settingsTable+` WHERE key = $1`, key).Scan(&value)
	if err != nil {
		if isNoRows(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("get setting %q: %w", key, err)
	}
	return value, true, nil
}

// SetSetting writes or replaces a setting value.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+settingsTable+` (key, value, updated_at) VALUES ($1,$2,$3)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
		key, value, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("set setting %q: %w", key, err)
	}
	return nil
}

// GetSchedulerStatus returns the zero-value row if it has never been set.
func (s *Store) GetSchedulerStatus(ctx context.Context) (settings.SchedulerStatus, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT last_run_at, stories_fetched, titles_translated, updated_at
		 FROM `+schedulerStatusTable+` WHERE id = 1`)

	var st settings.SchedulerStatus
	err := row.Scan(&st.LastRunAt, &st.StoriesFetched, &st.TitlesTranslated, &st.UpdatedAt)
	if err != nil {
		if isNoRows(err) {
			return settings.SchedulerStatus{}, nil
		}
		return settings.SchedulerStatus{}, fmt.Errorf("get scheduler status: %w", err)
	}
	return st, nil
}

// SetSchedulerStatus writes the singleton status row.
func (s *Store) SetSchedulerStatus(ctx context.Context, status settings.SchedulerStatus) error {
	if status.UpdatedAt == 0 {
		status.UpdatedAt = time.Now().Unix()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+schedulerStatusTable+` (id, last_run_at, stories_fetched, titles_translated, updated_at)
		 VALUES (1, $1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE SET
		   last_run_at = EXCLUDED.last_run_at, stories_fetched = EXCLUDED.stories_fetched,
		   titles_translated = EXCLUDED.titles_translated, updated_at = EXCLUDED.updated_at`,
		status.LastRunAt, status.StoriesFetched, status.TitlesTranslated, status.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("set scheduler status: %w", err)
	}
	return nil
}

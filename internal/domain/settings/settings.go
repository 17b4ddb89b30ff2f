// Package settings defines the key-value setting and scheduler status
// entities and the store port schedulers use for runtime-mutable
// configuration slots and last-run bookkeeping.
package settings

import "context"

// SchedulerStatus is the singleton last-run status row.
type SchedulerStatus struct {
	LastRunAt        *int64
	StoriesFetched   int
	TitlesTranslated int
	UpdatedAt        int64
}

// Store is the KVSetting + SchedulerStatus port.
type Store interface {
	// GetSetting returns ("", false, nil) if key has no stored value.
	GetSetting(ctx context.Context, key string) (string, bool, error)
	SetSetting(ctx context.Context, key, value string) error

	GetSchedulerStatus(ctx context.Context) (SchedulerStatus, error)
	SetSchedulerStatus(ctx context.Context, status SchedulerStatus) error
}

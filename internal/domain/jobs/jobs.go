// Package jobs defines the translation job entity and its store port.
package jobs

import "context"

// Status is a job's lifecycle state.
type Status string

const (
	StatusQueued  Status = "queued"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusError   Status = "error"
)

// Kind is the unit of work a job represents.
type Kind string

const (
	KindTitle   Kind = "title"
	KindArticle Kind = "article"
)

// Job is one durable unit of translation work.
type Job struct {
	JobID     string
	ItemID    int
	Kind      Kind
	Status    Status
	Progress  int
	CreatedAt int64
	UpdatedAt int64
}

// Store is CRUD over job rows. Transitions are the only writes.
type Store interface {
	Create(ctx context.Context, itemID int, kind Kind) (string, error)
	UpdateStatus(ctx context.Context, jobID string, status Status, progress *int) error
	FindByItemAndKind(ctx context.Context, itemID int, kind Kind) (*Job, error)
	FindByStatus(ctx context.Context, status Status) ([]Job, error)
	DeleteCompleted(ctx context.Context) error
	Delete(ctx context.Context, jobID string) error
}

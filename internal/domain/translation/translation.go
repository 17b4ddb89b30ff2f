// Package translation defines the translated-content entities and the
// Cache port that exclusively owns them. Concrete storage lives under
// internal/infra/pgcache.
package translation

import (
	"context"
	"fmt"
)

// ArticleStatus is the article translation lifecycle state.
type ArticleStatus string

const (
	ArticleQueued  ArticleStatus = "queued"
	ArticleRunning ArticleStatus = "running"
	ArticleDone    ArticleStatus = "done"
	ArticleError   ArticleStatus = "error"
	ArticleBlocked ArticleStatus = "blocked"
)

// Terminal reports whether the status never transitions again.
func (s ArticleStatus) Terminal() bool {
	return s == ArticleDone || s == ArticleBlocked
}

// Item is a ranked news post, persisted only once its lifecycle
// prerequisites (title, and article if it has a URL) have succeeded.
type Item struct {
	ItemID      int
	TitleEN     string
	By          string
	Score       int
	Time        int64
	URL         string
	Descendants int
	FetchedAt   int64
}

// TitleTranslation is a translated headline, versioned by prompt hash.
type TitleTranslation struct {
	ItemID     int
	TitleEN    string
	TitleZH    string
	PromptHash string
	UpdatedAt  int64
}

// ArticleTranslation is a translated article body with its lifecycle.
type ArticleTranslation struct {
	ItemID          int
	TitleSnapshot   string
	ContentMarkdown string
	OriginalURL     string
	Status          ArticleStatus
	ErrorMessage    string
	TLDR            string
	UpdatedAt       int64
}

// Validate enforces the status/body/error consistency a row must
// satisfy before it is persisted: done requires a non-empty body;
// blocked requires an empty body and a non-empty error message.
func (a ArticleTranslation) Validate() error {
	switch a.Status {
	case ArticleDone:
		if a.ContentMarkdown == "" {
			return fmt.Errorf("article %d: done status requires a non-empty body", a.ItemID)
		}
	case ArticleBlocked:
		if a.ContentMarkdown != "" {
			return fmt.Errorf("article %d: blocked status requires an empty body", a.ItemID)
		}
		if a.ErrorMessage == "" {
			return fmt.Errorf("article %d: blocked status requires an error message", a.ItemID)
		}
	}
	return nil
}

// Comment is one comment-tree node, stored flat with ParentID.
type Comment struct {
	CommentID int
	ItemID    int
	ParentID  int
	Author    string
	Text      string
	Time      int64
	Kids      []int
	Deleted   bool
	Dead      bool
	FetchedAt int64
}

// CommentTranslation is a translated comment body.
type CommentTranslation struct {
	CommentID int
	TextEN    string
	TextZH    string
	UpdatedAt int64
}

// Cache exclusively owns every translation row; schedulers read
// through it and write through it, never around it.
type Cache interface {
	// GetTitle returns nil if no row exists, or if the stored prompt hash
	// disagrees with currentHash (lazy invalidation on prompt change).
	GetTitle(ctx context.Context, itemID int, currentHash string) (*TitleTranslation, error)
	UpsertTitle(ctx context.Context, row TitleTranslation) error
	UpsertTitles(ctx context.Context, rows []TitleTranslation) error
	// DeleteTitlesNotMatching aggressively evicts stale rows, returning the
	// count deleted. The default invalidation path is the lazy hash compare
	// in GetTitle; this is for explicit eager eviction.
	DeleteTitlesNotMatching(ctx context.Context, currentHash string) (int, error)

	GetArticle(ctx context.Context, itemID int) (*ArticleTranslation, error)
	// SetArticle writes the full row atomically, updating UpdatedAt.
	SetArticle(ctx context.Context, row ArticleTranslation) error
	SetArticleStatus(ctx context.Context, itemID int, status ArticleStatus, errMsg string) error
	FindAllDoneArticles(ctx context.Context) ([]ArticleTranslation, error)
	DeleteArticle(ctx context.Context, itemID int) error
	DeleteAllArticles(ctx context.Context) error

	GetItem(ctx context.Context, itemID int) (*Item, error)
	UpsertItem(ctx context.Context, row Item) error
	DeleteItem(ctx context.Context, itemID int) error

	UpsertComments(ctx context.Context, rows []Comment) error
	FindCommentsByItem(ctx context.Context, itemID int) ([]Comment, error)
	HasComments(ctx context.Context, itemID int) (bool, error)
	// DeleteOldestComments deletes up to n comments ordered by FetchedAt
	// ascending, returning the deleted IDs.
	DeleteOldestComments(ctx context.Context, n int) ([]int, error)

	UpsertCommentTranslations(ctx context.Context, rows []CommentTranslation) error
	FindCommentTranslationsByIDs(ctx context.Context, ids []int) ([]CommentTranslation, error)
	DeleteCommentTranslationsByIDs(ctx context.Context, ids []int) error

	// CountItems and CountComments support the retention sweeper's
	// ceiling checks.
	CountItems(ctx context.Context) (int, error)
	CountComments(ctx context.Context) (int, error)
	// DeleteOldestItems deletes up to n items ordered by FetchedAt
	// ascending, cascading to their comments and article translation, and
	// returns the deleted IDs.
	DeleteOldestItems(ctx context.Context, n int) ([]int, error)

	// RecentItemsByPostedAt returns the n most recently posted items, for
	// the comment refresh scheduler.
	RecentItemsByPostedAt(ctx context.Context, n int) ([]Item, error)
}

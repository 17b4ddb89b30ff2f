// Package feed defines the upstream ranked-feed types and the
// UpstreamClient port. Concrete clients live under
// internal/infra/feedhn.
package feed

import "context"

// ItemDetail is a story-shaped item from the upstream feed.
type ItemDetail struct {
	ID          int
	Type        string
	Title       string
	By          string
	Score       int
	Time        int64
	Descendants int
	URL         string
	Kids        []int
}

// HasURL reports whether the item links out to an article.
func (d ItemDetail) HasURL() bool { return d.URL != "" }

// CommentDetail is a comment-shaped item from the upstream feed.
type CommentDetail struct {
	ID      int
	Type    string
	By      string
	Text    string
	Time    int64
	Parent  int
	Kids    []int
	Deleted bool
	Dead    bool
}

// CommentRecord is one flattened node produced by walking a comment
// tree; ItemID is the root story, ParentID is either ItemID (top-level)
// or another comment's ID.
type CommentRecord struct {
	CommentID int
	ItemID    int
	ParentID  int
	Author    string
	Text      string
	Time      int64
	Kids      []int
	Deleted   bool
	Dead      bool
}

// HasTranslatableText reports whether a comment qualifies for
// translation: non-empty text, not deleted, not dead.
func (c CommentRecord) HasTranslatableText() bool {
	return c.Text != "" && !c.Deleted && !c.Dead
}

// UpstreamClient shields the pipeline from upstream
// flakiness. Every method returns "value or null"; callers never see the
// underlying transient/permanent distinction.
type UpstreamClient interface {
	// FetchTopIDs returns up to ~500 ranked IDs.
	FetchTopIDs(ctx context.Context) ([]int, error)

	// FetchItem returns nil for non-story types (comments included),
	// unresolvable items, or exhausted retries.
	FetchItem(ctx context.Context, id int) (*ItemDetail, error)

	// FetchItemsBatch fetches ids in parallel, preserving input order;
	// items absent from the result (non-story, failed) are dropped.
	FetchItemsBatch(ctx context.Context, ids []int) ([]ItemDetail, error)

	// FetchComment returns nil if id is not a comment.
	FetchComment(ctx context.Context, id int) (*CommentDetail, error)

	// FetchCommentTree recursively walks each child list rooted at ids,
	// returning a flat list. Failures on individual comments are skipped,
	// never aborting the whole walk.
	FetchCommentTree(ctx context.Context, ids []int, itemID int) ([]CommentRecord, error)
}

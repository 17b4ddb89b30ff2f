// Package content defines the article body fetcher port.
package content

import "context"

// Outcome is the tri-state result of fetching an article body. Exactly one
// of Markdown (ok), Blocked, or Err is populated.
type Outcome struct {
	Markdown string
	Blocked  bool
	Err      error
}

// OK reports a successful fetch with non-empty markdown.
func (o Outcome) OK() bool { return !o.Blocked && o.Err == nil }

// MinBodyLength is the threshold below which a body is "content empty".
const MinBodyLength = 50

// ArticleFetcher retrieves article bodies from the external reader
// service. Status 451 is a terminal Blocked outcome; content shorter than
// MinBodyLength is Err("content empty").
type ArticleFetcher interface {
	FetchArticleBody(ctx context.Context, url string) Outcome
}

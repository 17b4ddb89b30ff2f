// Package feedhn is the upstream client for the Hacker-News-shaped feed
// API: plain net/http polling wrapped in the shared retry and
// circuit-breaker layers, so the rest of the pipeline only ever sees
// "value or null".
package feedhn

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"sync"
	"time"

	"hnzh/internal/domain/feed"
	"hnzh/internal/httpclient"
	"hnzh/internal/logging"
	"hnzh/internal/xerrors"
)

// Config configures the upstream client.
type Config struct {
	BaseURL        string
	RequestTimeout time.Duration
	Retry          xerrors.RetryConfig
}

// Client implements feed.UpstreamClient.
type Client struct {
	cfg    Config
	http   *http.Client
	logger logging.Logger
}

var _ feed.UpstreamClient = (*Client)(nil)

// New creates an upstream client. logger may be nil.
func New(cfg Config, logger logging.Logger) *Client {
	logger = logging.OrNop(logger)
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.Retry == (xerrors.RetryConfig{}) {
		cfg.Retry = xerrors.DefaultRetryConfig()
	}
	return &Client{
		cfg:    cfg,
		http:   httpclient.NewWithCircuitBreaker(cfg.RequestTimeout, logger, "upstream-feed"),
		logger: logger,
	}
}

type rawItem struct {
	ID          int    `json:"id"`
	Type        string `json:"type"`
	Title       string `json:"title"`
	By          string `json:"by"`
	Score       int    `json:"score"`
	Time        int64  `json:"time"`
	Descendants int    `json:"descendants"`
	URL         string `json:"url"`
	Kids        []int  `json:"kids"`
	Text        string `json:"text"`
	Parent      int    `json:"parent"`
	Deleted     bool   `json:"deleted"`
	Dead        bool   `json:"dead"`
}

// FetchTopIDs returns the ranked ID list from /topstories.
func (c *Client) FetchTopIDs(ctx context.Context) ([]int, error) {
	var ids []int
	_, err := xerrors.RetryWithResult(ctx, c.cfg.Retry, func(ctx context.Context) (struct{}, error) {
		u, err := url.JoinPath(c.cfg.BaseURL, "topstories")
		if err != nil {
			return struct{}{}, xerrors.NewPermanentError(err, "bad base url")
		}
		body, err := c.getJSON(ctx, u)
		if err != nil {
			return struct{}{}, err
		}
		ids = nil
		if err := json.Unmarshal(body, &ids); err != nil {
			return struct{}{}, xerrors.NewPermanentError(err, "malformed topstories response")
		}
		return struct{}{}, nil
	}, c.logger)
	if err != nil {
		return nil, nil
	}
	return ids, nil
}

// FetchItem returns nil for non-story items (comments included), stories
// without a title, or exhausted retries.
func (c *Client) FetchItem(ctx context.Context, id int) (*feed.ItemDetail, error) {
	raw, err := c.fetchRawItem(ctx, id)
	if err != nil || raw == nil {
		return nil, nil
	}
	if raw.Type != "story" || raw.Title == "" {
		return nil, nil
	}
	return rawToItemDetail(raw), nil
}

// FetchItemsBatch fetches ids in parallel, preserving input order; items
// absent from the result (non-story, failed, unresolvable) are dropped.
func (c *Client) FetchItemsBatch(ctx context.Context, ids []int) ([]feed.ItemDetail, error) {
	results := make([]*feed.ItemDetail, len(ids))
	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func(i, id int) {
			defer wg.Done()
			item, _ := c.FetchItem(ctx, id)
			results[i] = item
		}(i, id)
	}
	wg.Wait()

	out := make([]feed.ItemDetail, 0, len(ids))
	for _, item := range results {
		if item != nil {
			out = append(out, *item)
		}
	}
	return out, nil
}

// FetchComment returns nil if id is not a comment.
func (c *Client) FetchComment(ctx context.Context, id int) (*feed.CommentDetail, error) {
	raw, err := c.fetchRawItem(ctx, id)
	if err != nil || raw == nil {
		return nil, nil
	}
	if raw.Type != "comment" {
		return nil, nil
	}
	return &feed.CommentDetail{
		ID:      raw.ID,
		Type:    raw.Type,
		By:      raw.By,
		Text:    raw.Text,
		Time:    raw.Time,
		Parent:  raw.Parent,
		Kids:    raw.Kids,
		Deleted: raw.Deleted,
		Dead:    raw.Dead,
	}, nil
}

// FetchCommentTree recursively walks each child list rooted at ids.
// Failures on individual comments are logged and skipped, never aborting
// the whole walk.
func (c *Client) FetchCommentTree(ctx context.Context, ids []int, itemID int) ([]feed.CommentRecord, error) {
	var mu sync.Mutex
	var out []feed.CommentRecord

	var walk func(ids []int, parentID int)
	walk = func(ids []int, parentID int) {
		var wg sync.WaitGroup
		for _, id := range ids {
			wg.Add(1)
			go func(id int) {
				defer wg.Done()
				detail, err := c.FetchComment(ctx, id)
				if err != nil {
					c.logger.Warn("feedhn: failed to fetch comment %d: %v", id, err)
					return
				}
				if detail == nil {
					return
				}
				rec := feed.CommentRecord{
					CommentID: detail.ID,
					ItemID:    itemID,
					ParentID:  parentID,
					Author:    detail.By,
					Text:      detail.Text,
					Time:      detail.Time,
					Kids:      detail.Kids,
					Deleted:   detail.Deleted,
					Dead:      detail.Dead,
				}
				mu.Lock()
				out = append(out, rec)
				mu.Unlock()

				if len(detail.Kids) > 0 {
					walk(detail.Kids, detail.ID)
				}
			}(id)
		}
		wg.Wait()
	}
	walk(ids, itemID)

	// Stable output ordering keeps downstream tree traversal
	// deterministic for a fixed input tree.
	sort.Slice(out, func(i, j int) bool {
		if out[i].ParentID != out[j].ParentID {
			return out[i].ParentID < out[j].ParentID
		}
		return out[i].Time < out[j].Time
	})
	return out, nil
}

func (c *Client) fetchRawItem(ctx context.Context, id int) (*rawItem, error) {
	u, err := url.JoinPath(c.cfg.BaseURL, "item", fmt.Sprint(id))
	if err != nil {
		return nil, nil
	}
	var item *rawItem
	_, err = xerrors.RetryWithResult(ctx, c.cfg.Retry, func(ctx context.Context) (struct{}, error) {
		body, err := c.getJSON(ctx, u)
		if err != nil {
			return struct{}{}, err
		}
		item = &rawItem{}
		if err := json.Unmarshal(body, item); err != nil {
			return struct{}{}, xerrors.NewPermanentError(err, "malformed item response")
		}
		return struct{}{}, nil
	}, c.logger)
	if err != nil {
		return nil, nil
	}
	return item, nil
}

// getJSON performs a GET, classifying the HTTP outcome: transient
// network failures and 5xx retry, 4xx is permanent.
func (c *Client) getJSON(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, xerrors.NewPermanentError(err, "bad request")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, xerrors.NewTransientError(err, "upstream request failed")
	}
	defer resp.Body.Close()

	body, err := httpclient.ReadAllWithLimit(resp.Body, 8<<20)
	if err != nil {
		return nil, xerrors.NewTransientError(err, "upstream response read failed")
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return body, nil
	case resp.StatusCode >= 500:
		return nil, xerrors.NewTransientError(fmt.Errorf("http %d", resp.StatusCode), "upstream server error")
	default:
		return nil, xerrors.NewPermanentError(fmt.Errorf("http %d", resp.StatusCode), "upstream client error")
	}
}

func rawToItemDetail(raw *rawItem) *feed.ItemDetail {
	return &feed.ItemDetail{
		ID:          raw.ID,
		Type:        raw.Type,
		Title:       raw.Title,
		By:          raw.By,
		Score:       raw.Score,
		Time:        raw.Time,
		Descendants: raw.Descendants,
		URL:         raw.URL,
		Kids:        raw.Kids,
	}
}

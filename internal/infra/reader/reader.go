// Package reader fetches article bodies as markdown from the external
// reader service. It uses goquery defensively: some reader backends leak
// wrapper markup (stray <div>/<script> chrome) around the markdown body,
// so before applying the length/empty check the body is run through
// goquery to strip residual HTML tags.
package reader

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"hnzh/internal/domain/content"
	"hnzh/internal/httpclient"
	"hnzh/internal/logging"
	"hnzh/internal/xerrors"
)

// Config configures the content fetcher.
type Config struct {
	ReaderBase     string
	RequestTimeout time.Duration
	WithImages     bool
	Retry          xerrors.RetryConfig
}

// Fetcher implements content.ArticleFetcher.
type Fetcher struct {
	cfg    Config
	http   *http.Client
	logger logging.Logger
}

var _ content.ArticleFetcher = (*Fetcher)(nil)

// New creates a content fetcher.
func New(cfg Config, logger logging.Logger) *Fetcher {
	logger = logging.OrNop(logger)
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.Retry == (xerrors.RetryConfig{}) {
		cfg.Retry = xerrors.DefaultRetryConfig()
	}
	return &Fetcher{
		cfg:    cfg,
		http:   httpclient.NewWithCircuitBreaker(cfg.RequestTimeout, logger, "reader-service"),
		logger: logger,
	}
}

// FetchArticleBody classifies the HTTP outcome into ok/blocked/err. 451
// is terminal; a body shorter than content.MinBodyLength after HTML
// stripping is "content empty".
func (f *Fetcher) FetchArticleBody(ctx context.Context, articleURL string) content.Outcome {
	target := strings.TrimRight(f.cfg.ReaderBase, "/") + "/" + strings.TrimLeft(articleURL, "/")

	result, err := xerrors.RetryWithResult(ctx, f.cfg.Retry, func(ctx context.Context) (fetchResult, error) {
		return f.doFetch(ctx, target)
	}, f.logger)
	if err != nil {
		return content.Outcome{Err: err}
	}
	if result.blocked {
		return content.Outcome{Blocked: true}
	}

	cleaned := stripResidualHTML(result.body)
	if len(cleaned) < content.MinBodyLength {
		return content.Outcome{Err: fmt.Errorf("content empty")}
	}
	return content.Outcome{Markdown: cleaned}
}

type fetchResult struct {
	body    string
	blocked bool
}

func (f *Fetcher) doFetch(ctx context.Context, target string) (fetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fetchResult{}, xerrors.NewPermanentError(err, "bad reader request")
	}
	if f.cfg.WithImages {
		req.Header.Set("X-With-Images-Summary", "true")
	}

	resp, err := f.http.Do(req)
	if err != nil {
		return fetchResult{}, xerrors.NewTransientError(err, "reader request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnavailableForLegalReasons {
		return fetchResult{blocked: true}, nil
	}

	raw, err := httpclient.ReadAllWithLimit(resp.Body, 16<<20)
	if err != nil {
		return fetchResult{}, xerrors.NewTransientError(err, "reader response read failed")
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return fetchResult{body: string(raw)}, nil
	case resp.StatusCode >= 500:
		return fetchResult{}, xerrors.NewTransientError(fmt.Errorf("http %d", resp.StatusCode), "reader server error")
	default:
		return fetchResult{}, xerrors.NewPermanentError(fmt.Errorf("http %d", resp.StatusCode), "reader client error")
	}
}

// stripResidualHTML removes wrapper tags a flaky reader backend might
// leave around otherwise-markdown content. Plain markdown with no tags
// passes through the goquery parse unchanged.
func stripResidualHTML(body string) string {
	if !strings.Contains(body, "<") {
		return strings.TrimSpace(body)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return strings.TrimSpace(body)
	}
	doc.Find("script, style, nav, footer, aside").Remove()
	text := doc.Text()
	if strings.TrimSpace(text) == "" {
		return strings.TrimSpace(body)
	}
	return strings.TrimSpace(text)
}

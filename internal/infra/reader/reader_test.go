package reader

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hnzh/internal/xerrors"
)

func fastRetry() xerrors.RetryConfig {
	return xerrors.RetryConfig{MaxAttempts: 1, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func newTestFetcher(t *testing.T, handler http.HandlerFunc) *Fetcher {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return New(Config{ReaderBase: server.URL, Retry: fastRetry()}, nil)
}

func TestFetchArticleBodyReturnsMarkdown(t *testing.T) {
	body := "# A heading\n\n" + strings.Repeat("word ", 40)
	f := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, body)
	})

	out := f.FetchArticleBody(context.Background(), "https://example.com/post")
	require.True(t, out.OK())
	assert.Contains(t, out.Markdown, "# A heading")
}

func TestFetchArticleBody451IsBlocked(t *testing.T) {
	f := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnavailableForLegalReasons)
	})

	out := f.FetchArticleBody(context.Background(), "https://blocked.example/")
	assert.True(t, out.Blocked)
	assert.NoError(t, out.Err)
	assert.Empty(t, out.Markdown)
}

func TestFetchArticleBodyLengthBoundary(t *testing.T) {
	cases := []struct {
		name   string
		length int
		empty  bool
	}{
		{"one short of the floor", 49, true},
		{"exactly the floor", 50, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			body := strings.Repeat("x", tc.length)
			f := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, body)
			})

			out := f.FetchArticleBody(context.Background(), "https://example.com/short")
			if tc.empty {
				require.Error(t, out.Err)
				assert.Contains(t, out.Err.Error(), "content empty")
			} else {
				require.True(t, out.OK())
				assert.Len(t, out.Markdown, tc.length)
			}
		})
	}
}

func TestFetchArticleBodySendsImageHeaderWhenConfigured(t *testing.T) {
	var gotHeader string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("X-With-Images-Summary")
		fmt.Fprint(w, strings.Repeat("y", 100))
	}))
	defer server.Close()

	f := New(Config{ReaderBase: server.URL, WithImages: true, Retry: fastRetry()}, nil)
	out := f.FetchArticleBody(context.Background(), "https://example.com/a")
	require.True(t, out.OK())
	assert.Equal(t, "true", gotHeader)
}

func TestStripResidualHTML(t *testing.T) {
	wrapped := "<div><script>alert(1)</script><p>" + strings.Repeat("clean ", 20) + "</p></div>"
	got := stripResidualHTML(wrapped)
	assert.NotContains(t, got, "alert")
	assert.Contains(t, got, "clean")

	plain := "plain markdown, no tags at all"
	assert.Equal(t, plain, stripResidualHTML(plain))
}

package llmclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hnzh/internal/domain/llm"
	"hnzh/internal/xerrors"
)

// llmStub is a chat-completions endpoint returning a canned content
// string, recording each request body it sees.
type llmStub struct {
	mu       sync.Mutex
	content  string
	status   int
	requests []chatRequest
	auths    []string
}

func (s *llmStub) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		s.mu.Lock()
		s.requests = append(s.requests, req)
		s.auths = append(s.auths, r.Header.Get("Authorization"))
		status, content := s.status, s.content
		s.mu.Unlock()

		if status != 0 && status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": content}},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	})
}

func (s *llmStub) requestCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func (s *llmStub) lastRequest() chatRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[len(s.requests)-1]
}

func (s *llmStub) lastAuth() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.auths[len(s.auths)-1]
}

func newStubClient(t *testing.T, stub *llmStub, thinking bool) *Client {
	t.Helper()
	server := httptest.NewServer(stub.handler())
	t.Cleanup(server.Close)
	c := New([]Provider{{
		Name:          "stub",
		BaseURL:       server.URL,
		Model:         "test-model",
		APIKey:        "secret-key",
		ThinkingModel: thinking,
	}}, "stub", nil)
	c.retry = xerrors.RetryConfig{MaxAttempts: 1, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
	return c
}

func TestTranslateTitlesParsesEnvelope(t *testing.T) {
	stub := &llmStub{content: `{"translations":[{"id":1,"translatedTitle":"标题一"},{"id":2,"translatedTitle":"标题二"}]}`}
	c := newStubClient(t, stub, false)

	out, err := c.TranslateTitles(context.Background(), []llm.TitleInput{
		{ID: 1, Title: "Title one"},
		{ID: 2, Title: "Title two"},
	}, "translate these")
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "标题一", out[0].TranslatedTitle)

	req := stub.lastRequest()
	assert.Equal(t, "test-model", req.Model)
	assert.NotNil(t, req.ResponseFormat)
	assert.Equal(t, "json_object", req.ResponseFormat.Type)
	assert.Equal(t, "Bearer secret-key", stub.lastAuth())

	require.Len(t, req.Messages, 2)
	var sent []titleInputEntry
	require.NoError(t, json.Unmarshal([]byte(req.Messages[1].Content), &sent))
	require.Len(t, sent, 2, "the user message is the encoded array of inputs")
	assert.Equal(t, "Title one", sent[0].Title)
}

func TestTranslateTitlesAcceptsFencedBareArray(t *testing.T) {
	stub := &llmStub{content: "```json\n[{\"id\":5,\"translatedTitle\":\"第五\"}]\n```"}
	c := newStubClient(t, stub, false)

	out, err := c.TranslateTitles(context.Background(), []llm.TitleInput{{ID: 5, Title: "Fifth"}}, "p")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, 5, out[0].ID)
	assert.Equal(t, "第五", out[0].TranslatedTitle)
}

func TestTranslateTitlesOmittedItemsStayMissing(t *testing.T) {
	stub := &llmStub{content: `{"translations":[{"id":1,"translatedTitle":"只有一个"}]}`}
	c := newStubClient(t, stub, false)

	out, err := c.TranslateTitles(context.Background(), []llm.TitleInput{
		{ID: 1, Title: "one"},
		{ID: 2, Title: "two"},
	}, "p")
	require.NoError(t, err)
	require.Len(t, out, 1, "the missing item is never fabricated")
	assert.Equal(t, 1, out[0].ID)
}

func TestTranslateTitlesEmptyInputMakesNoCall(t *testing.T) {
	stub := &llmStub{}
	c := newStubClient(t, stub, false)

	out, err := c.TranslateTitles(context.Background(), nil, "p")
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Equal(t, 0, stub.requestCount())
}

func TestTranslateTitlesClientErrorYieldsEmptyWithoutRetry(t *testing.T) {
	stub := &llmStub{status: http.StatusBadRequest}
	c := newStubClient(t, stub, false)

	out, err := c.TranslateTitles(context.Background(), []llm.TitleInput{{ID: 1, Title: "x"}}, "p")
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Equal(t, 1, stub.requestCount(), "a 4xx is permanent and must not be retried")
}

func TestTranslateArticleStripsThinkingPrefix(t *testing.T) {
	stub := &llmStub{content: "<think>considering the layout...</think>\n翻译后的正文"}
	c := newStubClient(t, stub, true)

	got, err := c.TranslateArticle(context.Background(), "body", "prompt")
	require.NoError(t, err)
	assert.Equal(t, "翻译后的正文", got)
}

func TestGenerateTLDRUsesProvidedPrompt(t *testing.T) {
	stub := &llmStub{content: "简短摘要。"}
	c := newStubClient(t, stub, false)

	got, err := c.GenerateTLDR(context.Background(), "a long article body", "summarize in Chinese")
	require.NoError(t, err)
	assert.Equal(t, "简短摘要。", got)

	req := stub.lastRequest()
	require.NotEmpty(t, req.Messages)
	assert.Equal(t, "system", req.Messages[0].Role)
	assert.Equal(t, "summarize in Chinese", req.Messages[0].Content)
	assert.Nil(t, req.ResponseFormat, "summaries are free-form, not JSON mode")
}

func TestTranslateCommentsParsesEnvelope(t *testing.T) {
	stub := &llmStub{content: `{"translations":[{"id":9,"translatedText":"<i>你好</i>"}]}`}
	c := newStubClient(t, stub, false)

	out, err := c.TranslateComments(context.Background(), []llm.CommentInput{{ID: 9, Text: "<i>hello</i>"}}, "p")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "<i>你好</i>", out[0].TranslatedText)
}

func TestSetCurrentRejectsUnknownProvider(t *testing.T) {
	c := New([]Provider{{Name: "a"}}, "a", nil)
	require.Error(t, c.SetCurrent("nope"))
	require.NoError(t, c.SetCurrent("a"))
}

func TestStripCodeFence(t *testing.T) {
	cases := map[string]string{
		"```json\n{\"a\":1}\n```": `{"a":1}`,
		"```\nplain\n```":         "plain",
		"no fences":               "no fences",
	}
	for in, want := range cases {
		assert.Equal(t, want, stripCodeFence(in), "input %q", in)
	}
}

func TestStripThinking(t *testing.T) {
	assert.Equal(t, "answer", stripThinking("<think>hmm</think>answer"))
	assert.Equal(t, "no prefix", stripThinking("no prefix"))
	unclosed := "<think>never closed"
	assert.Equal(t, unclosed, stripThinking(unclosed))
}

func TestCallLLMWithNoProviderReturnsNil(t *testing.T) {
	c := New(nil, "missing", nil)
	out, err := c.TranslateArticle(context.Background(), "body", "p")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestServerErrorExhaustsRetriesThenYieldsEmpty(t *testing.T) {
	stub := &llmStub{status: http.StatusInternalServerError}
	c := newStubClient(t, stub, false)

	out, err := c.TranslateArticle(context.Background(), "body", "p")
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Equal(t, 2, stub.requestCount(), fmt.Sprintf("one attempt plus one retry, got %d", stub.requestCount()))
}

// Package llm defines the chat-completion message shapes and the
// Translator port every scheduler depends on. Concrete providers live
// under internal/infra/llmclient.
package llm

import "context"

// Message is one chat-completion turn, serialized directly into the
// provider request body.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// TitleInput is one item submitted to TranslateTitles.
type TitleInput struct {
	ID    int
	Title string
}

// TitleOutput is one translated title. Items the model omits from its
// response simply do not appear here; outputs are never fabricated.
type TitleOutput struct {
	ID              int
	TranslatedTitle string
}

// CommentInput is one comment submitted to TranslateComments.
type CommentInput struct {
	ID   int
	Text string
}

// CommentOutput is one translated comment.
type CommentOutput struct {
	ID             int
	TranslatedText string
}

// Translator is the translation port. All four operations are best-effort and
// partial: they never raise for model-side failures, they return however
// much the model actually produced, and an empty result is a valid
// outcome that the caller retries on a future cycle.
type Translator interface {
	// TranslateTitles translates a batch of titles using prompt as the
	// system instruction (plus the JSON contract wrapper).
	TranslateTitles(ctx context.Context, items []TitleInput, prompt string) ([]TitleOutput, error)

	// TranslateArticle produces a free-form translated article body,
	// extracting the main content and discarding page chrome.
	TranslateArticle(ctx context.Context, markdown, prompt string) (string, error)

	// GenerateTLDR produces a 2-4 sentence, <=200 char Chinese summary
	// using prompt as the system instruction.
	GenerateTLDR(ctx context.Context, markdown, prompt string) (string, error)

	// TranslateComments translates a batch of comments, preserving inline
	// HTML tags verbatim.
	TranslateComments(ctx context.Context, items []CommentInput, prompt string) ([]CommentOutput, error)
}

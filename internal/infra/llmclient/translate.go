package llmclient

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"hnzh/internal/domain/llm"
)

// titleInputEntry/titleResultEntry mirror the JSON contract the system
// prompt asks the model to honor: the user message is the encoded array
// of inputs, the response carries translatedTitle per id. The model is
// free to omit entries it cannot translate; the parser never fabricates
// a missing one.
type titleInputEntry struct {
	ID    int    `json:"id"`
	Title string `json:"title"`
}

type titleResultEntry struct {
	ID              int    `json:"id"`
	TranslatedTitle string `json:"translatedTitle"`
}

type titlesEnvelope struct {
	Translations []titleResultEntry `json:"translations"`
}

// TranslateTitles batches items into one JSON-mode call.
func (c *Client) TranslateTitles(ctx context.Context, items []llm.TitleInput, prompt string) ([]llm.TitleOutput, error) {
	if len(items) == 0 {
		return nil, nil
	}

	payload := make([]titleInputEntry, 0, len(items))
	for _, it := range items {
		payload = append(payload, titleInputEntry{ID: it.ID, Title: it.Title})
	}
	userContent, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal title batch: %w", err)
	}

	messages := []llm.Message{
		{Role: "system", Content: prompt + "\n\nRespond with JSON: {\"translations\":[{\"id\":<int>,\"translatedTitle\":<string>}]}. Omit any item you cannot translate; never invent one."},
		{Role: "user", Content: string(userContent)},
	}

	raw := c.callLLM(ctx, messages, true)
	if raw == nil {
		return nil, nil
	}

	var env titlesEnvelope
	if err := json.Unmarshal([]byte(stripCodeFence(*raw)), &env); err != nil {
		// Some backends ignore response_format and return a bare array.
		var bare []titleResultEntry
		if err2 := json.Unmarshal([]byte(stripCodeFence(*raw)), &bare); err2 != nil {
			c.logger.Warn("llmclient: malformed title translation response: %v", err)
			return nil, nil
		}
		env.Translations = bare
	}

	out := make([]llm.TitleOutput, 0, len(env.Translations))
	for _, t := range env.Translations {
		if strings.TrimSpace(t.TranslatedTitle) == "" {
			continue
		}
		out = append(out, llm.TitleOutput{ID: t.ID, TranslatedTitle: t.TranslatedTitle})
	}
	return out, nil
}

// TranslateArticle asks for a free-form Markdown translation.
func (c *Client) TranslateArticle(ctx context.Context, markdown, prompt string) (string, error) {
	messages := []llm.Message{
		{Role: "system", Content: prompt},
		{Role: "user", Content: markdown},
	}
	raw := c.callLLM(ctx, messages, false)
	if raw == nil {
		return "", nil
	}
	return strings.TrimSpace(stripCodeFence(*raw)), nil
}

// GenerateTLDR asks for a short free-form Chinese summary.
func (c *Client) GenerateTLDR(ctx context.Context, markdown, prompt string) (string, error) {
	messages := []llm.Message{
		{Role: "system", Content: prompt},
		{Role: "user", Content: markdown},
	}
	raw := c.callLLM(ctx, messages, false)
	if raw == nil {
		return "", nil
	}
	return strings.TrimSpace(stripCodeFence(*raw)), nil
}

type commentInputEntry struct {
	ID   int    `json:"id"`
	Text string `json:"text"`
}

type commentResultEntry struct {
	ID             int    `json:"id"`
	TranslatedText string `json:"translatedText"`
}

type commentsEnvelope struct {
	Translations []commentResultEntry `json:"translations"`
}

// TranslateComments batches comments into one JSON-mode call, preserving
// inline HTML tags verbatim.
func (c *Client) TranslateComments(ctx context.Context, items []llm.CommentInput, prompt string) ([]llm.CommentOutput, error) {
	if len(items) == 0 {
		return nil, nil
	}

	payload := make([]commentInputEntry, 0, len(items))
	for _, it := range items {
		payload = append(payload, commentInputEntry{ID: it.ID, Text: it.Text})
	}
	userContent, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal comment batch: %w", err)
	}

	messages := []llm.Message{
		{Role: "system", Content: prompt + "\n\nRespond with JSON: {\"translations\":[{\"id\":<int>,\"translatedText\":<string>}]}. Omit any item you cannot translate; never invent one."},
		{Role: "user", Content: string(userContent)},
	}

	raw := c.callLLM(ctx, messages, true)
	if raw == nil {
		return nil, nil
	}

	var env commentsEnvelope
	if err := json.Unmarshal([]byte(stripCodeFence(*raw)), &env); err != nil {
		var bare []commentResultEntry
		if err2 := json.Unmarshal([]byte(stripCodeFence(*raw)), &bare); err2 != nil {
			c.logger.Warn("llmclient: malformed comment translation response: %v", err)
			return nil, nil
		}
		env.Translations = bare
	}

	out := make([]llm.CommentOutput, 0, len(env.Translations))
	for _, t := range env.Translations {
		if strings.TrimSpace(t.TranslatedText) == "" {
			continue
		}
		out = append(out, llm.CommentOutput{ID: t.ID, TranslatedText: t.TranslatedText})
	}
	return out, nil
}

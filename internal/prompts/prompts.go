// Package prompts holds the three named translation prompts with
// baked-in defaults, and the stable hash that versions the title
// translation cache.
package prompts

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
)

// Type names one of the three prompts the registry stores.
type Type string

const (
	Article Type = "article"
	TLDR    Type = "tldr"
	Comment Type = "comment"
)

const defaultArticlePrompt = `You are translating a Hacker News article into Chinese. Extract the ` +
	`main article body from the noisy scraped page, discarding navigation, ads, footers, sidebars, and comment ` +
	`widgets. Emit only the translated article in Markdown: no preface, no code fence wrapping. Preserve links, ` +
	`headings, emphasis, and images.`

const defaultTLDRPrompt = `Summarize the following article in 2-4 sentences of Chinese prose, ` +
	`no more than 200 characters total. Be concrete; do not pad with generic framing.`

const defaultCommentPrompt = `Translate the following Hacker News comments into Chinese, preserving any ` +
	`inline HTML tags verbatim.`

func defaultFor(t Type) string {
	switch t {
	case TLDR:
		return defaultTLDRPrompt
	case Comment:
		return defaultCommentPrompt
	default:
		return defaultArticlePrompt
	}
}

// Registry stores the three current prompts in memory, seeded from
// defaults and mutable via UpdatePrompts. It does not persist itself;
// callers that want durability load/save through LoadFromSettings and
// SaveToSettings (persist.go) against the KVSetting-backed store.
type Registry struct {
	mu      sync.RWMutex
	current map[Type]string
}

// NewRegistry creates a registry seeded with the baked-in defaults.
func NewRegistry() *Registry {
	return &Registry{
		current: map[Type]string{
			Article: defaultArticlePrompt,
			TLDR:    defaultTLDRPrompt,
			Comment: defaultCommentPrompt,
		},
	}
}

// GetPrompt returns the current prompt text for t.
func (r *Registry) GetPrompt(t Type) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if v, ok := r.current[t]; ok {
		return v
	}
	return defaultFor(t)
}

// GetDefault returns the baked-in default for t, ignoring any override.
func (r *Registry) GetDefault(t Type) string {
	return defaultFor(t)
}

// UpdatePrompts merges partial updates into the current set. It never
// touches stored translation rows: the prompt hash simply changes, which
// renders previously-translated titles stale for serving.
func (r *Registry) UpdatePrompts(partial map[Type]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for t, v := range partial {
		if strings.TrimSpace(v) == "" {
			continue
		}
		r.current[t] = v
	}
}

// Hash returns the current prompt hash for t.
func (r *Registry) Hash(t Type) string {
	return PromptHash(r.GetPrompt(t))
}

// PromptHash computes hex(sha256(trim(s))), stable under trailing
// whitespace changes.
func PromptHash(s string) string {
	trimmed := strings.TrimSpace(s)
	sum := sha256.Sum256([]byte(trimmed))
	return hex.EncodeToString(sum[:])
}

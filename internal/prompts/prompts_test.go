package prompts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistrySeedsDefaults(t *testing.T) {
	r := NewRegistry()

	assert.Equal(t, defaultArticlePrompt, r.GetPrompt(Article))
	assert.Equal(t, defaultTLDRPrompt, r.GetPrompt(TLDR))
	assert.Equal(t, defaultCommentPrompt, r.GetPrompt(Comment))
}

func TestUpdatePromptsMergesPartial(t *testing.T) {
	r := NewRegistry()

	r.UpdatePrompts(map[Type]string{Article: "custom article prompt"})

	assert.Equal(t, "custom article prompt", r.GetPrompt(Article))
	assert.Equal(t, defaultTLDRPrompt, r.GetPrompt(TLDR))
}

func TestUpdatePromptsIgnoresBlank(t *testing.T) {
	r := NewRegistry()

	r.UpdatePrompts(map[Type]string{Article: "   "})

	assert.Equal(t, defaultArticlePrompt, r.GetPrompt(Article))
}

func TestPromptHashStableUnderTrailingWhitespace(t *testing.T) {
	h1 := PromptHash("translate this")
	h2 := PromptHash("translate this   \n")

	assert.Equal(t, h1, h2)
}

func TestPromptHashChangesWithPromptChange(t *testing.T) {
	r := NewRegistry()
	before := r.Hash(Article)

	r.UpdatePrompts(map[Type]string{Article: "a different prompt"})
	after := r.Hash(Article)

	require.NotEqual(t, before, after)
}

func TestGetDefaultIgnoresOverride(t *testing.T) {
	r := NewRegistry()
	r.UpdatePrompts(map[Type]string{Comment: "overridden"})

	assert.Equal(t, defaultCommentPrompt, r.GetDefault(Comment))
	assert.Equal(t, "overridden", r.GetPrompt(Comment))
}

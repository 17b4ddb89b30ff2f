package prompts

import (
	"context"
	"encoding/json"
	"fmt"

	"hnzh/internal/domain/settings"
)

// Settings keys for the persisted prompt overrides. The article prompt
// (the one whose hash versions the title cache) gets its own slot; the
// tldr and comment prompts share a JSON blob.
const (
	SettingCustomPrompt  = "custom_prompt"
	SettingPromptsConfig = "prompts_config"
)

type promptsConfigBlob struct {
	TLDR    string `json:"tldr,omitempty"`
	Comment string `json:"comment,omitempty"`
}

// LoadFromSettings applies any persisted prompt overrides from store to r.
// Absent keys leave the baked-in defaults standing.
func LoadFromSettings(ctx context.Context, store settings.Store, r *Registry) error {
	updates := make(map[Type]string, 3)

	article, ok, err := store.GetSetting(ctx, SettingCustomPrompt)
	if err != nil {
		return fmt.Errorf("load custom prompt: %w", err)
	}
	if ok {
		updates[Article] = article
	}

	blob, ok, err := store.GetSetting(ctx, SettingPromptsConfig)
	if err != nil {
		return fmt.Errorf("load prompts config: %w", err)
	}
	if ok {
		var cfg promptsConfigBlob
		if err := json.Unmarshal([]byte(blob), &cfg); err != nil {
			return fmt.Errorf("parse prompts config: %w", err)
		}
		updates[TLDR] = cfg.TLDR
		updates[Comment] = cfg.Comment
	}

	r.UpdatePrompts(updates)
	return nil
}

// SaveToSettings persists one prompt override so a restarted process picks
// it up via LoadFromSettings. The registry itself is not touched; callers
// that want the running process to see the change also call UpdatePrompts.
func SaveToSettings(ctx context.Context, store settings.Store, t Type, text string) error {
	if t == Article {
		if err := store.SetSetting(ctx, SettingCustomPrompt, text); err != nil {
			return fmt.Errorf("save custom prompt: %w", err)
		}
		return nil
	}

	var cfg promptsConfigBlob
	blob, ok, err := store.GetSetting(ctx, SettingPromptsConfig)
	if err != nil {
		return fmt.Errorf("load prompts config: %w", err)
	}
	if ok {
		if err := json.Unmarshal([]byte(blob), &cfg); err != nil {
			return fmt.Errorf("parse prompts config: %w", err)
		}
	}
	switch t {
	case TLDR:
		cfg.TLDR = text
	case Comment:
		cfg.Comment = text
	default:
		return fmt.Errorf("unknown prompt type %q", t)
	}

	out, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal prompts config: %w", err)
	}
	if err := store.SetSetting(ctx, SettingPromptsConfig, string(out)); err != nil {
		return fmt.Errorf("save prompts config: %w", err)
	}
	return nil
}

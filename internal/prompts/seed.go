package prompts

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// seedFile is the on-disk shape of a prompts.yaml override file: any of
// the three keys may be omitted, in which case the baked-in default for
// that type is kept.
type seedFile struct {
	Article string `yaml:"article"`
	TLDR    string `yaml:"tldr"`
	Comment string `yaml:"comment"`
}

// LoadSeed reads a prompts.yaml-shaped file at path and applies it as an
// UpdatePrompts call, leaving any absent key at its baked-in default. A
// missing file is not an error; the defaults stand.
func LoadSeed(r *Registry, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read prompt seed %s: %w", path, err)
	}

	var seed seedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return fmt.Errorf("parse prompt seed %s: %w", path, err)
	}

	r.UpdatePrompts(map[Type]string{
		Article: seed.Article,
		TLDR:    seed.TLDR,
		Comment: seed.Comment,
	})
	return nil
}

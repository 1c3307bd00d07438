package cache

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed categories.yaml
var defaultCategories []byte

type categoryFile struct {
	Categories []CachedCategory `yaml:"categories"`
}

// LoadCategories returns the category list from path, or the built-in list
// when path is empty
func LoadCategories(path string) ([]CachedCategory, error) {
	data := defaultCategories
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read categories file: %w", err)
		}
	}
	return parseCategories(data)
}

func parseCategories(data []byte) ([]CachedCategory, error) {
	var file categoryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	seen := make(map[string]bool, len(file.Categories))
	for i, c := range file.Categories {
		if c.ID == "" {
			return nil, fmt.Errorf("category %d: id is required", i)
		}
		if seen[c.ID] {
			return nil, fmt.Errorf("category %s: duplicate id", c.ID)
		}
		seen[c.ID] = true
		if c.Name == "" {
			file.Categories[i].Name = c.ID
		}
	}

	return file.Categories, nil
}

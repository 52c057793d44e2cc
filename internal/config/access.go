package config

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// GetPath returns the value at a dot-notation path such as "api.listen".
// An empty path returns the whole document.
func (c *Config) GetPath(path string) (any, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	var current any
	if err := yaml.Unmarshal(data, &current); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	for _, part := range strings.Split(path, ".") {
		if part == "" {
			continue
		}
		m, ok := current.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("path %q breaks at %q (not a map)", path, part)
		}
		val, exists := m[part]
		if !exists {
			return nil, fmt.Errorf("path %q: key %q not found", path, part)
		}
		current = val
	}
	return current, nil
}

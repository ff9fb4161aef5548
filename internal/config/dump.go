package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Dump renders the effective configuration as YAML under the `netmon:` root
// key, so the output can be fed back to Load.
func (cfg *GlobalConfig) Dump() ([]byte, error) {
	out, err := yaml.Marshal(map[string]*GlobalConfig{rootKey: cfg})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return out, nil
}

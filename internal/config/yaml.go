package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

// toStrictJSON prepares raw config bytes for the strict JSON decode in
// Parse. JSON files pass through untouched; .yaml/.yml files are converted to
// JSON so DisallowUnknownFields applies to both formats.
func toStrictJSON(path string, data []byte) ([]byte, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return data, nil
	}

	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("yaml unmarshal: %w", err)
	}
	out, err := json.Marshal(stringifyKeys(doc))
	if err != nil {
		return nil, fmt.Errorf("yaml to json: %w", err)
	}
	return out, nil
}

// stringifyKeys rewrites map keys to strings. yaml/v3 can yield map[any]any
// for nested mappings, which json.Marshal refuses.
func stringifyKeys(v any) any {
	switch node := v.(type) {
	case map[any]any:
		m := make(map[string]any, len(node))
		for k, elem := range node {
			m[fmt.Sprint(k)] = stringifyKeys(elem)
		}
		return m
	case map[string]any:
		for k, elem := range node {
			node[k] = stringifyKeys(elem)
		}
		return node
	case []any:
		for i, elem := range node {
			node[i] = stringifyKeys(elem)
		}
		return node
	default:
		return v
	}
}

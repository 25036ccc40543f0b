package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const includeKey = "$include"

// Load reads path, resolves $include directives, expands environment
// variables in the raw text, decodes into Config on top of the defaults,
// and finally applies AGENTS_* overrides. A missing path returns the
// defaults (env-applied) rather than an error, so `cortex` runs without a
// config file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if strings.TrimSpace(path) != "" {
		raw, err := loadRawRecursive(path, map[string]bool{})
		if err != nil {
			if os.IsNotExist(err) {
				cfg.applyEnv()
				return cfg, nil
			}
			return nil, err
		}
		merged, err := yaml.Marshal(raw)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(merged, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadRawRecursive loads one file into a raw map, resolving $include
// directives depth-first with cycle detection. The including file's keys
// win over included ones.
func loadRawRecursive(path string, seen map[string]bool) (map[string]any, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if seen[absPath] {
		return nil, fmt.Errorf("config include cycle detected at %s", absPath)
	}
	seen[absPath] = true
	defer delete(seen, absPath)

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, err
	}
	// The $include key itself is kept literal so extractIncludes can find it.
	expanded := os.Expand(string(data), func(key string) string {
		if key == includeKey[1:] {
			return includeKey
		}
		return os.Getenv(key)
	})

	raw, err := parseSingleDocument([]byte(expanded))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	includes, err := extractIncludes(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	merged := map[string]any{}
	baseDir := filepath.Dir(absPath)
	for _, inc := range includes {
		if strings.TrimSpace(inc) == "" {
			continue
		}
		if !filepath.IsAbs(inc) {
			inc = filepath.Join(baseDir, inc)
		}
		incRaw, err := loadRawRecursive(inc, seen)
		if err != nil {
			return nil, err
		}
		merged = mergeMaps(merged, incRaw)
	}

	return mergeMaps(merged, raw), nil
}

func parseSingleDocument(data []byte) (map[string]any, error) {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	var raw map[string]any
	if err := decoder.Decode(&raw); err != nil {
		if err == io.EOF {
			return map[string]any{}, nil
		}
		return nil, err
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("expected a single YAML document")
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return raw, nil
}

// extractIncludes pops the $include entry (string or list of strings).
func extractIncludes(raw map[string]any) ([]string, error) {
	val, ok := raw[includeKey]
	if !ok {
		return nil, nil
	}
	delete(raw, includeKey)

	switch typed := val.(type) {
	case string:
		return []string{typed}, nil
	case []any:
		var includes []string
		for _, item := range typed {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%s entries must be strings", includeKey)
			}
			includes = append(includes, s)
		}
		return includes, nil
	default:
		return nil, fmt.Errorf("%s must be a string or list of strings", includeKey)
	}
}

// mergeMaps overlays b on a, descending into nested maps so an including
// file can override a single nested key without clobbering its siblings.
func mergeMaps(a, b map[string]any) map[string]any {
	out := make(map[string]any, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		if existing, ok := out[k]; ok {
			em, eok := existing.(map[string]any)
			vm, vok := v.(map[string]any)
			if eok && vok {
				out[k] = mergeMaps(em, vm)
				continue
			}
		}
		out[k] = v
	}
	return out
}

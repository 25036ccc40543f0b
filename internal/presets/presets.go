// Package presets implements the Agent-Preset Registry: loading named
// agents (system prompt + optional allowed-tool set) from three
// precedence-ordered sources, and recommending one for a task description
// (spec §4.6).
package presets

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/cortexrun/cortex/pkg/taskmodels"
)

// Dirs names the three scan locations, in precedence order: entries found
// earlier never get overridden by entries with the same Name found later.
type Dirs struct {
	UserHome string // ~/.agents/agents/*.md
	Project  string // ./.agents/agents/*.md
	BuiltIn  string // <install>/presets/*.md
}

// Registry loads presets lazily on first Get/List and caches the result
// for the lifetime of the process.
type Registry struct {
	dirs Dirs

	mu      sync.Mutex
	loaded  bool
	presets map[string]*taskmodels.AgentPreset
	order   []string
}

// New builds a Registry that will scan dirs on first use.
func New(dirs Dirs) *Registry {
	return &Registry{dirs: dirs}
}

// ensureLoaded scans the three directories once, in precedence order. Scan
// errors for a missing directory are ignored; a malformed or unreadable file
// is skipped silently.
func (r *Registry) ensureLoaded() {
	if r.loaded {
		return
	}
	r.presets = make(map[string]*taskmodels.AgentPreset)
	r.order = nil

	for _, dir := range []string{r.dirs.UserHome, r.dirs.Project, r.dirs.BuiltIn} {
		if dir == "" {
			continue
		}
		r.scanDir(dir)
	}

	if _, ok := r.presets[taskmodels.GeneralPurposeName]; !ok {
		gp := &taskmodels.AgentPreset{
			Name:        taskmodels.GeneralPurposeName,
			Description: "Handles any task that does not clearly match a specialized preset.",
			SystemPrompt: "You are a capable, general-purpose software engineering agent. " +
				"Use whatever tools are available to complete the task.",
		}
		r.presets[gp.Name] = gp
		r.order = append(r.order, gp.Name)
	}
	r.loaded = true
}

func (r *Registry) scanDir(dir string) {
	matches, _ := filepath.Glob(filepath.Join(dir, "*.md"))
	toml, _ := filepath.Glob(filepath.Join(dir, "*.toml"))
	matches = append(matches, toml...)
	sort.Strings(matches)

	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		preset, err := Parse(data)
		if err != nil {
			continue
		}
		if _, exists := r.presets[preset.Name]; exists {
			continue // first occurrence wins
		}
		r.presets[preset.Name] = preset
		r.order = append(r.order, preset.Name)
	}
}

// frontMatterHeader is the subset of fields a preset file's header may
// declare; body is the free-form system-prompt text.
type frontMatterHeader struct {
	Name        string `yaml:"name" toml:"name"`
	Description string `yaml:"description" toml:"description"`
	Model       string `yaml:"model" toml:"model"`
	Tools       string `yaml:"tools" toml:"tools"`
}

// Parse reads one preset file's content: a YAML or TOML front-matter
// header enclosed by "---" lines, followed by the system-prompt body.
func Parse(data []byte) (*taskmodels.AgentPreset, error) {
	header, body, err := splitFrontMatter(data)
	if err != nil {
		return nil, err
	}

	var fm frontMatterHeader
	if looksLikeTOML(header) {
		if err := toml.Unmarshal(header, &fm); err != nil {
			return nil, fmt.Errorf("parse toml front matter: %w", err)
		}
	} else if err := yaml.Unmarshal(header, &fm); err != nil {
		return nil, fmt.Errorf("parse yaml front matter: %w", err)
	}

	if fm.Name == "" {
		return nil, fmt.Errorf("preset file missing required name field")
	}

	preset := &taskmodels.AgentPreset{
		Name:         fm.Name,
		Description:  fm.Description,
		Model:        fm.Model,
		SystemPrompt: strings.TrimSpace(string(body)),
	}
	if fm.Tools != "" {
		preset.Tools = make(map[string]struct{})
		for _, t := range strings.Split(fm.Tools, ",") {
			t = strings.TrimSpace(t)
			if t != "" {
				preset.Tools[t] = struct{}{}
			}
		}
	}
	return preset, nil
}

// looksLikeTOML is a cheap heuristic: TOML front matter uses `key = value`
// assignment, YAML uses `key: value`.
func looksLikeTOML(header []byte) bool {
	return bytes.Contains(header, []byte("= ")) && !bytes.Contains(header, []byte(": "))
}

const frontMatterDelim = "---"

func splitFrontMatter(data []byte) (header, body []byte, err error) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	if !scanner.Scan() {
		return nil, nil, fmt.Errorf("empty preset file")
	}
	if strings.TrimSpace(scanner.Text()) != frontMatterDelim {
		return nil, nil, fmt.Errorf("missing opening front-matter delimiter")
	}

	var headerLines []string
	closed := false
	for scanner.Scan() {
		if strings.TrimSpace(scanner.Text()) == frontMatterDelim {
			closed = true
			break
		}
		headerLines = append(headerLines, scanner.Text())
	}
	if !closed {
		return nil, nil, fmt.Errorf("missing closing front-matter delimiter")
	}

	var bodyLines []string
	for scanner.Scan() {
		bodyLines = append(bodyLines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, err
	}
	return []byte(strings.Join(headerLines, "\n")), []byte(strings.Join(bodyLines, "\n")), nil
}

// Get returns the named preset, loading the registry on first call.
func (r *Registry) Get(name string) (*taskmodels.AgentPreset, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ensureLoaded()
	p, ok := r.presets[name]
	return p, ok
}

// List returns every loaded preset in first-discovered order.
func (r *Registry) List() []*taskmodels.AgentPreset {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ensureLoaded()
	out := make([]*taskmodels.AgentPreset, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.presets[name])
	}
	return out
}

// RecommendAgent implements spec §4.6's three-step rule: an exact
// contiguous-token mention of a preset name wins; otherwise the preset
// whose description shares the most case-insensitive keywords with
// taskText wins; otherwise general-purpose.
func (r *Registry) RecommendAgent(taskText string) *taskmodels.AgentPreset {
	presets := r.List()
	lowerTask := strings.ToLower(taskText)
	taskTokens := tokenSet(lowerTask)

	for _, p := range presets {
		if _, ok := taskTokens[strings.ToLower(p.Name)]; ok {
			return p
		}
	}

	var best *taskmodels.AgentPreset
	bestScore := 0
	for _, p := range presets {
		score := overlapCount(taskTokens, tokenSet(strings.ToLower(p.Description)))
		if score > bestScore {
			bestScore = score
			best = p
		}
	}
	if best != nil {
		return best
	}
	gp, _ := r.Get(taskmodels.GeneralPurposeName)
	return gp
}

func tokenSet(s string) map[string]struct{} {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9') && r != '-'
	})
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

func overlapCount(a, b map[string]struct{}) int {
	n := 0
	for k := range a {
		if _, ok := b[k]; ok {
			n++
		}
	}
	return n
}

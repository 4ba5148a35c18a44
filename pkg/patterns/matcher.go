// Package patterns matches event paths against glob patterns. Patterns use
// '/' as separator: '*' stays inside one path element, '**' crosses them.
package patterns

import (
	"path/filepath"
	"strings"
	"sync"

	"github.com/gobwas/glob"

	"github.com/ManouchehrRasoulli/fseventmon/pkg/model"
)

// Matcher decides whether a record is of interest. A path is matched against
// each pattern as a whole and by its base name.
type Matcher struct {
	mu      sync.RWMutex
	include []glob.Glob
	ignore  []glob.Glob
}

func NewMatcher() *Matcher {
	return &Matcher{}
}

// SetIncludePatterns limits matching records to those matching at least one
// pattern. With no include patterns every path is included.
func (m *Matcher) SetIncludePatterns(patterns []string) error {
	compiled, err := compile(patterns)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.include = compiled
	return nil
}

func (m *Matcher) SetIgnorePatterns(patterns []string) error {
	compiled, err := compile(patterns)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.ignore = compiled
	return nil
}

func compile(patterns []string) ([]glob.Glob, error) {
	out := make([]glob.Glob, 0, len(patterns))
	for _, pattern := range patterns {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" || strings.HasPrefix(pattern, "#") {
			continue
		}

		g, err := glob.Compile(filepath.ToSlash(pattern), '/')
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, nil
}

func (m *Matcher) IsIgnored(path string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return matchAny(m.ignore, path)
}

func (m *Matcher) IsIncluded(path string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.include) == 0 {
		return true
	}
	return matchAny(m.include, path)
}

func matchAny(globs []glob.Glob, path string) bool {
	normalized := filepath.ToSlash(strings.TrimSuffix(path, "/"))
	if normalized == "" {
		normalized = "/"
	}
	base := filepath.Base(normalized)

	for _, g := range globs {
		if g.Match(normalized) || g.Match(base) {
			return true
		}
	}
	return false
}

// Predicate adapts the matcher to a monitor record filter.
func (m *Matcher) Predicate() func(model.EventRecord) bool {
	return func(e model.EventRecord) bool {
		return m.IsIncluded(e.Path) && !m.IsIgnored(e.Path)
	}
}

package patterns

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManouchehrRasoulli/fseventmon/pkg/model"
)

func TestMatcher_IsIgnored(t *testing.T) {
	m := NewMatcher()
	require.NoError(t, m.SetIgnorePatterns([]string{
		"# editor files",
		"*.swp",
		"",
		"/tmp/cache/**",
		".git",
	}))

	tests := []struct {
		path    string
		ignored bool
	}{
		{path: "/home/u/notes.swp", ignored: true},
		{path: "/home/u/notes.txt", ignored: false},
		{path: "/tmp/cache/a/b", ignored: true},
		{path: "/tmp/cachex/a", ignored: false},
		{path: "/repo/.git/", ignored: true},
		{path: "/repo/.github", ignored: false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.ignored, m.IsIgnored(tt.path))
		})
	}
}

func TestMatcher_Include(t *testing.T) {
	m := NewMatcher()
	assert.True(t, m.IsIncluded("/anything"))

	require.NoError(t, m.SetIncludePatterns([]string{"*.go", "/src/*/main.c"}))
	assert.True(t, m.IsIncluded("/a/b/x.go"))
	assert.True(t, m.IsIncluded("/src/app/main.c"))
	assert.False(t, m.IsIncluded("/src/app/lib/main.c.bak"))
	assert.False(t, m.IsIncluded("/a/b/x.rs"))
}

func TestMatcher_InvalidPattern(t *testing.T) {
	m := NewMatcher()
	require.NoError(t, m.SetIgnorePatterns([]string{"*.tmp"}))
	assert.Error(t, m.SetIgnorePatterns([]string{"[unclosed"}))
	// a failed update keeps the previous patterns
	assert.True(t, m.IsIgnored("/x/y.tmp"))
}

func TestMatcher_Predicate(t *testing.T) {
	m := NewMatcher()
	require.NoError(t, m.SetIncludePatterns([]string{"*.txt"}))
	require.NoError(t, m.SetIgnorePatterns([]string{"secret*"}))
	keep := m.Predicate()

	record := func(path string) model.EventRecord {
		return model.Build(1, path, model.ItemCreated|model.ItemIsFile, nil, nil)
	}
	assert.True(t, keep(record("/d/a.txt")))
	assert.False(t, keep(record("/d/secret.txt")))
	assert.False(t, keep(record("/d/a.md")))
}

package model

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild_DirectoryGetsTrailingSeparator(t *testing.T) {
	e := Build(7, "/Users/a/docs", ItemCreated|ItemIsDir, nil, nil)
	assert.Equal(t, "/Users/a/docs/", e.Path)
	assert.Equal(t, "/Users/a/docs", e.TrimmedPath())
	assert.Equal(t, ActionCreated, e.Actions)
	assert.Equal(t, TypeDir, e.ItemType)

	// already terminated: exactly one separator
	e = Build(8, "/Users/a/docs/", ItemModified|ItemIsDir, nil, nil)
	assert.Equal(t, "/Users/a/docs/", e.Path)
}

func TestBuild_FileAndRoot(t *testing.T) {
	e := Build(1, "/tmp//x/../y.txt", ItemModified|ItemIsFile, nil, nil)
	assert.Equal(t, "/tmp/y.txt", e.Path)

	e = Build(2, "/", RootChanged|ItemIsDir, nil, nil)
	assert.Equal(t, "/", e.Path)
	assert.Equal(t, "/", e.TrimmedPath())
}

func TestBuild_PassesEmptyPathAndIDs(t *testing.T) {
	fid := uint64(99)
	did := int64(-3)
	before := time.Now()

	e := Build(42, "", EventIDsWrapped, &fid, &did)
	assert.Equal(t, "", e.Path)
	assert.Equal(t, uint64(42), e.ID)
	assert.Equal(t, ControlIDsWrapped, e.Control)
	assert.True(t, e.Actions.IsEmpty())
	assert.Equal(t, uint64(99), *e.FileID)
	assert.Equal(t, int64(-3), *e.DocumentID)
	assert.False(t, e.CapturedAt.Before(before))
}

func TestRealPath_ResolvesSymlinks(t *testing.T) {
	dir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)

	target := filepath.Join(dir, "target")
	require.NoError(t, os.Mkdir(target, 0o755))
	link := filepath.Join(dir, "link")
	require.NoError(t, os.Symlink(target, link))

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "link", in: link, want: target},
		{name: "below link", in: filepath.Join(link, "a.txt"), want: filepath.Join(target, "a.txt")},
		{name: "missing below link", in: filepath.Join(link, "build", "out"), want: filepath.Join(target, "build", "out")},
		{name: "plain", in: target, want: target},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RealPath(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

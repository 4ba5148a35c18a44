package pkg

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManouchehrRasoulli/fseventmon/pkg/model"
)

const sampleConfig = `
state: /var/lib/fseventmon
server:
  address: 127.0.0.1:9090
  pw_file: /etc/fseventmon/pw
  tls:
    key: server.key
    cert: server.crt
metrics:
  address: 127.0.0.1:9100
monitors:
  - name: docs
    paths: [/Users/u/Documents]
    exclude: [/Users/u/Documents/tmp]
    actions: [created, removed]
    ignore: ["*.swp", ".DS_Store"]
    ignore_self: true
    latency: 0.25
    resume: true
  - paths: [/tmp]
    descendants: false
    root: true
`

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig([]byte(sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/fseventmon", cfg.State)
	assert.Equal(t, "127.0.0.1:9090", cfg.Server.Address)
	assert.Equal(t, "server.crt", cfg.Server.TLS.Cert)
	assert.Equal(t, "127.0.0.1:9100", cfg.Metrics.Address)
	require.Len(t, cfg.Monitors, 2)

	docs, ok := cfg.Monitor("docs")
	require.True(t, ok)
	wc, err := docs.WatcherConfig()
	require.NoError(t, err)
	assert.Equal(t, []string{"/Users/u/Documents"}, wc.Paths)
	assert.Equal(t, []string{"/Users/u/Documents/tmp"}, wc.Exclude)
	assert.Equal(t, model.ActionCreated|model.ActionRemoved, wc.Actions)
	assert.True(t, wc.Descendants)
	assert.True(t, wc.IgnoreSelf)
	assert.Equal(t, 0.25, wc.Latency)
	require.NotNil(t, wc.Predicate)
	assert.False(t, wc.Predicate(model.Build(1, "/Users/u/Documents/a.swp", model.ItemCreated|model.ItemIsFile, nil, nil)))
	assert.True(t, wc.Predicate(model.Build(1, "/Users/u/Documents/a.txt", model.ItemCreated|model.ItemIsFile, nil, nil)))

	second, ok := cfg.Monitor("monitor-1")
	require.True(t, ok)
	wc, err = second.WatcherConfig()
	require.NoError(t, err)
	assert.Equal(t, model.AllActions, wc.Actions)
	assert.False(t, wc.Descendants)
	assert.True(t, wc.Root)
	assert.Equal(t, DefaultLatency, wc.Latency)
	assert.Nil(t, wc.Predicate)
}

func TestParseConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
		err  error
	}{
		{name: "no monitors", data: "state: /x\n", err: ErrNoMonitors},
		{name: "no paths", data: "monitors:\n  - name: a\n", err: ErrMonitorPaths},
		{name: "duplicate", data: "monitors:\n  - name: a\n    paths: [/a]\n  - name: a\n    paths: [/b]\n", err: ErrDuplicateName},
		{name: "resume without state", data: "monitors:\n  - paths: [/a]\n    resume: true\n", err: ErrNoState},
		{name: "unknown action", data: "monitors:\n  - paths: [/a]\n    actions: [exploded]\n"},
		{name: "bad glob", data: "monitors:\n  - paths: [/a]\n    ignore: [\"[x\"]\n"},
		{name: "negative latency", data: "monitors:\n  - paths: [/a]\n    latency: -1\n"},
		{name: "bad yaml", data: "monitors: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig([]byte(tt.data))
			require.Error(t, err)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
			}
		})
	}
}

func TestReadConfig_RelativePaths(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "config.yml")
	require.NoError(t, os.WriteFile(file, []byte("monitors:\n  - paths: [./data]\n"), 0o600))

	cfg, err := ReadConfig(file)
	require.NoError(t, err)

	wc, err := cfg.Monitors[0].WatcherConfig()
	require.NoError(t, err)
	require.Len(t, wc.Paths, 1)
	assert.True(t, filepath.IsAbs(wc.Paths[0]))

	_, err = ReadConfig(filepath.Join(dir, "missing.yml"))
	assert.Error(t, err)
}

func TestWatcherConfig_SymlinkedRoot(t *testing.T) {
	dir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)

	target := filepath.Join(dir, "work")
	require.NoError(t, os.Mkdir(target, 0o755))
	link := filepath.Join(dir, "w")
	require.NoError(t, os.Symlink(target, link))

	data := fmt.Sprintf("monitors:\n  - paths: [%q]\n    exclude: [%q]\n    descendants: false\n",
		link, filepath.Join(link, "build"))
	cfg, err := ParseConfig([]byte(data))
	require.NoError(t, err)

	wc, err := cfg.Monitors[0].WatcherConfig()
	require.NoError(t, err)
	assert.Equal(t, []string{target}, wc.Paths)
	assert.Equal(t, []string{filepath.Join(target, "build")}, wc.Exclude)
}

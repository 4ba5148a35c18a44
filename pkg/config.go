package pkg

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ManouchehrRasoulli/fseventmon/pkg/model"
	"github.com/ManouchehrRasoulli/fseventmon/pkg/patterns"
	"github.com/ManouchehrRasoulli/fseventmon/pkg/watcher"
)

const DefaultLatency = 1.0

var (
	ErrNoMonitors    = errors.New("config has no monitors")
	ErrDuplicateName = errors.New("duplicate monitor name")
	ErrMonitorPaths  = errors.New("monitor has no paths")
	ErrNoState       = errors.New("resume requires a state path")
)

type ServerTLSConfig struct {
	Key  string `yaml:"key"`
	Cert string `yaml:"cert"`
}

// ServerConfig enables the event broadcast server when Address is set.
type ServerConfig struct {
	Address string          `yaml:"address"`
	PwFile  string          `yaml:"pw_file"`
	TLS     ServerTLSConfig `yaml:"tls"`
}

type ClientConfig struct {
	Address  string `yaml:"address"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	TLS      bool   `yaml:"tls"`
	Prefix   string `yaml:"prefix"`
}

type MetricsConfig struct {
	Address string `yaml:"address"`
}

type MonitorConfig struct {
	Name    string   `yaml:"name"`
	Paths   []string `yaml:"paths"`
	Exclude []string `yaml:"exclude"`
	// Actions are action labels such as "created" or "all"; empty means all.
	Actions     []string `yaml:"actions"`
	Root        bool     `yaml:"root"`
	Descendants *bool    `yaml:"descendants"`
	IgnoreSelf  bool     `yaml:"ignore_self"`
	NoDefer     bool     `yaml:"no_defer"`
	Latency     *float64 `yaml:"latency"`
	Include     []string `yaml:"include"`
	Ignore      []string `yaml:"ignore"`
	Resume      bool     `yaml:"resume"`
}

type Config struct {
	Monitors []MonitorConfig `yaml:"monitors"`
	// State is the directory of the resume point database.
	State   string        `yaml:"state"`
	Server  ServerConfig  `yaml:"server"`
	Client  ClientConfig  `yaml:"client"`
	Metrics MetricsConfig `yaml:"metrics"`
}

func ReadConfig(file string) (*Config, error) {
	yfile, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	return ParseConfig(yfile)
}

func ParseConfig(data []byte) (*Config, error) {
	c := Config{}
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, err
	}

	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	for i := range c.Monitors {
		m := &c.Monitors[i]
		if m.Name == "" {
			m.Name = fmt.Sprintf("monitor-%d", i)
		}
		if m.Descendants == nil {
			descendants := true
			m.Descendants = &descendants
		}
		if m.Latency == nil {
			latency := DefaultLatency
			m.Latency = &latency
		}
	}
}

// Validate reports every problem it finds, not just the first.
func (c *Config) Validate() error {
	var errs []error
	if len(c.Monitors) == 0 {
		errs = append(errs, ErrNoMonitors)
	}

	seen := make(map[string]struct{}, len(c.Monitors))
	for _, m := range c.Monitors {
		if _, ok := seen[m.Name]; ok {
			errs = append(errs, fmt.Errorf("%w: %s", ErrDuplicateName, m.Name))
		}
		seen[m.Name] = struct{}{}

		if len(m.Paths) == 0 {
			errs = append(errs, fmt.Errorf("%w: %s", ErrMonitorPaths, m.Name))
		}
		if _, err := model.ParseActions(m.Actions); err != nil {
			errs = append(errs, fmt.Errorf("monitor %s: %w", m.Name, err))
		}
		if m.Latency != nil && *m.Latency < 0 {
			errs = append(errs, fmt.Errorf("monitor %s: negative latency %v", m.Name, *m.Latency))
		}
		if m.Resume && c.State == "" {
			errs = append(errs, fmt.Errorf("%w: %s", ErrNoState, m.Name))
		}
		if _, err := m.Matcher(); err != nil {
			errs = append(errs, fmt.Errorf("monitor %s: %w", m.Name, err))
		}
	}

	return errors.Join(errs...)
}

// Monitor returns the monitor with the given name.
func (c *Config) Monitor(name string) (MonitorConfig, bool) {
	for _, m := range c.Monitors {
		if m.Name == name {
			return m, true
		}
	}
	return MonitorConfig{}, false
}

// Matcher compiles the include and ignore patterns. It returns nil when the
// monitor has none.
func (m MonitorConfig) Matcher() (*patterns.Matcher, error) {
	if len(m.Include) == 0 && len(m.Ignore) == 0 {
		return nil, nil
	}

	matcher := patterns.NewMatcher()
	if err := matcher.SetIncludePatterns(m.Include); err != nil {
		return nil, err
	}
	if err := matcher.SetIgnorePatterns(m.Ignore); err != nil {
		return nil, err
	}
	return matcher, nil
}

// WatcherConfig converts the file representation into a monitor config.
// Paths are made absolute and symlinks resolved since the OS reports real
// paths.
func (m MonitorConfig) WatcherConfig() (watcher.Config, error) {
	paths, err := absPaths(m.Paths)
	if err != nil {
		return watcher.Config{}, err
	}
	exclude, err := absPaths(m.Exclude)
	if err != nil {
		return watcher.Config{}, err
	}

	cfg := watcher.DefaultConfig(paths...)
	cfg.Exclude = exclude
	if len(m.Actions) > 0 {
		if cfg.Actions, err = model.ParseActions(m.Actions); err != nil {
			return watcher.Config{}, err
		}
	}
	cfg.Root = m.Root
	cfg.Descendants = m.Descendants == nil || *m.Descendants
	cfg.IgnoreSelf = m.IgnoreSelf
	cfg.NoDefer = m.NoDefer
	cfg.Latency = DefaultLatency
	if m.Latency != nil {
		cfg.Latency = *m.Latency
	}

	matcher, err := m.Matcher()
	if err != nil {
		return watcher.Config{}, err
	}
	if matcher != nil {
		cfg.Predicate = matcher.Predicate()
	}

	return cfg, nil
}

func absPaths(paths []string) ([]string, error) {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		resolved, err := model.RealPath(p)
		if err != nil {
			return nil, err
		}
		out = append(out, resolved)
	}
	return out, nil
}

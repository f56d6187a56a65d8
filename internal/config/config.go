// Package config loads and validates the optional .childproc project file.
//
// The file is YAML (.childproc) or TOML (.childproc.toml); when both exist
// the YAML file wins.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/deixis/childproc"
	"gopkg.in/yaml.v3"
)

// File names searched for, in order.
const (
	YAMLFile = ".childproc"
	TOMLFile = ".childproc.toml"
)

// Default values for runner configuration.
const (
	DefaultTimeout    = 5 * time.Minute
	DefaultMaxBuffer  = childproc.DefaultMaxBuffer
	DefaultEncoding   = "utf8"
	DefaultKillSignal = "SIGTERM"
	DefaultCacheSize  = 16
)

// Config holds the parsed configuration.
// All fields are optional; zero values represent defaults.
type Config struct {
	Version       int         `yaml:"version" toml:"version"`
	RawTimeout    string      `yaml:"timeout" toml:"timeout"`         // e.g. "5m", "30s"
	RawMaxBuffer  *int        `yaml:"max_buffer" toml:"max_buffer"`   // bytes per stream; 0 is a valid cap
	RawEncoding   string      `yaml:"encoding" toml:"encoding"`       // utf8, latin1, hex, buffer, ...
	RawKillSignal string      `yaml:"kill_signal" toml:"kill_signal"` // e.g. SIGTERM, KILL, 9
	Shell         string      `yaml:"shell" toml:"shell"`
	Env           []string    `yaml:"env" toml:"env"` // KEY=VALUE pairs appended to the environment
	Store         StoreConfig `yaml:"store" toml:"store"`
}

// StoreConfig controls where run records are kept.
type StoreConfig struct {
	Dir   string `yaml:"dir" toml:"dir"`     // default: a temp directory per process
	Cache int    `yaml:"cache" toml:"cache"` // in-memory LRU entries
}

// Timeout returns the configured timeout or the default.
func (c *Config) Timeout() time.Duration {
	if c.RawTimeout != "" {
		d, err := time.ParseDuration(c.RawTimeout)
		if err == nil && d > 0 {
			return d
		}
	}
	return DefaultTimeout
}

// MaxBuffer returns the configured per-stream cap or the default.
func (c *Config) MaxBuffer() int {
	if c.RawMaxBuffer != nil && *c.RawMaxBuffer >= 0 {
		return *c.RawMaxBuffer
	}
	return DefaultMaxBuffer
}

// Encoding returns the configured output encoding or the default.
func (c *Config) Encoding() string {
	if c.RawEncoding != "" {
		return c.RawEncoding
	}
	return DefaultEncoding
}

// KillSignal returns the configured kill signal name or the default.
func (c *Config) KillSignal() string {
	if c.RawKillSignal != "" {
		return c.RawKillSignal
	}
	return DefaultKillSignal
}

// CacheSize returns the configured LRU size, falling back to 16.
func (c *Config) CacheSize() int {
	if c.Store.Cache > 0 {
		return c.Store.Cache
	}
	return DefaultCacheSize
}

// Options converts the configuration into process options. Invalid values
// are reported here rather than when a process starts.
func (c *Config) Options() ([]childproc.Option, error) {
	sig, err := childproc.ParseSignal(c.KillSignal())
	if err != nil {
		return nil, fmt.Errorf("kill_signal: %w", err)
	}
	opts := []childproc.Option{
		childproc.WithEncoding(c.Encoding()),
		childproc.WithMaxBuffer(c.MaxBuffer()),
		childproc.WithKillSignal(sig),
	}
	if c.Shell != "" {
		opts = append(opts, childproc.WithShell(c.Shell))
	}
	if len(c.Env) > 0 {
		opts = append(opts, childproc.WithEnv(append(os.Environ(), c.Env...)))
	}
	return opts, nil
}

// LoadResult holds the parsed config and the discovered project root.
type LoadResult struct {
	Config *Config
	Root   string // directory holding the config file or go.mod; falls back to workspace
	Path   string // config file that was read, "" when none
}

// Load reads the configuration for workspace. The project root is the
// nearest directory at or above workspace that holds a config file or a
// go.mod. If no config file exists, a default Config is returned.
func Load(workspace string) (*LoadResult, error) {
	root, err := findRoot(workspace)
	if err != nil {
		// Nothing found; use workspace as root.
		root = workspace
	}

	cfg := &Config{}
	for _, name := range []string{YAMLFile, TOMLFile} {
		path := filepath.Join(root, name)
		data, err := os.ReadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", name, err)
		}
		if err := decode(name, data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", name, err)
		}
		return &LoadResult{Config: cfg, Root: root, Path: path}, nil
	}
	return &LoadResult{Config: cfg, Root: root}, nil
}

func decode(name string, data []byte, cfg *Config) error {
	if name == TOMLFile {
		_, err := toml.Decode(string(data), cfg)
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// findRoot walks upward from dir looking for a config file or go.mod.
func findRoot(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	for {
		for _, marker := range []string{YAMLFile, TOMLFile, "go.mod"} {
			if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
				return dir, nil
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("no %s, %s or go.mod found", YAMLFile, TOMLFile)
		}
		dir = parent
	}
}

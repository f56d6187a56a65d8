package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoad_YAMLFromRoot(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ".childproc"), "version: 1\ntimeout: 10m\nmax_buffer: 4096\nencoding: latin1\n")

	res, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if res.Root != dir {
		t.Errorf("Root = %q, want %q", res.Root, dir)
	}
	if res.Config.Version != 1 {
		t.Errorf("Config.Version = %d, want 1", res.Config.Version)
	}
	if res.Config.Timeout() != 10*time.Minute {
		t.Errorf("Timeout = %v, want 10m", res.Config.Timeout())
	}
	if res.Config.MaxBuffer() != 4096 {
		t.Errorf("MaxBuffer = %d, want 4096", res.Config.MaxBuffer())
	}
	if res.Config.Encoding() != "latin1" {
		t.Errorf("Encoding = %q, want latin1", res.Config.Encoding())
	}
	if res.Path != filepath.Join(dir, ".childproc") {
		t.Errorf("Path = %q, want the .childproc file", res.Path)
	}
}

func TestLoad_TOML(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ".childproc.toml"), `
version = 2
kill_signal = "KILL"
shell = "/bin/bash"

[store]
dir = "/var/tmp/runs"
cache = 3
`)

	res, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cfg := res.Config
	if cfg.Version != 2 {
		t.Errorf("Version = %d, want 2", cfg.Version)
	}
	if cfg.KillSignal() != "KILL" {
		t.Errorf("KillSignal = %q, want KILL", cfg.KillSignal())
	}
	if cfg.Shell != "/bin/bash" {
		t.Errorf("Shell = %q, want /bin/bash", cfg.Shell)
	}
	if cfg.Store.Dir != "/var/tmp/runs" || cfg.CacheSize() != 3 {
		t.Errorf("Store = %+v, want dir /var/tmp/runs cache 3", cfg.Store)
	}
}

func TestLoad_YAMLWinsOverTOML(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ".childproc"), "version: 1\n")
	writeFile(t, filepath.Join(dir, ".childproc.toml"), "version = 2\n")

	res, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if res.Config.Version != 1 {
		t.Errorf("Version = %d, want 1 (from YAML)", res.Config.Version)
	}
}

func TestLoad_FromSubdirectory(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "go.mod"), "module example.com/test\n")
	writeFile(t, filepath.Join(root, ".childproc"), "version: 2\n")

	sub := filepath.Join(root, "pkg", "foo")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}

	res, err := Load(sub)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if res.Root != root {
		t.Errorf("Root = %q, want %q", res.Root, root)
	}
	if res.Config.Version != 2 {
		t.Errorf("Config.Version = %d, want 2", res.Config.Version)
	}
}

func TestLoad_NoConfigFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "go.mod"), "module example.com/test\n")

	res, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if res.Root != dir {
		t.Errorf("Root = %q, want %q", res.Root, dir)
	}
	if res.Path != "" {
		t.Errorf("Path = %q, want empty", res.Path)
	}
	cfg := res.Config
	if cfg.Timeout() != DefaultTimeout {
		t.Errorf("Timeout = %v, want %v", cfg.Timeout(), DefaultTimeout)
	}
	if cfg.MaxBuffer() != DefaultMaxBuffer {
		t.Errorf("MaxBuffer = %d, want %d", cfg.MaxBuffer(), DefaultMaxBuffer)
	}
	if cfg.KillSignal() != DefaultKillSignal {
		t.Errorf("KillSignal = %q, want %q", cfg.KillSignal(), DefaultKillSignal)
	}
	if cfg.CacheSize() != DefaultCacheSize {
		t.Errorf("CacheSize = %d, want %d", cfg.CacheSize(), DefaultCacheSize)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ".childproc"), "version: [\n")

	if _, err := Load(dir); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestMaxBuffer_ZeroIsValid(t *testing.T) {
	zero := 0
	cfg := &Config{RawMaxBuffer: &zero}
	if cfg.MaxBuffer() != 0 {
		t.Errorf("MaxBuffer = %d, want 0", cfg.MaxBuffer())
	}
}

func TestTimeout_InvalidFallsBack(t *testing.T) {
	cfg := &Config{RawTimeout: "soon"}
	if cfg.Timeout() != DefaultTimeout {
		t.Errorf("Timeout = %v, want %v", cfg.Timeout(), DefaultTimeout)
	}
}

func TestOptions(t *testing.T) {
	cfg := &Config{RawKillSignal: "INT", Shell: "/bin/bash", Env: []string{"A=1"}}
	opts, err := cfg.Options()
	if err != nil {
		t.Fatalf("Options: %v", err)
	}
	if len(opts) != 5 {
		t.Errorf("len(opts) = %d, want 5", len(opts))
	}
}

func TestOptions_BadSignal(t *testing.T) {
	cfg := &Config{RawKillSignal: "SIGNOPE"}
	if _, err := cfg.Options(); err == nil {
		t.Fatal("expected error for unknown kill_signal")
	}
}

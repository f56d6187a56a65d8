package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/deixis/childproc"
	"github.com/deixis/childproc/internal/config"
	"github.com/deixis/childproc/internal/report"
	"github.com/deixis/childproc/internal/runner"
)

// env is the state shared by every subcommand.
type env struct {
	loaded *config.LoadResult
	store  report.Store
	runner *runner.Runner
	dir    string // where the command was invoked, inside the workspace root
}

func newEnv(extra ...childproc.Option) (*env, error) {
	workspace, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("determining workspace: %w", err)
	}

	loaded, err := config.Load(workspace)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	cfg := loaded.Config

	opts, err := cfg.Options()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", loaded.Path, err)
	}

	d := cfg.Timeout()
	if timeout > 0 {
		d = timeout
	}

	store := report.NewLRUStore(cfg.CacheSize(), report.NewDiskStore(storeDir(cfg)))
	return &env{
		loaded: loaded,
		store:  store,
		dir:    workspace,
		runner: &runner.Runner{
			Workspace: loaded.Root,
			Timeout:   d,
			Options:   append(opts, extra...),
			Store:     store,
			Logger:    newLogger(),
		},
	}, nil
}

// storeDir is the configured store directory, or a per-user cache
// directory shared by every workspace.
func storeDir(cfg *config.Config) string {
	if cfg.Store.Dir != "" {
		return cfg.Store.Dir
	}
	cache, err := os.UserCacheDir()
	if err != nil {
		return ""
	}
	return filepath.Join(cache, "childproc", "runs")
}

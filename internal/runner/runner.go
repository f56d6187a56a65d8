// Package runner runs commands inside a workspace boundary and records
// every finished run.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/deixis/childproc"
	"github.com/deixis/childproc/internal/report"
	"github.com/deixis/childproc/internal/telemetry"
)

// Runner executes commands within a workspace boundary.
type Runner struct {
	Workspace string
	Timeout   time.Duration
	Options   []childproc.Option // applied to every run before Timeout and Dir
	Store     report.Store       // optional
	Logger    *slog.Logger       // optional
}

// Run executes argv directly. The first element is the binary name
// (resolved via PATH). cwd is resolved relative to the workspace root and
// must remain within it.
//
// The returned error is reserved for requests that could not be attempted.
// A command that fails to start, exits non-zero or is killed still yields
// a record describing how it ended.
func (r *Runner) Run(ctx context.Context, argv []string, cwd string) (*report.Record, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("empty argv")
	}
	dir, err := r.resolveDir(cwd)
	if err != nil {
		return nil, err
	}
	a := childproc.ExecFile(argv[0], argv[1:], r.options(dir)...)
	return r.finish(ctx, a, report.Run, argv, dir)
}

// Shell runs line through the configured shell.
func (r *Runner) Shell(ctx context.Context, line, cwd string) (*report.Record, error) {
	if strings.TrimSpace(line) == "" {
		return nil, fmt.Errorf("empty command line")
	}
	dir, err := r.resolveDir(cwd)
	if err != nil {
		return nil, err
	}
	a := childproc.Exec(line, r.options(dir)...)
	return r.finish(ctx, a, report.Shell, []string{line}, dir)
}

func (r *Runner) options(dir string) []childproc.Option {
	opts := make([]childproc.Option, 0, len(r.Options)+3)
	opts = append(opts, r.Options...)
	opts = append(opts, childproc.WithDir(dir), childproc.WithLogger(r.logger()))
	if r.Timeout > 0 {
		opts = append(opts, childproc.WithTimeout(r.Timeout))
	}
	return opts
}

func (r *Runner) finish(ctx context.Context, a *childproc.Adapter, kind report.Kind, command []string, dir string) (*report.Record, error) {
	if stdin := a.Stdin(); stdin != nil {
		stdin.Close()
	}

	res, err := a.Wait(ctx)
	if res == nil {
		// The caller gave up; take the process down and keep its record.
		_ = a.Kill(os.Kill)
		<-a.Done()
		res, err = a.Outcome()
	}

	rec := report.NewRecord(kind, command, dir, res, err)
	telemetry.RecordRun(ctx, string(kind), string(rec.Outcome), res.Duration, rec.Overflow)

	log := r.logger().With("run_id", rec.ID, "kind", kind)
	if rec.Failed() {
		log.Info("run failed", "outcome", rec.Outcome, "error", rec.Error)
	} else {
		log.Debug("run finished", "duration_ms", rec.DurationMS)
	}

	if r.Store != nil {
		if err := r.Store.Save(rec); err != nil {
			log.Warn("saving run record", "error", err)
		}
	}
	return rec, nil
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.New(slog.DiscardHandler)
}

// resolveDir resolves cwd relative to the workspace and validates it
// is within the workspace boundary.
func (r *Runner) resolveDir(cwd string) (string, error) {
	if cwd == "" {
		return r.Workspace, nil
	}

	var dir string
	if filepath.IsAbs(cwd) {
		dir = filepath.Clean(cwd)
	} else {
		dir = filepath.Clean(filepath.Join(r.Workspace, cwd))
	}

	rel, err := filepath.Rel(r.Workspace, dir)
	if err != nil {
		return "", fmt.Errorf("resolving cwd: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("cwd %q is outside workspace %q", cwd, r.Workspace)
	}
	return dir, nil
}

// Package mcp provides the childproc MCP server, exposing command
// execution and run history as tools.
package mcp

import (
	"context"
	_ "embed"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/deixis/childproc"
	"github.com/deixis/childproc/internal/config"
	"github.com/deixis/childproc/internal/report"
	"github.com/deixis/childproc/internal/runner"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

//go:embed instructions.md
var Instructions string

// handler holds shared dependencies for all tool handlers.
type handler struct {
	mu     sync.RWMutex
	runner *runner.Runner
	loaded *config.LoadResult
	store  report.Store
	log    *slog.Logger
}

// NewServer creates an MCP server with all childproc tools registered.
// loaded is the configuration r was built from; it is reported by
// proc_workspace and replaced when the client announces a root.
func NewServer(loaded *config.LoadResult, r *runner.Runner, store report.Store) *mcp.Server {
	h := &handler{
		runner: r,
		loaded: loaded,
		store:  store,
		log:    r.Logger,
	}
	if h.log == nil {
		h.log = slog.New(slog.DiscardHandler)
	}

	opts := &mcp.ServerOptions{
		Instructions: Instructions,
		Capabilities: &mcp.ServerCapabilities{
			Tools: &mcp.ToolCapabilities{ListChanged: false},
		},
		InitializedHandler: func(ctx context.Context, req *mcp.InitializedRequest) {
			h.updateWorkspaceFromRoots(ctx, req.Session)
		},
	}
	s := mcp.NewServer(&mcp.Implementation{Name: "childproc", Version: childproc.Version}, opts)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "proc_workspace",
		Description: "Show the workspace root, the config file in use and the effective process limits.",
	}, h.workspaceHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name: "proc_run",
		Description: `Run a program directly (no shell) and wait for it to finish.

argv[0] is resolved via PATH. Output is captured per stream up to the configured max_buffer;
a process that writes more is killed. The result reports how the process ended and is stored
for later retrieval via proc_inspect.`,
	}, h.runHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name: "proc_shell",
		Description: `Run a command line through the configured shell and wait for it to finish.

Use this when you need pipes, redirection or globbing. Same capture and limits as proc_run.`,
	}, h.shellHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name: "proc_inspect",
		Description: `Show a stored run in full, including captured stdout and stderr.

Use the run_id from a proc_run, proc_shell or proc_history result.`,
	}, h.inspectHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "proc_history",
		Description: "List recent runs, most recent first, one line each.",
	}, h.historyHandler)

	return s
}

// updateWorkspaceFromRoots queries the client for MCP roots and points the
// runner at the first file root, reloading its configuration. This is
// called during session initialization, before any tool calls.
func (h *handler) updateWorkspaceFromRoots(ctx context.Context, session *mcp.ServerSession) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	roots, err := session.ListRoots(ctx, &mcp.ListRootsParams{})
	if err != nil || len(roots.Roots) == 0 {
		return
	}

	u, err := url.Parse(roots.Roots[0].URI)
	if err != nil || u.Scheme != "file" {
		return
	}
	workspace := u.Path

	loaded, err := config.Load(workspace)
	if err != nil {
		h.log.Warn("loading config for root", "root", workspace, "error", err)
		return
	}
	opts, err := loaded.Config.Options()
	if err != nil {
		h.log.Warn("invalid config for root", "path", loaded.Path, "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.runner = &runner.Runner{
		Workspace: workspace,
		Timeout:   loaded.Config.Timeout(),
		Options:   opts,
		Store:     h.runner.Store,
		Logger:    h.runner.Logger,
	}
	h.loaded = loaded
}

func (h *handler) current() (*runner.Runner, *config.LoadResult) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.runner, h.loaded
}

// textResult is a helper to build a text-only tool result.
func textResult(text string) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}, nil, nil
}

// errorResult is a helper to build an error tool result.
func errorResult(text string) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
		IsError: true,
	}, nil, nil
}

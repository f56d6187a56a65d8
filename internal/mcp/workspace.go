package mcp

import (
	"context"
	"fmt"
	"strings"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

type workspaceParams struct{}

func (h *handler) workspaceHandler(ctx context.Context, req *sdkmcp.CallToolRequest, _ workspaceParams) (*sdkmcp.CallToolResult, any, error) {
	r, loaded := h.current()
	cfg := loaded.Config

	var b strings.Builder
	fmt.Fprintf(&b, "Workspace: %s\n", r.Workspace)
	fmt.Fprintf(&b, "Root: %s\n", loaded.Root)
	if loaded.Path != "" {
		fmt.Fprintf(&b, "Config: %s\n", loaded.Path)
	} else {
		fmt.Fprintln(&b, "Config: (defaults)")
	}
	fmt.Fprintln(&b)

	fmt.Fprintf(&b, "Timeout: %s\n", cfg.Timeout())
	fmt.Fprintf(&b, "Max buffer: %d bytes per stream\n", cfg.MaxBuffer())
	fmt.Fprintf(&b, "Encoding: %s\n", cfg.Encoding())
	fmt.Fprintf(&b, "Kill signal: %s\n", cfg.KillSignal())
	if cfg.Shell != "" {
		fmt.Fprintf(&b, "Shell: %s\n", cfg.Shell)
	}
	if len(cfg.Env) > 0 {
		fmt.Fprintf(&b, "Extra env: %s\n", strings.Join(cfg.Env, " "))
	}
	return textResult(b.String())
}

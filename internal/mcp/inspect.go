package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/deixis/childproc/internal/report"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const defaultHistory = 20

type inspectParams struct {
	RunID string `json:"run_id" jsonschema:"the run ID from a proc_run, proc_shell or proc_history result"`
}

type historyParams struct {
	Limit int `json:"limit,omitempty" jsonschema:"maximum number of runs to list. Default: 20."`
}

func (h *handler) inspectHandler(ctx context.Context, req *mcp.CallToolRequest, params inspectParams) (*mcp.CallToolResult, any, error) {
	if params.RunID == "" {
		return errorResult("run_id is required")
	}
	rec, err := h.store.Load(params.RunID)
	if errors.Is(err, report.ErrNotFound) {
		return errorResult(fmt.Sprintf("No run with ID %s.", params.RunID))
	}
	if err != nil {
		return errorResult(fmt.Sprintf("Failed to load run %s: %v", params.RunID, err))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Kind: %s\n", rec.Kind)
	if rec.Dir != "" {
		fmt.Fprintf(&b, "Directory: %s\n", rec.Dir)
	}
	if rec.PID > 0 {
		fmt.Fprintf(&b, "PID: %d\n", rec.PID)
	}
	if !rec.Started.IsZero() {
		fmt.Fprintf(&b, "Started: %s\n", rec.Started.Format("2006-01-02 15:04:05.000"))
	}
	b.WriteString(formatRecord(rec, 0))
	return textResult(b.String())
}

func (h *handler) historyHandler(ctx context.Context, req *mcp.CallToolRequest, params historyParams) (*mcp.CallToolResult, any, error) {
	limit := params.Limit
	if limit <= 0 {
		limit = defaultHistory
	}
	recs, err := h.store.List(limit)
	if err != nil {
		return errorResult(fmt.Sprintf("Failed to list runs: %v", err))
	}
	if len(recs) == 0 {
		return textResult("No runs recorded.")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Runs (%d):\n", len(recs))
	for _, rec := range recs {
		fmt.Fprintf(&b, "  %s\n", rec.Summary())
	}
	return textResult(b.String())
}

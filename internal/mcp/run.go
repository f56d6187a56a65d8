package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/deixis/childproc/internal/report"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// maxInline bounds how much of each stream a run result shows; proc_inspect
// returns the rest.
const maxInline = 4000

type runParams struct {
	Argv []string `json:"argv" jsonschema:"program and arguments, e.g. [\"go\", \"version\"]"`
	Cwd  string   `json:"cwd,omitempty" jsonschema:"working directory, relative to the workspace root. Defaults to the root."`
}

type shellParams struct {
	Command string `json:"command" jsonschema:"command line passed to the shell with -c"`
	Cwd     string `json:"cwd,omitempty" jsonschema:"working directory, relative to the workspace root. Defaults to the root."`
}

func (h *handler) runHandler(ctx context.Context, req *mcp.CallToolRequest, params runParams) (*mcp.CallToolResult, any, error) {
	if len(params.Argv) == 0 {
		return errorResult("argv is required")
	}
	r, _ := h.current()
	rec, err := r.Run(ctx, params.Argv, params.Cwd)
	if err != nil {
		return errorResult(fmt.Sprintf("run failed: %v", err))
	}
	return textResult(formatRecord(rec, maxInline))
}

func (h *handler) shellHandler(ctx context.Context, req *mcp.CallToolRequest, params shellParams) (*mcp.CallToolResult, any, error) {
	if params.Command == "" {
		return errorResult("command is required")
	}
	r, _ := h.current()
	rec, err := r.Shell(ctx, params.Command, params.Cwd)
	if err != nil {
		return errorResult(fmt.Sprintf("shell failed: %v", err))
	}
	return textResult(formatRecord(rec, maxInline))
}

// formatRecord renders rec for a model. Streams longer than limit are cut
// with a pointer to proc_inspect; limit <= 0 shows everything.
func formatRecord(rec *report.Record, limit int) string {
	var b strings.Builder

	if rec.Failed() {
		fmt.Fprintln(&b, "Status: FAIL")
	} else {
		fmt.Fprintln(&b, "Status: PASS")
	}
	fmt.Fprintf(&b, "Run: %s\n", rec.ID)
	fmt.Fprintf(&b, "Command: %s\n", strings.Join(rec.Command, " "))
	if rec.Error != "" {
		fmt.Fprintf(&b, "Outcome: %s (%s)\n", rec.Outcome, rec.Error)
	} else {
		fmt.Fprintf(&b, "Outcome: %s\n", rec.Outcome)
	}
	fmt.Fprintf(&b, "Exit code: %d\n", rec.ExitCode)
	if rec.Signal != "" {
		fmt.Fprintf(&b, "Signal: %s\n", rec.Signal)
	}
	if rec.Overflow && rec.Outcome != report.MaxBuffer {
		fmt.Fprintln(&b, "Output limit exceeded: process was killed")
	}
	if rec.TimedOut && rec.Outcome != report.Timeout {
		fmt.Fprintln(&b, "Timed out: process was killed")
	}
	fmt.Fprintf(&b, "Duration: %dms\n", rec.DurationMS)

	cut := formatStream(&b, "stdout", rec.Stdout, rec.StdoutTruncated, limit)
	cut = formatStream(&b, "stderr", rec.Stderr, rec.StderrTruncated, limit) || cut
	if cut {
		fmt.Fprintln(&b)
		fmt.Fprintf(&b, "Full output: proc_inspect(run_id=%q).\n", rec.ID)
	}
	return b.String()
}

func formatStream(b *strings.Builder, name string, data *string, truncated bool, limit int) (cut bool) {
	fmt.Fprintln(b)
	if data == nil {
		fmt.Fprintf(b, "%s: not captured\n", name)
		return false
	}
	text := *data
	if text == "" {
		fmt.Fprintf(b, "%s: (empty)\n", name)
		return false
	}

	header := fmt.Sprintf("%s (%d bytes", name, len(text))
	if truncated {
		header += ", truncated at limit"
	}
	fmt.Fprintf(b, "%s):\n", header)

	if limit > 0 && len(text) > limit {
		text = text[len(text)-limit:]
		cut = true
		fmt.Fprintln(b, "    ...")
	}
	for _, line := range strings.Split(strings.TrimRight(text, "\n"), "\n") {
		fmt.Fprintf(b, "    %s\n", line)
	}
	return cut
}

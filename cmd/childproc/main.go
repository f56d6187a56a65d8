// Command childproc runs commands, records how they ended and serves the
// run history over MCP.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/deixis/childproc"
	"github.com/deixis/childproc/internal/telemetry"
	"github.com/spf13/cobra"
)

var (
	jsonOutput bool
	verbose    bool
	timeout    time.Duration

	// exitCode is set by commands that report a failed run.
	exitCode int
)

var rootCmd = &cobra.Command{
	Use:   "childproc",
	Short: "Run commands with bounded output capture and keep a record of each run",
	Long: `childproc runs a command, captures stdout and stderr up to a per-stream
limit, and reports how the process ended: a clean exit, a non-zero exit code,
a signal, a failure to start, an output overflow or a timeout.

Every run is stored and can be listed with "childproc history" and shown in
full with "childproc inspect". "childproc mcp" exposes the same operations to
MCP clients.

Limits and defaults are read from .childproc (YAML) or .childproc.toml in the
current directory or the nearest parent holding one.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(childproc.Version)
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.BoolVar(&jsonOutput, "json", false, "output results as JSON")
	pf.BoolVarP(&verbose, "verbose", "v", false, "log process lifecycle to stderr")
	pf.DurationVar(&timeout, "timeout", 0, "override configured timeout (e.g. 30s)")
	rootCmd.AddCommand(versionCmd)
}

func main() {
	log.SetFlags(0)
	log.SetPrefix("childproc: ")
	os.Exit(run())
}

func run() int {
	ctx := context.Background()
	provider, err := telemetry.Init(ctx, "childproc", childproc.Version)
	if err != nil {
		log.Printf("telemetry disabled: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(ctx); err != nil {
			log.Print(err)
		}
	}()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Print(err)
		return 2
	}
	return exitCode
}

func newLogger() *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/deixis/childproc"
	"github.com/deixis/childproc/internal/report"
	"github.com/spf13/cobra"
)

var (
	runStream    bool
	runMaxBuffer int
	runEncoding  string
)

var runCmd = &cobra.Command{
	Use:   "run [flags] -- program [args...]",
	Short: "Run a program directly and report how it ended",
	Long: `Run a program without a shell, wait for it and report how it ended.

The exit status of childproc follows the run: the program's own exit code for
a non-zero exit, 1 for any other failure.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEnv(runOptions()...)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()
		rec, err := e.runner.Run(ctx, args, e.dir)
		if err != nil {
			return err
		}
		return printRecord(rec)
	},
}

var shCmd = &cobra.Command{
	Use:   "sh [flags] command-line",
	Short: "Run a command line through the shell and report how it ended",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEnv(runOptions()...)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()
		rec, err := e.runner.Shell(ctx, strings.Join(args, " "), e.dir)
		if err != nil {
			return err
		}
		return printRecord(rec)
	},
}

func init() {
	for _, c := range []*cobra.Command{runCmd, shCmd} {
		c.Flags().BoolVarP(&runStream, "stream", "s", false, "copy output to the terminal as it arrives")
		c.Flags().IntVar(&runMaxBuffer, "max-buffer", -1, "per-stream capture limit in bytes (overrides config)")
		c.Flags().StringVar(&runEncoding, "encoding", "", "decode captured output as this encoding (overrides config)")
		rootCmd.AddCommand(c)
	}
}

// runOptions turns the command flags into options applied after the
// configured ones.
func runOptions() []childproc.Option {
	var opts []childproc.Option
	if runMaxBuffer >= 0 {
		opts = append(opts, childproc.WithMaxBuffer(runMaxBuffer))
	}
	if runEncoding != "" {
		opts = append(opts, childproc.WithEncoding(runEncoding))
	}
	if runStream && !jsonOutput {
		opts = append(opts, childproc.WithListener(func(ev childproc.Event) {
			if ev.Kind != childproc.EventData {
				return
			}
			switch ev.Stream {
			case childproc.StreamStdout:
				os.Stdout.Write(ev.Data)
			case childproc.StreamStderr:
				os.Stderr.Write(ev.Data)
			}
		}))
	}
	return opts
}

// exitStatus mirrors the child's own exit code. Any other failure maps to 1;
// 2 is left for usage errors.
func exitStatus(rec *report.Record) int {
	switch rec.Outcome {
	case report.Success:
		return 0
	case report.ExitCode:
		if rec.ExitCode != 0 {
			return rec.ExitCode
		}
	}
	return 1
}

// printRecord writes rec to stdout and sets the exit status.
func printRecord(rec *report.Record) error {
	exitCode = exitStatus(rec)

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	}
	fmt.Print(formatRecord(painter{color: useColor()}, rec, !runStream))
	return nil
}

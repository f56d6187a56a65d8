package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent runs, most recent first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEnv()
		if err != nil {
			return err
		}
		recs, err := e.store.List(historyLimit)
		if err != nil {
			return fmt.Errorf("listing runs: %w", err)
		}
		if jsonOutput {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(recs)
		}
		fmt.Print(formatHistory(painter{color: useColor()}, recs))
		return nil
	},
}

var inspectCmd = &cobra.Command{
	Use:   "inspect run-id",
	Short: "Show a stored run with its captured output",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEnv()
		if err != nil {
			return err
		}
		rec, err := e.store.Load(args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(rec)
		}
		p := painter{color: useColor()}
		fmt.Printf("%s %s\n", p.paint(labelStyle, "command"), strings.Join(rec.Command, " "))
		if rec.Dir != "" {
			fmt.Printf("%s %s\n", p.paint(labelStyle, "dir"), rec.Dir)
		}
		fmt.Println()
		fmt.Print(formatRecord(p, rec, true))
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "maximum number of runs to list (0 for all)")
	rootCmd.AddCommand(historyCmd, inspectCmd)
}

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var historyJSON bool

var historyCmd = &cobra.Command{
	Use:   "history [scope]",
	Short: "List recorded pipeline runs",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "output runs as JSON")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	ledger, err := openLedger(cmd.Context())
	if err != nil {
		return err
	}
	if ledger == nil {
		return errors.New("no run ledger configured (set store.path)")
	}
	defer ledger.Close()

	scope := ""
	if len(args) == 1 {
		scope = args[0]
	}
	runs, err := ledger.Runs(cmd.Context(), scope)
	if err != nil {
		return err
	}

	if historyJSON {
		data, err := json.MarshalIndent(runs, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal runs: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	if len(runs) == 0 {
		cmd.Println("No runs recorded.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RUN\tSCOPE\tSTARTED\tTOTAL\tVALID\tDURATION")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\n",
			r.RunID, r.ScopeID, r.StartedAt.Local().Format(time.DateTime), r.Total, r.Valid, r.Duration.Round(time.Millisecond))
	}
	return w.Flush()
}

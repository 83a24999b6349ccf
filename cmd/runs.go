package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List tracking runs mirrored into the database",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		db, err := openStore(cmd.Context())
		if err != nil {
			return report("Database unavailable", err, nil)
		}

		runs, err := db.ListRuns(cmd.Context())
		if err != nil {
			return report("Failed to list runs", err, nil)
		}

		if len(runs) == 0 {
			fmt.Println("No runs found in database.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "ID\tLABEL\tTRACKER\tMODE\tOUTCOME\tFRAMES\tLOCATED\tSTARTED")
		fmt.Fprintln(w, "--\t-----\t-------\t----\t-------\t------\t-------\t-------")

		for _, r := range runs {
			outcome := r.Outcome
			if r.FinishedAt == nil {
				outcome = "running"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
				r.ID, r.Label, r.Tracker, r.Mode, outcome, r.Frames, r.Located,
				r.StartedAt.Local().Format("2006-01-02 15:04"))
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(runsCmd)
}

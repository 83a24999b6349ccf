package cmd

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

)

var labelCmd = &cobra.Command{
	Use:   "label <run_id> <label>",
	Short: "Attach a label to a tracking run",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		id, err := uuid.Parse(args[0])
		if err != nil {
			return report("Invalid run ID", err, nil)
		}
		return runLabel(cmd.Context(), id, args[1])
	},
}

func init() {
	rootCmd.AddCommand(labelCmd)
}

func runLabel(ctx context.Context, id uuid.UUID, label string) error {
	db, err := openStore(ctx)
	if err != nil {
		return report("Database unavailable", err, nil)
	}

	if err := db.LabelRun(ctx, id, label); err != nil {
		return report("Failed to label run", err, nil)
	}

	fmt.Printf("✅ Run %s labeled as '%s'\n", id, label)
	return nil
}

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/andresmejia3/roitrack/internal/record"
)

var (
	spansLog string
	spansFPS float64
)

var spansCmd = &cobra.Command{
	Use:   "spans [run_id]",
	Short: "Show the frame intervals where the target was located",
	Long:  "Reads a run from the database, or every run in a result log with --log, and prints its located intervals.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		switch {
		case spansLog != "" && len(args) == 1:
			return errors.New("give either a run ID or --log, not both")
		case spansLog == "" && len(args) == 0:
			return errors.New("need a run ID or --log")
		}

		runs, err := loadRuns(cmd.Context(), args, spansLog)
		if err != nil {
			return err
		}
		if spansFPS < 0 {
			return errors.Errorf("fps must be >= 0, got %f", spansFPS)
		}
		return printSpans(os.Stdout, runs, spansFPS)
	},
}

func init() {
	spansCmd.Flags().StringVar(&spansLog, "log", "", "Read runs from a result log instead of the database")
	spansCmd.Flags().Float64Var(&spansFPS, "fps", 0, "Frame rate used to print time ranges (0 hides them)")
	rootCmd.AddCommand(spansCmd)
}

func loadRuns(ctx context.Context, args []string, logPath string) ([]record.Run, error) {
	if logPath != "" {
		runs, err := record.ReadFile(logPath)
		var damaged *record.DamagedError
		if errors.As(err, &damaged) {
			logger.Warnw("skipping damaged lines in result log", "path", logPath, "lines", damaged.Lines)
			return runs, nil
		}
		if err != nil {
			return nil, report("Failed to read result log", err, nil)
		}
		return runs, nil
	}

	id, err := uuid.Parse(args[0])
	if err != nil {
		return nil, report("Invalid run ID", err, nil)
	}
	db, err := openStore(ctx)
	if err != nil {
		return nil, report("Database unavailable", err, nil)
	}
	recs, err := db.GetRunRecords(ctx, id)
	if err != nil {
		return nil, report("Failed to retrieve run", err, nil)
	}
	return []record.Run{recs}, nil
}

// printSpans writes one table row per located interval. Runs are numbered from 1.
func printSpans(out io.Writer, runs []record.Run, fps float64) error {
	if len(runs) == 0 {
		fmt.Fprintln(out, "No frames recorded.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	if fps > 0 {
		fmt.Fprintln(w, "RUN\tFRAMES\tCOUNT\tTIME RANGE")
		fmt.Fprintln(w, "---\t------\t-----\t----------")
	} else {
		fmt.Fprintln(w, "RUN\tFRAMES\tCOUNT")
		fmt.Fprintln(w, "---\t------\t-----")
	}

	for i, run := range runs {
		spans := record.Spans(run)
		if len(spans) == 0 {
			fmt.Fprintf(w, "%d\t-\t0\n", i+1)
			continue
		}
		for _, s := range spans {
			if fps > 0 {
				fmt.Fprintf(w, "%d\t%d-%d\t%d\t%s - %s\n", i+1, s.Start, s.End, s.Frames(),
					fmtTime(float64(s.Start)/fps), fmtTime(float64(s.End+1)/fps))
				continue
			}
			fmt.Fprintf(w, "%d\t%d-%d\t%d\n", i+1, s.Start, s.End, s.Frames())
		}
	}
	return w.Flush()
}

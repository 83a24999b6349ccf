package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

)

var (
	resetDB   bool
	resetLogs string
	resetYes  bool
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset persisted state (database tables, result logs)",
	Long:  "Clears stored runs. Without flags only the database is reset. Use --logs to also delete *.log files in a directory.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		if !resetDB && resetLogs == "" {
			resetDB = true
		}

		reader := bufio.NewReader(os.Stdin)

		if resetDB {
			if resetYes || confirm(reader, os.Stdout, "⚠️  Are you sure you want to DROP all database tables?") {
				db, err := openStore(cmd.Context())
				if err != nil {
					return report("Database unavailable", err, nil)
				}
				fmt.Println("🗑️  Clearing Database...")
				if err := db.Reset(cmd.Context()); err != nil {
					return report("Failed to reset database", err, nil)
				}
			}
		}

		if resetLogs != "" {
			if resetYes || confirm(reader, os.Stdout, fmt.Sprintf("⚠️  Are you sure you want to delete all result logs in %s?", resetLogs)) {
				fmt.Println("🗑️  Clearing Result Logs...")
				n, err := removeLogs(resetLogs)
				if err != nil {
					return err
				}
				fmt.Printf("   Removed %d files.\n", n)
			}
		}

		fmt.Println("✨ Reset Complete.")
		return nil
	},
}

func init() {
	resetCmd.Flags().BoolVar(&resetDB, "db", false, "Drop the PostgreSQL tables")
	resetCmd.Flags().StringVar(&resetLogs, "logs", "", "Directory whose *.log result files are deleted")
	resetCmd.Flags().BoolVarP(&resetYes, "yes", "y", false, "Do not ask for confirmation")
	rootCmd.AddCommand(resetCmd)
}

func confirm(r *bufio.Reader, w io.Writer, prompt string) bool {
	fmt.Fprintf(w, "%s [y/N]: ", prompt)
	res, _ := r.ReadString('\n')
	res = strings.TrimSpace(strings.ToLower(res))
	return res == "y" || res == "yes"
}

// removeLogs deletes the *.log files directly inside dir. Failures on single
// files are reported and skipped.
func removeLogs(dir string) (int, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.log"))
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, path := range matches {
		if err := os.Remove(path); err != nil {
			fmt.Fprintf(os.Stderr, "⚠️  Failed to remove %s: %v\n", path, err)
			continue
		}
		removed++
	}
	return removed, nil
}

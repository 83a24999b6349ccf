package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/andresmejia3/roitrack/internal/store"
	"github.com/andresmejia3/roitrack/internal/utils"
)

var (
	// DB is the database connection shared by subcommands. It is opened
	// on demand by openStore.
	DB *store.Store
	// dbURL is the connection string
	dbURL string
	// verbose switches the logger to debug level
	verbose bool
	// logger is built in PersistentPreRunE
	logger *zap.SugaredLogger
)

// Version is the application version.
const Version = "0.1.0"

// exitError carries a non-default exit status out of a command.
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string { return e.msg }

var rootCmd = &cobra.Command{
	Use:     "roitrack",
	Short:   "Single-target ROI tracking over video",
	Version: Version, // This enables the --version flag
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		l, err := newLogger(verbose)
		if err != nil {
			return fmt.Errorf("failed to build logger: %w", err)
		}
		logger = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		cleanup()
	},
}

func newLogger(debug bool) (*zap.SugaredLogger, error) {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if debug {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	cfg.DisableStacktrace = true
	l, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return l.Sugar(), nil
}

// resolveDBURL returns the --db flag, else a URL built from POSTGRES_* variables,
// else the local default.
func resolveDBURL(flag string) string {
	if flag != "" {
		return flag
	}
	if host := os.Getenv("POSTGRES_HOST"); host != "" {
		user := os.Getenv("POSTGRES_USER")
		pass := os.Getenv("POSTGRES_PASSWORD")
		name := os.Getenv("POSTGRES_DB")
		port := os.Getenv("POSTGRES_PORT")
		if port == "" {
			port = "5432"
		}
		return fmt.Sprintf("postgres://%s:%s@%s:%s/%s", user, pass, host, port, name)
	}
	// Fallback to local default if no env vars are present
	return "postgres://localhost:5432/roitrack"
}

// openStore connects to Postgres once per process.
func openStore(ctx context.Context) (*store.Store, error) {
	if DB != nil {
		return DB, nil
	}
	s, err := store.New(ctx, resolveDBURL(dbURL))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	DB = s
	return DB, nil
}

// reportedError marks an error whose banner has already been printed.
type reportedError struct {
	err error
}

func (e *reportedError) Error() string { return e.err.Error() }
func (e *reportedError) Cause() error  { return e.err }
func (e *reportedError) Unwrap() error { return e.err }

// report prints the error banner and returns err marked as reported.
func report(context string, err error, s *utils.SafeCommand) error {
	utils.ShowError(context, err, s)
	return &reportedError{err: err}
}

// cleanup closes the shared database connection and flushes the logger.
// Cobra skips PersistentPostRun when a command fails, so Execute calls it too.
func cleanup() {
	if DB != nil {
		// Use Background here because the main context might be cancelled already (due to Ctrl+C)
		// and we still need to send the "Close" command to the DB.
		DB.Close(context.Background())
		DB = nil
	}
	if logger != nil {
		_ = logger.Sync()
	}
}

// exitCode maps a command error to the process status, printing it unless
// it was already reported.
func exitCode(err error, stderr io.Writer) int {
	if err == nil {
		return 0
	}
	var ee *exitError
	if errors.As(err, &ee) {
		fmt.Fprintln(stderr, ee.msg)
		return ee.code
	}
	var re *reportedError
	if !errors.As(err, &re) {
		fmt.Fprintln(stderr, err)
	}
	return 1
}

// run executes the command tree with args (nil means os.Args) and returns the exit status.
func run(ctx context.Context, args []string, stderr io.Writer) int {
	if args != nil {
		rootCmd.SetArgs(args)
	}
	err := rootCmd.ExecuteContext(ctx)
	cleanup()
	return exitCode(err, stderr)
}

func Execute() {
	// Create a context that listens for Ctrl+C (SIGINT) or Kill (SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	// This tells Cobra not to print the version in the help text, which is cleaner.
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	code := run(ctx, nil, os.Stderr)
	stop()
	os.Exit(code)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbURL, "db", "", "PostgreSQL connection string (default: postgres://localhost:5432/roitrack)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.SilenceErrors = true
}

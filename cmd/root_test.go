package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

// syncCounter counts Sync calls on an otherwise observed core.
type syncCounter struct {
	zapcore.Core
	syncs int
}

func (s *syncCounter) Sync() error {
	s.syncs++
	return nil
}

// runWith adds a throwaway subcommand whose RunE returns err and executes it.
func runWith(t *testing.T, err error) (code int, syncs int, stderr string) {
	t.Helper()
	oldLogger := logger
	t.Cleanup(func() { logger = oldLogger })

	core, _ := observer.New(zapcore.DebugLevel)
	counter := &syncCounter{Core: core}
	sub := &cobra.Command{
		Use:          "failing",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger = zap.New(counter).Sugar()
			return err
		},
	}
	rootCmd.AddCommand(sub)
	t.Cleanup(func() { rootCmd.RemoveCommand(sub) })

	var buf bytes.Buffer
	code = run(context.Background(), []string{"failing"}, &buf)
	return code, counter.syncs, buf.String()
}

func TestRunFlushesLoggerWhenCommandFails(t *testing.T) {
	code, syncs, _ := runWith(t, errors.New("boom"))
	assert.Equal(t, 1, code)
	assert.GreaterOrEqual(t, syncs, 1, "logger must be flushed on the failure path")
}

func TestRunExitCodes(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantCode   int
		wantStderr string
	}{
		{"Success", nil, 0, ""},
		{"Plain error", errors.New("boom"), 1, "boom\n"},
		{"Phase terminal", &exitError{code: 2, msg: "no target"}, 2, "no target\n"},
		{"Already reported", &reportedError{err: errors.New("boom")}, 1, ""},
		{"Reported then wrapped", errors.Wrap(&reportedError{err: errors.New("boom")}, "track"), 1, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, stderr := runWith(t, tt.err)
			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, tt.wantStderr, stderr)
		})
	}
}

func TestReportMarksError(t *testing.T) {
	cause := errors.New("connection refused")
	err := report("Database unavailable", cause, nil)

	var re *reportedError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, cause, errors.Cause(err))
	assert.Equal(t, 1, exitCode(err, &bytes.Buffer{}))
}

func TestLoadRunsSkipsDamagedLines(t *testing.T) {
	oldLogger := logger
	logger = zaptest.NewLogger(t).Sugar()
	t.Cleanup(func() { logger = oldLogger })

	path := filepath.Join(t.TempDir(), "roi.log")
	require.NoError(t, os.WriteFile(path, []byte("0 0 0 0 0\n1 5 5 5 5\n2 5"), 0644))

	runs, err := loadRuns(context.Background(), nil, path)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Len(t, runs[0], 2)
}

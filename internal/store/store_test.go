package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/andresmejia3/roitrack/internal/record"
	"github.com/andresmejia3/roitrack/internal/types"
)

// TestStoreIntegration runs a full integration test against a real Postgres container.
// It requires Docker to be running.
func TestStoreIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()

	// Recover from panics inside testcontainers (e.g. socket not found)
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("testcontainers panicked: %v", r)
			}
		}()
		_, err = testcontainers.NewDockerClientWithOpts(ctx)
		return
	}()
	if err != nil {
		t.Skipf("Docker not available, cannot run integration test: %v", err)
	}

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("roitrack_test"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
		testcontainers.WithLogger(noopLogger{}),
	)
	if err != nil {
		t.Fatalf("Failed to start postgres container: %v", err)
	}
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Fatalf("Failed to terminate container: %v", err)
		}
	}()

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("Failed to get connection string: %v", err)
	}

	s, err := New(ctx, connStr)
	if err != nil {
		t.Fatalf("Failed to connect to store: %v", err)
	}
	defer s.Close(ctx)

	// --- Test Scenarios ---

	runID := uuid.New()
	err = s.CreateRun(ctx, Run{ID: runID, VideoID: "vid_123", InputPath: "/tmp/video.mp4", Tracker: "KCF", Mode: "automatic"})
	if err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}

	roi := types.ROI{X: 10, Y: 10, Width: 50, Height: 50}
	recs := []types.FrameRecord{
		types.LostRecord(0),
		types.LocatedRecord(1, roi),
		// A Lost record carrying a box must be stored with zeros.
		{Index: 2, ROI: roi, Status: types.Lost},
	}
	rec := record.Tee(s.Recorder(ctx, runID))
	for _, r := range recs {
		if err := rec.Record(r); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	// Duplicate frame index violates the primary key.
	if err := s.InsertRecord(ctx, runID, types.LostRecord(1)); err == nil {
		t.Error("Expected duplicate frame index to fail")
	}

	if err := s.FinishRun(ctx, runID, "completed", 3, 1); err != nil {
		t.Fatalf("FinishRun failed: %v", err)
	}
	if err := s.LabelRun(ctx, runID, "hallway cam"); err != nil {
		t.Fatalf("LabelRun failed: %v", err)
	}
	if err := s.LabelRun(ctx, uuid.New(), "nobody"); err == nil {
		t.Error("Expected LabelRun on unknown run to fail")
	}

	got, err := s.GetRunRecords(ctx, runID)
	if err != nil {
		t.Fatalf("GetRunRecords failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Expected 3 records, got %d", len(got))
	}
	if got[1] != types.LocatedRecord(1, roi) {
		t.Errorf("Record 1 mismatch: %+v", got[1])
	}
	if got[2] != types.LostRecord(2) {
		t.Errorf("Record 2 should be lost with a null box, got %+v", got[2])
	}

	run, err := s.GetRun(ctx, runID)
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if run.Outcome != "completed" || run.Frames != 3 || run.Located != 1 || run.Label != "hallway cam" {
		t.Errorf("Unexpected run row: %+v", run)
	}
	if run.FinishedAt == nil {
		t.Error("Expected finished_at to be set")
	}

	runs, err := s.ListRuns(ctx)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != runID {
		t.Errorf("Expected the single run %s, got %+v", runID, runs)
	}

	if _, err := s.GetRun(ctx, uuid.New()); err == nil {
		t.Error("Expected GetRun on unknown run to fail")
	}

	if err := s.Reset(ctx); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if _, err := s.ListRuns(ctx); err == nil {
		t.Error("Expected ListRuns to fail after tables were dropped")
	}
}

type noopLogger struct{}

func (n noopLogger) Printf(format string, v ...interface{}) {}

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/andresmejia3/roitrack/internal/types"
)

// Store mirrors tracking runs and their frame records into PostgreSQL.
type Store struct {
	conn *pgx.Conn
}

// Run is one pipeline invocation.
type Run struct {
	ID         uuid.UUID
	VideoID    string
	InputPath  string
	Tracker    string
	Mode       string
	Label      string
	Outcome    string
	Frames     int
	Located    int
	StartedAt  time.Time
	FinishedAt *time.Time
}

// New establishes a connection to the database and ensures the schema is initialized.
func New(ctx context.Context, connString string) (*Store, error) {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, err
	}

	if err := initSchema(ctx, conn); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return &Store{conn: conn}, nil
}

// initSchema creates the tables if they don't exist.
func initSchema(ctx context.Context, conn *pgx.Conn) error {
	query := `
		CREATE TABLE IF NOT EXISTS tracking_runs (
			id TEXT PRIMARY KEY,
			video_id TEXT NOT NULL,
			input_path TEXT NOT NULL,
			tracker TEXT NOT NULL,
			mode TEXT NOT NULL,
			label TEXT NOT NULL DEFAULT '',
			outcome TEXT NOT NULL DEFAULT '',
			frame_count INT NOT NULL DEFAULT 0,
			located_count INT NOT NULL DEFAULT 0,
			started_at TIMESTAMPTZ DEFAULT NOW(),
			finished_at TIMESTAMPTZ
		);
		CREATE TABLE IF NOT EXISTS frame_records (
			run_id TEXT REFERENCES tracking_runs(id) ON DELETE CASCADE,
			frame_index INT NOT NULL,
			x INT NOT NULL,
			y INT NOT NULL,
			width INT NOT NULL,
			height INT NOT NULL,
			located BOOLEAN NOT NULL,
			PRIMARY KEY (run_id, frame_index)
		);
		CREATE INDEX IF NOT EXISTS tracking_runs_video_id_idx ON tracking_runs (video_id);
	`
	_, err := conn.Exec(ctx, query)
	return err
}

// Close terminates the database connection.
func (s *Store) Close(ctx context.Context) {
	s.conn.Close(ctx)
}

// CreateRun registers a run before its first frame is recorded.
func (s *Store) CreateRun(ctx context.Context, run Run) error {
	_, err := s.conn.Exec(ctx, `
		INSERT INTO tracking_runs (id, video_id, input_path, tracker, mode, started_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
	`, run.ID.String(), run.VideoID, run.InputPath, run.Tracker, run.Mode)
	return err
}

// InsertRecord stores one frame outcome. Lost frames are stored with a zero box.
func (s *Store) InsertRecord(ctx context.Context, runID uuid.UUID, rec types.FrameRecord) error {
	roi := rec.ROI
	if rec.Status != types.Located {
		roi = types.NullROI
	}
	_, err := s.conn.Exec(ctx, `
		INSERT INTO frame_records (run_id, frame_index, x, y, width, height, located)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, runID.String(), rec.Index, roi.X, roi.Y, roi.Width, roi.Height, rec.Status == types.Located)
	return err
}

// FinishRun stores the final outcome and counters.
func (s *Store) FinishRun(ctx context.Context, runID uuid.UUID, outcome string, frames, located int) error {
	_, err := s.conn.Exec(ctx, `
		UPDATE tracking_runs
		SET outcome = $2, frame_count = $3, located_count = $4, finished_at = NOW()
		WHERE id = $1
	`, runID.String(), outcome, frames, located)
	return err
}

// LabelRun attaches a human readable label to a run.
func (s *Store) LabelRun(ctx context.Context, runID uuid.UUID, label string) error {
	tag, err := s.conn.Exec(ctx, "UPDATE tracking_runs SET label = $1 WHERE id = $2", label, runID.String())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("run %s not found", runID)
	}
	return nil
}

const runColumns = `id, video_id, input_path, tracker, mode, label, outcome, frame_count, located_count, started_at, finished_at`

func scanRun(row pgx.Row) (Run, error) {
	var r Run
	var id string
	err := row.Scan(&id, &r.VideoID, &r.InputPath, &r.Tracker, &r.Mode, &r.Label, &r.Outcome,
		&r.Frames, &r.Located, &r.StartedAt, &r.FinishedAt)
	if err != nil {
		return Run{}, err
	}
	r.ID, err = uuid.Parse(id)
	return r, err
}

// ListRuns returns every run, newest first.
func (s *Store) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.conn.Query(ctx, "SELECT "+runColumns+" FROM tracking_runs ORDER BY started_at DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetRun fetches one run by ID.
func (s *Store) GetRun(ctx context.Context, runID uuid.UUID) (Run, error) {
	r, err := scanRun(s.conn.QueryRow(ctx, "SELECT "+runColumns+" FROM tracking_runs WHERE id = $1", runID.String()))
	if err == pgx.ErrNoRows {
		return Run{}, fmt.Errorf("run %s not found", runID)
	}
	return r, err
}

// GetRunRecords returns a run's records in frame order.
func (s *Store) GetRunRecords(ctx context.Context, runID uuid.UUID) ([]types.FrameRecord, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT frame_index, x, y, width, height, located
		FROM frame_records WHERE run_id = $1 ORDER BY frame_index ASC
	`, runID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []types.FrameRecord
	for rows.Next() {
		var idx int
		var roi types.ROI
		var located bool
		if err := rows.Scan(&idx, &roi.X, &roi.Y, &roi.Width, &roi.Height, &located); err != nil {
			return nil, err
		}
		if located {
			recs = append(recs, types.LocatedRecord(idx, roi))
		} else {
			recs = append(recs, types.LostRecord(idx))
		}
	}
	return recs, rows.Err()
}

// Reset drops all application tables to clear the database state.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.conn.Exec(ctx, `
		DROP TABLE IF EXISTS frame_records CASCADE;
		DROP TABLE IF EXISTS tracking_runs CASCADE;
	`)
	return err
}

// RunRecorder writes a run's frame records as they are produced.
type RunRecorder struct {
	ctx   context.Context
	store *Store
	runID uuid.UUID
}

// Recorder returns a record.Recorder bound to runID. It uses ctx for
// every insert, so pass a context that outlives a user interrupt.
func (s *Store) Recorder(ctx context.Context, runID uuid.UUID) *RunRecorder {
	return &RunRecorder{ctx: ctx, store: s, runID: runID}
}

// Record implements record.Recorder.
func (r *RunRecorder) Record(rec types.FrameRecord) error {
	if err := r.store.InsertRecord(r.ctx, r.runID, rec); err != nil {
		return fmt.Errorf("mirroring frame %d: %w", rec.Index, err)
	}
	return nil
}

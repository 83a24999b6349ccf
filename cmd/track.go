package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/andresmejia3/roitrack/internal/config"
	"github.com/andresmejia3/roitrack/internal/cv"
	"github.com/andresmejia3/roitrack/internal/pipeline"
	"github.com/andresmejia3/roitrack/internal/record"
	"github.com/andresmejia3/roitrack/internal/source"
	"github.com/andresmejia3/roitrack/internal/store"
	"github.com/andresmejia3/roitrack/internal/tracker"
	"github.com/andresmejia3/roitrack/internal/types"
	"github.com/andresmejia3/roitrack/internal/utils"
	"github.com/andresmejia3/roitrack/internal/worker"
)

const (
	sourceFFmpeg = "ffmpeg"
	sourceOpenCV = "opencv"
	sourceDir    = "dir"
)

// TrackOptions holds the configuration of one track run.
type TrackOptions struct {
	InputPath   string
	Tracker     string
	CascadePath string
	WorkerCmd   string
	ROI         string
	Select      bool
	OutputPath  string
	Append      bool
	Sync        bool
	Source      string
	NthFrame    int
	Persist     bool
	ConfigPath  string
}

var trackOpts TrackOptions

var trackCmd = &cobra.Command{
	Use:   "track",
	Short: "Acquire a target and track it through a video, logging one line per frame",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		opts := trackOpts
		if opts.ConfigPath != "" {
			file, err := config.Load(opts.ConfigPath)
			if err != nil {
				return err
			}
			applyConfig(cmd, &opts, file)
		}
		if err := validateTrackOptions(&opts); err != nil {
			return report("Invalid options", err, nil)
		}
		return runTrack(cmd.Context(), opts)
	},
}

func init() {
	trackCmd.Flags().StringVarP(&trackOpts.InputPath, "input", "i", "", "Path to video, image directory, or camera ID")
	trackCmd.Flags().StringVarP(&trackOpts.Tracker, "tracker", "k", string(tracker.DefaultKind), "Tracker engine: "+tracker.KindNames())
	trackCmd.Flags().StringVarP(&trackOpts.CascadePath, "model", "m", "", "Cascade classifier XML for automatic acquisition")
	trackCmd.Flags().StringVarP(&trackOpts.WorkerCmd, "worker", "w", "", "Detector worker command for automatic acquisition (e.g. \"python3 -u detect.py\")")
	trackCmd.Flags().StringVar(&trackOpts.ROI, "roi", "", "Initial ROI as x,y,width,height (manual acquisition)")
	trackCmd.Flags().BoolVar(&trackOpts.Select, "select", false, "Draw the initial ROI on the first frame (manual acquisition)")
	trackCmd.Flags().StringVarP(&trackOpts.OutputPath, "output", "o", "roi.log", "Result log path")
	trackCmd.Flags().BoolVar(&trackOpts.Append, "append", false, "Append to the result log instead of truncating it")
	trackCmd.Flags().BoolVar(&trackOpts.Sync, "sync", false, "fsync the result log after every frame")
	trackCmd.Flags().StringVar(&trackOpts.Source, "source", sourceFFmpeg, "Frame source: ffmpeg, opencv, or dir")
	trackCmd.Flags().IntVarP(&trackOpts.NthFrame, "nth-frame", "n", 1, "Process every nth frame")
	trackCmd.Flags().BoolVar(&trackOpts.Persist, "persist", false, "Mirror the run into PostgreSQL")
	trackCmd.Flags().StringVar(&trackOpts.ConfigPath, "config", "", "YAML file with track defaults")

	rootCmd.AddCommand(trackCmd)
}

// applyConfig copies file values into opts for every flag the user did not set.
func applyConfig(cmd *cobra.Command, opts *TrackOptions, file config.File) {
	unset := func(name string) bool { return !cmd.Flags().Changed(name) }
	t := file.Track

	if t.Input != "" && unset("input") {
		opts.InputPath = t.Input
	}
	if t.Tracker != "" && unset("tracker") {
		opts.Tracker = t.Tracker
	}
	// Acquisition is one choice: any acquisition flag replaces the file's whole choice.
	if unset("model") && unset("worker") && unset("roi") && unset("select") {
		if t.Cascade != "" {
			opts.CascadePath = t.Cascade
		}
		if len(t.Worker) > 0 {
			opts.WorkerCmd = strings.Join(t.Worker, " ")
		}
		if t.ROI != nil {
			opts.ROI = fmt.Sprintf("%d,%d,%d,%d", t.ROI.X, t.ROI.Y, t.ROI.Width, t.ROI.Height)
		}
		if t.Select {
			opts.Select = true
		}
	}
	if t.Output != "" && unset("output") {
		opts.OutputPath = t.Output
	}
	if t.Append && unset("append") {
		opts.Append = true
	}
	if t.Sync && unset("sync") {
		opts.Sync = true
	}
	if t.Source != "" && unset("source") {
		opts.Source = t.Source
	}
	if t.NthFrame > 0 && unset("nth-frame") {
		opts.NthFrame = t.NthFrame
	}
	if t.Persist && unset("persist") {
		opts.Persist = true
	}
	if file.DB != "" && dbURL == "" {
		dbURL = file.DB
	}
}

// validateTrackOptions checks all arguments before any process is started.
func validateTrackOptions(opts *TrackOptions) error {
	if opts.InputPath == "" {
		return errors.New("input is required (-i)")
	}
	if opts.Source == "" {
		opts.Source = sourceFFmpeg
	}
	switch opts.Source {
	case sourceFFmpeg, sourceDir:
		info, err := os.Stat(opts.InputPath)
		if err != nil {
			if os.IsNotExist(err) {
				return errors.Wrap(err, "input does not exist")
			}
			return errors.Wrap(err, "unable to access input")
		}
		if opts.Source == sourceDir && !info.IsDir() {
			return errors.Errorf("%s is not a directory", opts.InputPath)
		}
		if opts.Source == sourceFFmpeg && info.IsDir() {
			return errors.Errorf("%s is a directory, use --source dir", opts.InputPath)
		}
	case sourceOpenCV:
		// Camera IDs are not paths; cv.OpenCapture decides.
	default:
		return errors.Errorf("unknown source %q (ffmpeg, opencv, dir)", opts.Source)
	}
	if opts.NthFrame < 1 {
		return errors.Errorf("nth-frame must be >= 1, got %d", opts.NthFrame)
	}
	if opts.OutputPath == "" {
		return errors.New("output path is empty")
	}

	automatic := opts.CascadePath != "" || strings.TrimSpace(opts.WorkerCmd) != ""
	manual := opts.ROI != "" || opts.Select
	switch {
	case opts.CascadePath != "" && strings.TrimSpace(opts.WorkerCmd) != "":
		return errors.New("--model and --worker are mutually exclusive")
	case opts.ROI != "" && opts.Select:
		return errors.New("--roi and --select are mutually exclusive")
	case automatic && manual:
		return errors.New("a detector (--model/--worker) cannot be combined with a manual ROI (--roi/--select)")
	case !automatic && !manual:
		return errors.New("need a detector (--model/--worker) or a manual ROI (--roi/--select)")
	}
	if opts.ROI != "" {
		if _, err := utils.ParseROI(opts.ROI); err != nil {
			return err
		}
	}
	return nil
}

// runTrack wires source, acquisition, tracker and recorders, then drives the pipeline.
func runTrack(ctx context.Context, opts TrackOptions) (err error) {
	// 1. Resolve the tracker engine
	reg := tracker.NewRegistry(logger)
	cv.Register(reg)
	kind, fellBack := tracker.Resolve(opts.Tracker)
	if fellBack {
		logger.Warnw("unknown tracker, using default", "requested", opts.Tracker, "using", kind)
	}
	_, built, err := reg.Lookup(kind)
	if err != nil {
		return report("No tracker engine available", err, nil)
	}
	if built != kind {
		logger.Warnw("tracker not available in this build, using default", "requested", kind, "using", built)
		kind = built
	}

	// 2. Open the frame source
	src, total, proc, err := openSource(ctx, opts)
	if err != nil {
		return report("Failed to open frame source", err, nil)
	}
	defer func() {
		err = multierr.Append(err, src.Close())
	}()
	src = source.EveryNth(src, opts.NthFrame)

	// 3. Acquisition
	var pipeOpts []pipeline.Option
	var mode types.Mode
	var dw *worker.DetectorWorker
	switch {
	case opts.CascadePath != "":
		cascade, err := cv.LoadCascade(opts.CascadePath)
		if err != nil {
			return report("Failed to load detector model", err, nil)
		}
		defer cascade.Close()
		pipeOpts = append(pipeOpts, pipeline.WithDetector(cascade))
		mode = types.Automatic
	case strings.TrimSpace(opts.WorkerCmd) != "":
		fmt.Fprintln(os.Stderr, "🚀 Starting detector worker...")
		w, err := startWorker(ctx, opts.WorkerCmd)
		if err != nil {
			return report("Failed to start detector worker", err, nil)
		}
		defer w.Close()
		dw = w
		pipeOpts = append(pipeOpts, pipeline.WithDetector(w))
		mode = types.Automatic
	case opts.Select:
		pipeOpts = append(pipeOpts, pipeline.WithSelector(cv.WindowSelector{Title: "roitrack"}))
		mode = types.Manual
	default:
		roi, _ := utils.ParseROI(opts.ROI)
		pipeOpts = append(pipeOpts, pipeline.WithSelector(pipeline.FixedSelector(roi)))
		mode = types.Manual
	}

	// 4. Result log, plus the optional database mirror
	resultLog, err := record.Open(opts.OutputPath, record.Options{Append: opts.Append, Sync: opts.Sync})
	if err != nil {
		return report("Failed to open result log", err, nil)
	}
	defer func() {
		err = multierr.Append(err, resultLog.Close())
	}()

	var rec record.Recorder = resultLog
	var db *store.Store
	runID := uuid.New()
	if opts.Persist {
		db, err = openStore(ctx)
		if err != nil {
			return report("Database unavailable", err, nil)
		}
		run := store.Run{ID: runID, VideoID: inputID(opts), InputPath: opts.InputPath, Tracker: string(kind), Mode: mode.String()}
		if err := db.CreateRun(ctx, run); err != nil {
			return report("Failed to register run", err, nil)
		}
		// Inserts must survive Ctrl+C so the interrupted run is complete up to the stop.
		rec = record.Tee(resultLog, db.Recorder(context.Background(), runID))
		fmt.Fprintf(os.Stderr, "🗄️  Run ID: %s\n", runID)
	}

	// 5. Progress
	if total > 0 && opts.NthFrame > 1 {
		total = (total + opts.NthFrame - 1) / opts.NthFrame
	}
	if total <= 0 {
		total = -1
	}
	bar := progressbar.NewOptions(total,
		progressbar.OptionSetDescription("🎯 Acquiring"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
	)
	lastPhase := types.Acquiring
	pipeOpts = append(pipeOpts,
		pipeline.WithLogger(logger),
		pipeline.WithObserver(func(r types.FrameRecord, phase types.Phase) {
			if phase != lastPhase {
				bar.Describe("🔍 Tracking")
				lastPhase = phase
			}
			bar.Add(1)
		}),
	)

	newTracker := func() (tracker.Tracker, error) {
		t, _, err := reg.New(kind)
		return t, err
	}
	p, err := pipeline.New(src, rec, newTracker, pipeOpts...)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "📼 Input: %s | Tracker: %s | Mode: %s\n", opts.InputPath, kind, mode)
	res, runErr := p.Run(ctx)
	bar.Finish()
	fmt.Fprintln(os.Stderr)

	if db != nil {
		outcome := res.Outcome.String()
		if runErr != nil {
			outcome = "error"
		}
		if err := db.FinishRun(context.Background(), runID, outcome, res.Frames, res.Located); err != nil {
			logger.Warnw("failed to finalize run", "run", runID, "error", err)
		}
	}

	if runErr != nil {
		return report("Tracking failed", runErr, failedProcess(proc, dw))
	}

	printSummary(res, kind, resultLog.Path())

	switch {
	case res.Outcome == pipeline.OutcomeInterrupted:
		fmt.Fprintln(os.Stderr, "⏹️  Stopped on request.")
	case res.Outcome.Failed():
		return &exitError{code: 2, msg: "❌ " + failureMessage(res.Outcome)}
	}
	return nil
}

// openSource builds the configured source and reports the expected frame count (0 if unknown).
func openSource(ctx context.Context, opts TrackOptions) (source.Source, int, *utils.SafeCommand, error) {
	switch opts.Source {
	case sourceOpenCV:
		c, err := cv.OpenCapture(opts.InputPath)
		if err != nil {
			return nil, 0, nil, err
		}
		return c, c.FrameCount(), nil, nil
	case sourceDir:
		d, err := source.OpenDir(opts.InputPath)
		if err != nil {
			return nil, 0, nil, err
		}
		return d, d.Len(), nil, nil
	default:
		total := utils.GetTotalFrames(ctx, opts.InputPath)
		f, err := source.OpenFFmpeg(ctx, opts.InputPath, logger)
		if err != nil {
			return nil, 0, nil, err
		}
		return f, total, f.Command(), nil
	}
}

func startWorker(ctx context.Context, command string) (*worker.DetectorWorker, error) {
	cfg := worker.Config{Command: strings.Fields(command), JPEGQuality: 90}
	return worker.NewDetectorWorker(ctx, 0, cfg, logger)
}

// failedProcess picks the child whose stderr is worth showing.
func failedProcess(ffmpeg *utils.SafeCommand, w *worker.DetectorWorker) *utils.SafeCommand {
	if w != nil && w.Cmd.Stderr.Len() > 0 {
		return w.Cmd
	}
	return ffmpeg
}

// inputID identifies the input across runs: a content-stable hash for files,
// the raw reference for cameras.
func inputID(opts TrackOptions) string {
	if opts.Source == sourceOpenCV {
		if _, err := os.Stat(opts.InputPath); err != nil {
			return "camera:" + opts.InputPath
		}
	}
	id, err := utils.GenerateVideoID(opts.InputPath)
	if err != nil {
		return opts.InputPath
	}
	return id
}

func failureMessage(o pipeline.Outcome) string {
	switch o {
	case pipeline.OutcomeNoTarget:
		return "No target was detected before the stream ended."
	case pipeline.OutcomeSelectionAborted:
		return "ROI selection was cancelled."
	case pipeline.OutcomeDegenerateROI:
		return "The detector proposed an empty region; nothing to track."
	}
	return o.String()
}

func printSummary(res pipeline.Result, kind tracker.Kind, logPath string) {
	fmt.Fprintf(os.Stderr, "🏁 Tracking %s. %d frames, %d located (%s).\n", res.Outcome, res.Frames, res.Located, kind)
	if res.AcquiredAt >= 0 {
		fmt.Fprintf(os.Stderr, "   Acquired at frame %d: %s\n", res.AcquiredAt, res.InitialROI)
	}
	fmt.Fprintf(os.Stderr, "   Elapsed %s (%.1f frames/s). Log: %s\n", fmtTime(res.Elapsed.Seconds()), res.FPS(), logPath)
}

func fmtTime(seconds float64) string {
	duration := time.Duration(seconds * float64(time.Second))
	h := int(duration.Hours())
	m := int(duration.Minutes()) % 60
	s := int(duration.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// Package pipeline drives one ROI through a video: acquire a target
// (manually or by detection), then track it frame by frame, recording
// every frame's outcome under one contiguous index sequence.
package pipeline

import (
	"context"
	"io"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/andresmejia3/roitrack/internal/detect"
	"github.com/andresmejia3/roitrack/internal/record"
	"github.com/andresmejia3/roitrack/internal/source"
	"github.com/andresmejia3/roitrack/internal/tracker"
	"github.com/andresmejia3/roitrack/internal/types"
)

// Outcome says how a run ended.
type Outcome int

const (
	// OutcomeCompleted: the stream ended while tracking.
	OutcomeCompleted Outcome = iota
	// OutcomeInterrupted: a stop was requested between frames.
	OutcomeInterrupted
	// OutcomeNoTarget: the stream ended before any ROI was acquired.
	OutcomeNoTarget
	// OutcomeSelectionAborted: the manual selection came back empty.
	OutcomeSelectionAborted
	// OutcomeDegenerateROI: the detector proposed a non-null box with no area.
	OutcomeDegenerateROI
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeInterrupted:
		return "interrupted"
	case OutcomeNoTarget:
		return "no target acquired"
	case OutcomeSelectionAborted:
		return "selection aborted"
	case OutcomeDegenerateROI:
		return "degenerate roi"
	}
	return "unknown"
}

// Failed reports whether the run ended without ever tracking a target.
func (o Outcome) Failed() bool {
	return o == OutcomeNoTarget || o == OutcomeSelectionAborted || o == OutcomeDegenerateROI
}

// Selector is the manual ROI source. A zero-area answer means the user
// aborted the selection.
type Selector interface {
	Select(ctx context.Context, frame types.Frame) (types.ROI, error)
}

// FixedSelector answers every selection with the same ROI.
type FixedSelector types.ROI

// Select implements Selector.
func (s FixedSelector) Select(context.Context, types.Frame) (types.ROI, error) {
	return types.ROI(s), nil
}

// TrackerFactory builds the engine used once acquisition succeeds.
type TrackerFactory func() (tracker.Tracker, error)

// Result summarizes a run.
type Result struct {
	Outcome Outcome
	// Frames is the number of records written, which is also the number
	// of frames consumed.
	Frames     int
	Located    int
	AcquiredAt int
	InitialROI types.ROI
	Elapsed    time.Duration
}

// FPS returns the processing rate over the run.
func (r Result) FPS() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return float64(r.Frames) / r.Elapsed.Seconds()
}

// Pipeline holds the explicit run state: phase and next frame index.
// It is single-use and not safe for concurrent use.
type Pipeline struct {
	src        source.Source
	rec        record.Recorder
	newTracker TrackerFactory
	detector   detect.Detector
	selector   Selector
	logger     *zap.SugaredLogger
	clock      clock.Clock
	observers  []func(types.FrameRecord, types.Phase)

	phase   types.Phase
	next    int
	located int
	ran     bool
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithDetector selects automatic acquisition.
func WithDetector(d detect.Detector) Option {
	return func(p *Pipeline) { p.detector = d }
}

// WithSelector selects manual acquisition.
func WithSelector(s Selector) Option {
	return func(p *Pipeline) { p.selector = s }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithClock sets the clock used for Result.Elapsed.
func WithClock(c clock.Clock) Option {
	return func(p *Pipeline) { p.clock = c }
}

// WithObserver registers fn to be called after every record is written.
func WithObserver(fn func(types.FrameRecord, types.Phase)) Option {
	return func(p *Pipeline) { p.observers = append(p.observers, fn) }
}

// New wires a pipeline. Exactly one of WithDetector or WithSelector must be given.
func New(src source.Source, rec record.Recorder, newTracker TrackerFactory, opts ...Option) (*Pipeline, error) {
	p := &Pipeline{
		src:        src,
		rec:        rec,
		newTracker: newTracker,
		logger:     zap.NewNop().Sugar(),
		clock:      clock.New(),
		phase:      types.Acquiring,
	}
	for _, opt := range opts {
		opt(p)
	}
	switch {
	case src == nil:
		return nil, errors.New("pipeline: nil frame source")
	case rec == nil:
		return nil, errors.New("pipeline: nil recorder")
	case newTracker == nil:
		return nil, errors.New("pipeline: nil tracker factory")
	case p.detector == nil && p.selector == nil:
		return nil, errors.New("pipeline: need a detector or a selector")
	case p.detector != nil && p.selector != nil:
		return nil, errors.New("pipeline: detector and selector are mutually exclusive")
	}
	return p, nil
}

// Mode returns the acquisition mode.
func (p *Pipeline) Mode() types.Mode {
	if p.detector != nil {
		return types.Automatic
	}
	return types.Manual
}

// Phase returns the current phase.
func (p *Pipeline) Phase() types.Phase {
	return p.phase
}

// Run processes the stream until it ends, a stop is requested (ctx done),
// or a fatal error occurs. Per-frame misses and losses never surface as
// errors. The recorder is left open; closing it is the caller's job.
func (p *Pipeline) Run(ctx context.Context) (res Result, err error) {
	if p.ran {
		return Result{}, errors.New("pipeline: Run called twice")
	}
	p.ran = true

	start := p.clock.Now()
	res = Result{AcquiredAt: -1}
	defer func() {
		p.phase = types.Finished
		res.Frames = p.next
		res.Located = p.located
		res.Elapsed = p.clock.Since(start)
	}()

	p.logger.Infow("acquiring target", "mode", p.Mode())
	h, outcome, acquired, err := p.acquire(ctx)
	if err != nil {
		return res, err
	}
	if !acquired {
		res.Outcome = outcome
		p.logger.Infow("acquisition ended", "outcome", outcome, "frames", p.next)
		return res, nil
	}

	res.AcquiredAt = h.frame.Index
	res.InitialROI = h.roi
	p.phase = types.Tracking
	p.logger.Infow("target acquired", "frame", h.frame.Index, "roi", h.roi)

	res.Outcome, err = p.track(ctx, h)
	return res, err
}

type pullStatus int

const (
	pulled pullStatus = iota
	endOfStream
	stopped
)

// pull fetches the next frame and stamps it with the pipeline's index.
// The stop signal is only looked at here, between frames.
func (p *Pipeline) pull(ctx context.Context) (types.Frame, pullStatus, error) {
	if ctx.Err() != nil {
		return types.Frame{}, stopped, nil
	}
	f, err := p.src.Next(ctx)
	switch {
	case err == nil:
	case ctx.Err() != nil:
		// A stop kills subprocess sources, which then report a clean EOF.
		return types.Frame{}, stopped, nil
	case errors.Cause(err) == io.EOF:
		return types.Frame{}, endOfStream, nil
	default:
		return types.Frame{}, stopped, errors.Wrapf(err, "reading frame %d", p.next)
	}
	f.Index = p.next
	return f, pulled, nil
}

// emit writes one record and advances the frame counter.
func (p *Pipeline) emit(rec types.FrameRecord) error {
	if err := p.rec.Record(rec); err != nil {
		return errors.Wrapf(err, "recording frame %d", rec.Index)
	}
	p.next++
	if rec.Status == types.Located {
		p.located++
	}
	for _, fn := range p.observers {
		fn(rec, p.phase)
	}
	return nil
}

package pipeline

import (
	"context"

	"github.com/pkg/errors"

	"github.com/andresmejia3/roitrack/internal/tracker"
	"github.com/andresmejia3/roitrack/internal/types"
)

// track runs the Tracking phase. The tracker is initialized once on the
// hand-off frame and never again; the detector is not consulted.
func (p *Pipeline) track(ctx context.Context, h handoff) (Outcome, error) {
	trk, err := p.newTracker()
	if err != nil {
		return 0, p.failHandoff(h, errors.Wrap(err, "creating tracker"))
	}
	trk = tracker.Guard(trk)
	defer func() {
		if err := trk.Close(); err != nil {
			p.logger.Warnw("closing tracker", "error", err)
		}
	}()

	if err := trk.Init(h.frame, h.roi); err != nil {
		return 0, p.failHandoff(h, errors.Wrapf(err, "initializing tracker on frame %d", h.frame.Index))
	}
	if err := p.emit(types.LocatedRecord(h.frame.Index, h.roi)); err != nil {
		return 0, err
	}

	for {
		frame, status, err := p.pull(ctx)
		if err != nil {
			return 0, err
		}
		switch status {
		case endOfStream:
			p.logger.Infow("no more frames", "frames", p.next)
			return OutcomeCompleted, nil
		case stopped:
			p.logger.Infow("stop requested", "frames", p.next)
			return OutcomeInterrupted, nil
		}

		roi, ok := trk.Update(frame)
		rec := types.LostRecord(frame.Index)
		if ok {
			rec = types.LocatedRecord(frame.Index, roi)
		} else {
			p.logger.Debugw("tracking failure detected", "frame", frame.Index)
		}
		if err := p.emit(rec); err != nil {
			return 0, err
		}
	}
}

// failHandoff records the hand-off frame as lost before surfacing a fatal
// error, so the log still covers every frame that was consumed.
func (p *Pipeline) failHandoff(h handoff, cause error) error {
	if err := p.emit(types.LostRecord(h.frame.Index)); err != nil {
		return errors.Wrapf(cause, "also failed to record: %v", err)
	}
	return cause
}

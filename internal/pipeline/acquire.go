package pipeline

import (
	"context"

	"github.com/pkg/errors"

	"github.com/andresmejia3/roitrack/internal/types"
)

// handoff is the first (frame, roi) pair, used to seed the tracker.
type handoff struct {
	frame types.Frame
	roi   types.ROI
}

// acquire runs the Acquiring phase. It returns acquired=false with a
// terminal outcome when no usable ROI was found.
func (p *Pipeline) acquire(ctx context.Context) (handoff, Outcome, bool, error) {
	if p.detector != nil {
		return p.acquireAutomatic(ctx)
	}
	return p.acquireManual(ctx)
}

func (p *Pipeline) acquireManual(ctx context.Context) (handoff, Outcome, bool, error) {
	frame, status, err := p.pull(ctx)
	if err != nil {
		return handoff{}, 0, false, err
	}
	switch status {
	case endOfStream:
		return handoff{}, OutcomeNoTarget, false, nil
	case stopped:
		return handoff{}, OutcomeInterrupted, false, nil
	}

	roi, err := p.selector.Select(ctx, frame)
	if err != nil {
		return handoff{}, 0, false, errors.Wrap(err, "selecting roi")
	}
	if !roi.Valid() {
		p.logger.Infow("roi selection aborted", "frame", frame.Index, "roi", roi)
		if err := p.emit(types.LostRecord(frame.Index)); err != nil {
			return handoff{}, 0, false, err
		}
		return handoff{}, OutcomeSelectionAborted, false, nil
	}
	return handoff{frame: frame, roi: roi}, 0, true, nil
}

func (p *Pipeline) acquireAutomatic(ctx context.Context) (handoff, Outcome, bool, error) {
	for {
		frame, status, err := p.pull(ctx)
		if err != nil {
			return handoff{}, 0, false, err
		}
		switch status {
		case endOfStream:
			return handoff{}, OutcomeNoTarget, false, nil
		case stopped:
			return handoff{}, OutcomeInterrupted, false, nil
		}

		roi, found, err := p.detector.Detect(ctx, frame)
		if err != nil {
			if ctx.Err() != nil {
				// Stopped mid-call; the frame was still observed.
				if err := p.emit(types.LostRecord(frame.Index)); err != nil {
					return handoff{}, 0, false, err
				}
				return handoff{}, OutcomeInterrupted, false, nil
			}
			return handoff{}, 0, false, errors.Wrapf(err, "detecting on frame %d", frame.Index)
		}

		switch {
		case !found || roi.IsNull():
			p.logger.Debugw("no detection", "frame", frame.Index)
			if err := p.emit(types.LostRecord(frame.Index)); err != nil {
				return handoff{}, 0, false, err
			}
		case !roi.Valid():
			p.logger.Warnw("detector returned a degenerate roi", "frame", frame.Index, "roi", roi)
			if err := p.emit(types.LostRecord(frame.Index)); err != nil {
				return handoff{}, 0, false, err
			}
			return handoff{}, OutcomeDegenerateROI, false, nil
		default:
			return handoff{frame: frame, roi: roi}, 0, true, nil
		}
	}
}

package detect

import (
	"context"

	"github.com/pkg/errors"

	"github.com/andresmejia3/roitrack/internal/types"
)

// ErrModelLoad is returned by detector constructors whose model cannot be
// loaded. It is terminal for the whole run.
var ErrModelLoad = errors.New("detector model failed to load")

// Detector proposes a target region for a single frame. Implementations
// keep no history between calls and never write to the frame.
type Detector interface {
	// Detect returns the best candidate and true, or false when the frame
	// holds nothing. A non-nil error means the detector itself is broken.
	Detect(ctx context.Context, frame types.Frame) (types.ROI, bool, error)
}

// Candidate is one proposed region with its confidence.
type Candidate struct {
	ROI   types.ROI
	Score float64
}

// Best returns the highest scoring candidate. The first one wins ties, so
// detectors that report no scores yield their first hit.
func Best(candidates []Candidate) (Candidate, bool) {
	if len(candidates) == 0 {
		return Candidate{}, false
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.Score > best.Score {
			best = c
		}
	}
	return best, true
}

// Func adapts a plain function into a Detector.
type Func func(ctx context.Context, frame types.Frame) ([]Candidate, error)

// Detect implements Detector.
func (f Func) Detect(ctx context.Context, frame types.Frame) (types.ROI, bool, error) {
	candidates, err := f(ctx, frame)
	if err != nil {
		return types.NullROI, false, err
	}
	best, ok := Best(candidates)
	if !ok {
		return types.NullROI, false, nil
	}
	return best.ROI, true, nil
}

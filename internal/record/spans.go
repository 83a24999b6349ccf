package record

import (
	"go.uber.org/multierr"

	"github.com/andresmejia3/roitrack/internal/types"
)

// Span is a maximal run of consecutive Located frames, inclusive on both ends.
type Span struct {
	Start int
	End   int
}

// Frames returns the number of frames covered by the span.
func (s Span) Frames() int {
	return s.End - s.Start + 1
}

// Spans folds records into contiguous located intervals.
func Spans(records []types.FrameRecord) []Span {
	var spans []Span
	open := false
	for _, rec := range records {
		if rec.Status != types.Located {
			open = false
			continue
		}
		if open && spans[len(spans)-1].End == rec.Index-1 {
			spans[len(spans)-1].End = rec.Index
			continue
		}
		spans = append(spans, Span{Start: rec.Index, End: rec.Index})
		open = true
	}
	return spans
}

// Recorder receives every frame outcome in order.
type Recorder interface {
	Record(rec types.FrameRecord) error
}

type tee []Recorder

// Tee fans each record out to all recorders. Every recorder sees every
// record; failures are combined.
func Tee(recorders ...Recorder) Recorder {
	out := make(tee, 0, len(recorders))
	for _, r := range recorders {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

func (t tee) Record(rec types.FrameRecord) error {
	var err error
	for _, r := range t {
		err = multierr.Append(err, r.Record(rec))
	}
	return err
}

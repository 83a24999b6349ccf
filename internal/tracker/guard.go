package tracker

import (
	"github.com/pkg/errors"

	"github.com/andresmejia3/roitrack/internal/types"
)

type guarded struct {
	Tracker
	initialized bool
}

// Guard wraps t so that calling Update before Init panics and a second
// Init is rejected.
func Guard(t Tracker) Tracker {
	if g, ok := t.(*guarded); ok {
		return g
	}
	return &guarded{Tracker: t}
}

func (g *guarded) Init(frame types.Frame, roi types.ROI) error {
	if g.initialized {
		return errors.New("tracker already initialized")
	}
	if !roi.Valid() {
		return errors.Wrapf(ErrInitFailed, "roi %s has no area", roi)
	}
	if err := g.Tracker.Init(frame, roi); err != nil {
		if errors.Is(err, ErrInitFailed) {
			return err
		}
		return errors.Wrapf(ErrInitFailed, "%v", err)
	}
	g.initialized = true
	return nil
}

func (g *guarded) Update(frame types.Frame) (types.ROI, bool) {
	if !g.initialized {
		panic("tracker: Update called before Init")
	}
	roi, ok := g.Tracker.Update(frame)
	if !ok || !roi.Valid() {
		return types.NullROI, false
	}
	return roi, true
}

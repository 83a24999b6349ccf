// Package cv binds the pipeline's interfaces to OpenCV through gocv:
// tracking engines, Haar cascade detection, capture devices and the
// interactive ROI window.
package cv

import (
	"image"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
	"gocv.io/x/gocv/contrib"

	"github.com/andresmejia3/roitrack/internal/tracker"
	"github.com/andresmejia3/roitrack/internal/types"
)

// Register adds every engine this OpenCV build provides. Boosting, TLD,
// MedianFlow and GOTURN live in OpenCV's legacy module, which gocv does
// not bind; the registry substitutes the default for them.
func Register(reg *tracker.Registry) {
	reg.Register(tracker.MIL, func() (tracker.Tracker, error) { return wrap(gocv.NewTrackerMIL()), nil })
	reg.Register(tracker.KCF, func() (tracker.Tracker, error) { return wrap(contrib.NewTrackerKCF()), nil })
	reg.Register(tracker.CSRT, func() (tracker.Tracker, error) { return wrap(contrib.NewTrackerCSRT()), nil })
}

// matTracker adapts a gocv.Tracker to tracker.Tracker.
type matTracker struct {
	t gocv.Tracker
}

func wrap(t gocv.Tracker) *matTracker {
	return &matTracker{t: t}
}

func (m *matTracker) Init(frame types.Frame, roi types.ROI) error {
	mat, err := toMat(frame)
	if err != nil {
		return err
	}
	defer mat.Close()
	if !m.t.Init(mat, clip(roi.Rect(), mat)) {
		return errors.Wrapf(tracker.ErrInitFailed, "opencv rejected roi %s", roi)
	}
	return nil
}

func (m *matTracker) Update(frame types.Frame) (types.ROI, bool) {
	mat, err := toMat(frame)
	if err != nil {
		return types.NullROI, false
	}
	defer mat.Close()
	rect, ok := m.t.Update(mat)
	if !ok {
		return types.NullROI, false
	}
	return types.ROIFromRect(rect), true
}

func (m *matTracker) Close() error {
	return m.t.Close()
}

// toMat copies a frame into a new Mat that the caller must Close.
func toMat(frame types.Frame) (gocv.Mat, error) {
	if frame.Image == nil {
		return gocv.Mat{}, errors.Errorf("frame %d has no image", frame.Index)
	}
	mat, err := gocv.ImageToMatRGB(frame.Image)
	if err != nil {
		return gocv.Mat{}, errors.Wrapf(err, "converting frame %d", frame.Index)
	}
	return mat, nil
}

// clip keeps rect inside the image; OpenCV trackers assert on boxes that
// leave the frame.
func clip(rect image.Rectangle, mat gocv.Mat) image.Rectangle {
	return rect.Intersect(image.Rect(0, 0, mat.Cols(), mat.Rows()))
}

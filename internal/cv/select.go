package cv

import (
	"context"

	"gocv.io/x/gocv"

	"github.com/andresmejia3/roitrack/internal/types"
)

// WindowSelector lets the user drag a box over the first frame.
// Pressing ESC or c returns an empty selection.
type WindowSelector struct {
	Title string
}

// Select implements pipeline.Selector.
func (w WindowSelector) Select(_ context.Context, frame types.Frame) (types.ROI, error) {
	title := w.Title
	if title == "" {
		title = "tracking"
	}
	mat, err := toMat(frame)
	if err != nil {
		return types.NullROI, err
	}
	defer mat.Close()

	// Display order is BGR.
	gocv.CvtColor(mat, &mat, gocv.ColorRGBToBGR)

	window := gocv.NewWindow(title)
	defer window.Close()

	rect := gocv.SelectROI(title, mat)
	return types.ROIFromRect(rect), nil
}

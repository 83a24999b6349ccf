package cv

import (
	"context"
	"os"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"

	"github.com/andresmejia3/roitrack/internal/detect"
	"github.com/andresmejia3/roitrack/internal/types"
)

// CascadeDetector finds targets with a Haar/LBP cascade classifier.
// Cascades give no confidence, so the largest box wins.
type CascadeDetector struct {
	classifier gocv.CascadeClassifier
}

// LoadCascade reads the classifier XML at path. Failure is detect.ErrModelLoad.
func LoadCascade(path string) (*CascadeDetector, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, errors.Wrapf(detect.ErrModelLoad, "%s: %v", path, err)
	}
	classifier := gocv.NewCascadeClassifier()
	if !classifier.Load(path) {
		classifier.Close()
		return nil, errors.Wrapf(detect.ErrModelLoad, "error reading cascade file: %s", path)
	}
	return &CascadeDetector{classifier: classifier}, nil
}

// Detect implements detect.Detector.
func (c *CascadeDetector) Detect(ctx context.Context, frame types.Frame) (types.ROI, bool, error) {
	return detect.Func(c.candidates).Detect(ctx, frame)
}

func (c *CascadeDetector) candidates(_ context.Context, frame types.Frame) ([]detect.Candidate, error) {
	mat, err := toMat(frame)
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(mat, &gray, gocv.ColorRGBToGray)

	rects := c.classifier.DetectMultiScale(gray)
	out := make([]detect.Candidate, 0, len(rects))
	for _, r := range rects {
		out = append(out, detect.Candidate{
			ROI:   types.ROIFromRect(r),
			Score: float64(r.Dx() * r.Dy()),
		})
	}
	return out, nil
}

// Close releases the classifier.
func (c *CascadeDetector) Close() error {
	return c.classifier.Close()
}

package cv

import (
	"context"
	"io"
	"os"
	"strconv"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"

	"github.com/andresmejia3/roitrack/internal/source"
	"github.com/andresmejia3/roitrack/internal/types"
)

// Capture reads frames from a video file or camera through OpenCV.
type Capture struct {
	capture *gocv.VideoCapture
	mat     gocv.Mat
	next    int
}

// OpenCapture opens device: an existing path is a file, otherwise a camera ID.
func OpenCapture(device string) (*Capture, error) {
	var (
		capture *gocv.VideoCapture
		err     error
	)
	if _, statErr := os.Stat(device); statErr == nil {
		capture, err = gocv.VideoCaptureFile(device)
	} else {
		id, convErr := strconv.Atoi(device)
		if convErr != nil {
			return nil, errors.Wrapf(source.ErrOpen, "%s is neither a file nor a camera ID", device)
		}
		capture, err = gocv.VideoCaptureDevice(id)
	}
	if err != nil {
		return nil, errors.Wrapf(source.ErrOpen, "%s: %v", device, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, errors.Wrapf(source.ErrOpen, "open video failed: %s", device)
	}
	return &Capture{capture: capture, mat: gocv.NewMat()}, nil
}

// FrameCount returns the container's frame count, 0 when unknown (cameras).
func (c *Capture) FrameCount() int {
	n := int(c.capture.Get(gocv.VideoCaptureFrameCount))
	if n < 0 {
		return 0
	}
	return n
}

// Next reads one frame. An empty read is the end of the stream.
func (c *Capture) Next(ctx context.Context) (types.Frame, error) {
	if err := ctx.Err(); err != nil {
		return types.Frame{}, err
	}
	if ok := c.capture.Read(&c.mat); !ok || c.mat.Empty() {
		return types.Frame{}, io.EOF
	}
	img, err := c.mat.ToImage()
	if err != nil {
		return types.Frame{}, errors.Wrapf(err, "converting frame %d", c.next)
	}
	f := types.Frame{Index: c.next, Image: img}
	c.next++
	return f, nil
}

// Close releases the device and the scratch Mat.
func (c *Capture) Close() error {
	c.mat.Close()
	return c.capture.Close()
}

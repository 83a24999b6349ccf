package types

import (
	"fmt"
	"image"
)

// Frame is a single decoded video sample. The pipeline owns it for one
// iteration only; nothing may write to Image.
type Frame struct {
	Index int
	Image image.Image
}

// Width returns the frame width in pixels, 0 for an empty frame.
func (f Frame) Width() int {
	if f.Image == nil {
		return 0
	}
	return f.Image.Bounds().Dx()
}

// Height returns the frame height in pixels, 0 for an empty frame.
func (f Frame) Height() int {
	if f.Image == nil {
		return 0
	}
	return f.Image.Bounds().Dy()
}

// ROI is an axis-aligned region of interest in frame pixel coordinates.
type ROI struct {
	X      int `yaml:"x"`
	Y      int `yaml:"y"`
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// NullROI marks "no target located".
var NullROI = ROI{}

// Valid reports whether the region has a positive area.
func (r ROI) Valid() bool {
	return r.Width > 0 && r.Height > 0
}

// IsNull reports whether every field is zero.
func (r ROI) IsNull() bool {
	return r == NullROI
}

// Rect converts the ROI to an image.Rectangle.
func (r ROI) Rect() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height)
}

func (r ROI) String() string {
	return fmt.Sprintf("(%d,%d %dx%d)", r.X, r.Y, r.Width, r.Height)
}

// ROIFromRect converts an image.Rectangle into an ROI. The rectangle is
// canonicalized first so inverted corners still give a positive size.
func ROIFromRect(rect image.Rectangle) ROI {
	rect = rect.Canon()
	return ROI{X: rect.Min.X, Y: rect.Min.Y, Width: rect.Dx(), Height: rect.Dy()}
}

// Status is the per-frame outcome.
type Status int

const (
	Lost Status = iota
	Located
)

func (s Status) String() string {
	if s == Located {
		return "located"
	}
	return "lost"
}

// FrameRecord is the durable outcome of one processed frame.
type FrameRecord struct {
	Index  int
	ROI    ROI
	Status Status
}

// LocatedRecord builds a record for a frame where the target was found.
func LocatedRecord(index int, roi ROI) FrameRecord {
	return FrameRecord{Index: index, ROI: roi, Status: Located}
}

// LostRecord builds a record for a frame with no target. The ROI is always null.
func LostRecord(index int) FrameRecord {
	return FrameRecord{Index: index, ROI: NullROI, Status: Lost}
}

// Phase is the pipeline-wide state.
type Phase int

const (
	Acquiring Phase = iota
	Tracking
	Finished
)

func (p Phase) String() string {
	switch p {
	case Acquiring:
		return "acquiring"
	case Tracking:
		return "tracking"
	case Finished:
		return "finished"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// Mode selects how the first ROI is obtained.
type Mode int

const (
	Manual Mode = iota
	Automatic
)

func (m Mode) String() string {
	if m == Automatic {
		return "automatic"
	}
	return "manual"
}

package record

import (
	"bufio"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/andresmejia3/roitrack/internal/types"
)

// ErrOutOfOrder is returned when a record would break the 0,1,2,... sequence.
var ErrOutOfOrder = errors.New("frame record out of order")

// Options controls how a log file is opened.
type Options struct {
	// Append keeps existing runs and adds this run after them.
	Append bool
	// Sync fsyncs after every line instead of only flushing to the OS.
	Sync bool
}

// Log is the per-frame result file: one "index x y width height" line per
// processed frame. Every Record call reaches the OS before it returns.
type Log struct {
	f      *os.File
	w      *bufio.Writer
	sync   bool
	next   int
	closed bool
}

// Open creates (or truncates, or appends to) the log at path.
func Open(path string, opts Options) (*Log, error) {
	flags := os.O_CREATE | os.O_WRONLY
	if opts.Append {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, "opening result log %s", path)
	}
	return &Log{f: f, w: bufio.NewWriter(f), sync: opts.Sync}, nil
}

// Path returns the file name the log writes to.
func (l *Log) Path() string {
	return l.f.Name()
}

// Count returns the number of records written in this run.
func (l *Log) Count() int {
	return l.next
}

// Record appends one line and flushes it.
func (l *Log) Record(rec types.FrameRecord) error {
	if l.closed {
		return errors.New("result log is closed")
	}
	if rec.Index != l.next {
		return errors.Wrapf(ErrOutOfOrder, "got frame %d, expected %d", rec.Index, l.next)
	}
	if _, err := l.w.WriteString(FormatLine(rec)); err != nil {
		return errors.Wrap(err, "writing result log")
	}
	if err := l.w.Flush(); err != nil {
		return errors.Wrap(err, "flushing result log")
	}
	if l.sync {
		if err := l.f.Sync(); err != nil {
			return errors.Wrap(err, "syncing result log")
		}
	}
	l.next++
	return nil
}

// Close flushes and closes the file. Calling it more than once is a no-op.
func (l *Log) Close() error {
	if l.closed {
		return nil
	}
	l.closed = true
	return multierr.Combine(l.w.Flush(), l.f.Close())
}

// FormatLine renders a record in the log format, newline included. Lost
// records are always written with a zero box.
func FormatLine(rec types.FrameRecord) string {
	roi := rec.ROI
	if rec.Status != types.Located {
		roi = types.NullROI
	}
	return fmt.Sprintf("%d %d %d %d %d\n", rec.Index, roi.X, roi.Y, roi.Width, roi.Height)
}

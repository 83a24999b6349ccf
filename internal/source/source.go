package source

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/andresmejia3/roitrack/internal/types"
	"github.com/andresmejia3/roitrack/internal/utils"
)

const megabyte = 1024 * 1024

// ErrOpen marks a source that could not be opened at all.
var ErrOpen = errors.New("cannot open frame source")

// Source hands out frames in order. Next returns io.EOF once the stream
// is exhausted. Frames are never replayed.
type Source interface {
	Next(ctx context.Context) (types.Frame, error)
	Close() error
}

// MJPEG decodes a concatenated JPEG stream (ffmpeg image2pipe output).
type MJPEG struct {
	scanner *bufio.Scanner
	next    int
}

// NewMJPEG reads JPEG frames from r.
func NewMJPEG(r io.Reader) *MJPEG {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, megabyte), 64*megabyte)
	scanner.Split(utils.SplitJpeg)
	return &MJPEG{scanner: scanner}
}

// Next decodes the next frame.
func (m *MJPEG) Next(ctx context.Context) (types.Frame, error) {
	if err := ctx.Err(); err != nil {
		return types.Frame{}, err
	}
	if !m.scanner.Scan() {
		if err := m.scanner.Err(); err != nil {
			return types.Frame{}, errors.Wrap(err, "frame scanner failed")
		}
		return types.Frame{}, io.EOF
	}
	img, err := imaging.Decode(bytes.NewReader(m.scanner.Bytes()))
	if err != nil {
		return types.Frame{}, errors.Wrapf(err, "decoding frame %d", m.next)
	}
	f := types.Frame{Index: m.next, Image: img}
	m.next++
	return f, nil
}

// Close is a no-op; the reader belongs to the caller.
func (m *MJPEG) Close() error { return nil }

// FFmpeg streams frames from any input ffmpeg can decode.
type FFmpeg struct {
	*MJPEG
	cmd    *utils.SafeCommand
	stdout io.ReadCloser
	logger *zap.SugaredLogger
}

// OpenFFmpeg starts ffmpeg on inputPath. The process is killed when ctx ends.
func OpenFFmpeg(ctx context.Context, inputPath string, logger *zap.SugaredLogger) (*FFmpeg, error) {
	cmd := utils.NewFFmpegCmd(ctx, inputPath)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.Wrapf(ErrOpen, "ffmpeg stdout pipe: %v", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, errors.Wrapf(ErrOpen, "starting ffmpeg: %v", err)
	}
	logger.Debugw("ffmpeg started", "input", inputPath, "pid", cmd.Process.Pid)
	return &FFmpeg{MJPEG: NewMJPEG(stdout), cmd: cmd, stdout: stdout, logger: logger}, nil
}

// Command exposes the ffmpeg process so its stderr can be shown on failure.
func (f *FFmpeg) Command() *utils.SafeCommand {
	return f.cmd
}

// Close stops reading and reaps ffmpeg. A stream closed before its end
// makes ffmpeg exit with a broken pipe, which is not reported.
func (f *FFmpeg) Close() error {
	err := f.stdout.Close()
	if waitErr := f.cmd.Wait(); waitErr != nil && f.cmd.ProcessState != nil && !f.cmd.ProcessState.Success() {
		f.logger.Debugw("ffmpeg exited", "error", waitErr, "stderr", f.cmd.Stderr.String())
	}
	return err
}

// Nth passes through every nth frame of src and drops the rest. Kept
// frames are renumbered from 0 so the pipeline sees a dense sequence.
type Nth struct {
	src  Source
	n    int
	next int
}

// EveryNth wraps src. n <= 1 returns src unchanged.
func EveryNth(src Source, n int) Source {
	if n <= 1 {
		return src
	}
	return &Nth{src: src, n: n}
}

// Next skips n-1 frames and returns the following one.
func (s *Nth) Next(ctx context.Context) (types.Frame, error) {
	for {
		f, err := s.src.Next(ctx)
		if err != nil {
			return types.Frame{}, err
		}
		if f.Index%s.n != 0 {
			continue
		}
		f.Index = s.next
		s.next++
		return f, nil
	}
}

// Close closes the wrapped source.
func (s *Nth) Close() error {
	return s.src.Close()
}

// Dir serves the image files of a directory in name order.
type Dir struct {
	paths []string
	pos   int
}

var imageExts = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".bmp": true, ".gif": true, ".tif": true, ".tiff": true,
}

// OpenDir lists the images under dir. Other files are ignored.
func OpenDir(dir string) (*Dir, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(ErrOpen, "%s: %v", dir, err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || !imageExts[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)
	if len(paths) == 0 {
		return nil, errors.Wrapf(ErrOpen, "%s: no images", dir)
	}
	return &Dir{paths: paths}, nil
}

// Len returns the number of frames in the directory.
func (d *Dir) Len() int {
	return len(d.paths)
}

// Next decodes the next image or returns io.EOF.
func (d *Dir) Next(ctx context.Context) (types.Frame, error) {
	if err := ctx.Err(); err != nil {
		return types.Frame{}, err
	}
	if d.pos >= len(d.paths) {
		return types.Frame{}, io.EOF
	}
	img, err := imaging.Open(d.paths[d.pos])
	if err != nil {
		return types.Frame{}, errors.Wrapf(err, "decoding frame %d", d.pos)
	}
	f := types.Frame{Index: d.pos, Image: img}
	d.pos++
	return f, nil
}

// Close is a no-op.
func (d *Dir) Close() error { return nil }

package worker

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/andresmejia3/roitrack/internal/detect"
	"github.com/andresmejia3/roitrack/internal/types"
	"github.com/andresmejia3/roitrack/internal/utils"
)

// Wire protocol, all integers big endian.
//
//	request:  [len uint32][jpeg]
//	response: [len uint32][status byte][body]
//	  status 0: [n uint32] n × ([x y w h int32][score float32])
//	  status 1: [msgLen uint32][msg]
//
// Right after start the worker sends one response with an empty detection
// list (status 0) once its model is loaded, or status 1 if loading failed.
const (
	statusOK    = 0
	statusError = 1
)

// Config describes how to launch a detector worker.
type Config struct {
	// Command is the program and its arguments, e.g. python3 -u detect.py.
	Command []string
	// JPEGQuality used when shipping frames to the worker.
	JPEGQuality int
}

// LogicError is a per-frame failure reported by the worker. The worker is
// still healthy after one.
type LogicError struct {
	Msg string
}

func (e *LogicError) Error() string {
	return "detector worker error: " + e.Msg
}

// DetectorWorker runs a detection model in a child process and implements
// detect.Detector over a length-prefixed pipe protocol.
type DetectorWorker struct {
	ID       int
	Cmd      *utils.SafeCommand
	Stdin    io.WriteCloser
	DataPipe io.ReadCloser
	quality  int
	logger   *zap.SugaredLogger
}

// NewDetectorWorker starts the worker and waits for its model to load.
// A load failure is reported as detect.ErrModelLoad.
func NewDetectorWorker(ctx context.Context, id int, cfg Config, logger *zap.SugaredLogger) (*DetectorWorker, error) {
	if len(cfg.Command) == 0 {
		return nil, errors.New("detector worker command is empty")
	}
	proc := utils.NewSafeCommand(ctx, cfg.Command[0], cfg.Command[1:]...)

	// Side-channel pipe (FD 3) keeps results apart from anything the model prints.
	r, w, err := os.Pipe()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create pipe")
	}
	proc.Cmd.ExtraFiles = []*os.File{w}

	stdin, err := proc.StdinPipe()
	if err != nil {
		w.Close()
		r.Close()
		return nil, errors.Wrap(err, "failed to create stdin pipe")
	}

	if err := proc.Start(); err != nil {
		w.Close()
		r.Close()
		return nil, errors.Wrapf(err, "worker %d failed to start", id)
	}

	// Only the child holds the write end now.
	w.Close()

	quality := cfg.JPEGQuality
	if quality <= 0 || quality > 100 {
		quality = 90
	}
	dw := &DetectorWorker{ID: id, Cmd: proc, Stdin: stdin, DataPipe: r, quality: quality, logger: logger}

	if err := dw.awaitReady(); err != nil {
		dw.Close()
		return nil, err
	}
	logger.Debugw("detector worker ready", "id", id, "pid", proc.Process.Pid)
	return dw, nil
}

func (w *DetectorWorker) awaitReady() error {
	body, err := w.readFrame()
	if err != nil {
		return errors.Wrapf(detect.ErrModelLoad, "worker %d exited before ready: %v", w.ID, err)
	}
	if _, err := decodeResponse(body); err != nil {
		return errors.Wrapf(detect.ErrModelLoad, "worker %d: %v", w.ID, err)
	}
	return nil
}

// Detect ships the frame to the worker and returns its best candidate. A
// per-frame worker error counts as a miss; a broken pipe is fatal.
func (w *DetectorWorker) Detect(ctx context.Context, frame types.Frame) (types.ROI, bool, error) {
	if err := ctx.Err(); err != nil {
		return types.NullROI, false, err
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, frame.Image, imaging.JPEG, imaging.JPEGQuality(w.quality)); err != nil {
		return types.NullROI, false, errors.Wrapf(err, "encoding frame %d", frame.Index)
	}
	candidates, err := w.ProcessFrame(buf.Bytes())
	if err != nil {
		var logicErr *LogicError
		if errors.As(err, &logicErr) {
			w.logger.Warnw("detector worker rejected frame", "frame", frame.Index, "error", logicErr.Msg)
			return types.NullROI, false, nil
		}
		return types.NullROI, false, errors.Wrapf(err, "worker %d", w.ID)
	}
	best, ok := detect.Best(candidates)
	if !ok {
		return types.NullROI, false, nil
	}
	return best.ROI, true, nil
}

// ProcessFrame sends one encoded frame and decodes the reply.
func (w *DetectorWorker) ProcessFrame(data []byte) ([]detect.Candidate, error) {
	if err := binary.Write(w.Stdin, binary.BigEndian, uint32(len(data))); err != nil {
		return nil, err
	}
	if _, err := w.Stdin.Write(data); err != nil {
		return nil, err
	}
	body, err := w.readFrame()
	if err != nil {
		return nil, err
	}
	return decodeResponse(body)
}

func (w *DetectorWorker) readFrame() ([]byte, error) {
	header := make([]byte, 4)
	if _, err := io.ReadFull(w.DataPipe, header); err != nil {
		return nil, err
	}
	body := make([]byte, binary.BigEndian.Uint32(header))
	if _, err := io.ReadFull(w.DataPipe, body); err != nil {
		return nil, err
	}
	return body, nil
}

type wireBox struct {
	Box   [4]int32
	Score float32
}

func decodeResponse(body []byte) ([]detect.Candidate, error) {
	r := bytes.NewReader(body)
	status, err := r.ReadByte()
	if err != nil {
		return nil, errors.New("empty response from worker")
	}
	switch status {
	case statusOK:
		var n uint32
		if err := binary.Read(r, binary.BigEndian, &n); err != nil {
			return nil, errors.Wrap(err, "reading candidate count")
		}
		if int64(n)*20 > int64(r.Len()) {
			return nil, errors.Errorf("candidate count %d exceeds payload", n)
		}
		out := make([]detect.Candidate, 0, n)
		for i := uint32(0); i < n; i++ {
			var wb wireBox
			if err := binary.Read(r, binary.BigEndian, &wb); err != nil {
				return nil, errors.Wrapf(err, "reading candidate %d", i)
			}
			out = append(out, detect.Candidate{
				ROI:   types.ROI{X: int(wb.Box[0]), Y: int(wb.Box[1]), Width: int(wb.Box[2]), Height: int(wb.Box[3])},
				Score: float64(wb.Score),
			})
		}
		return out, nil
	case statusError:
		var msgLen uint32
		if err := binary.Read(r, binary.BigEndian, &msgLen); err != nil {
			return nil, errors.Wrap(err, "reading error length")
		}
		msg := make([]byte, msgLen)
		if _, err := io.ReadFull(r, msg); err != nil {
			return nil, errors.Wrap(err, "reading error message")
		}
		return nil, &LogicError{Msg: string(msg)}
	}
	return nil, fmt.Errorf("unknown worker status %d", status)
}

// Close shuts the worker's pipes and waits for it to exit.
func (w *DetectorWorker) Close() error {
	err := multierr.Combine(w.Stdin.Close(), w.DataPipe.Close())
	if w.Cmd != nil {
		if waitErr := w.Cmd.Wait(); waitErr != nil {
			w.logger.Debugw("detector worker exited", "id", w.ID, "error", waitErr)
		}
	}
	return err
}

package record

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/andresmejia3/roitrack/internal/types"
)

// Run is one pipeline run read back from a log.
type Run []types.FrameRecord

// DamagedError lists log lines that were skipped because they were torn or
// did not continue their run. The runs returned with it hold every record
// that could be read.
type DamagedError struct {
	Lines []int
}

func (e *DamagedError) Error() string {
	return fmt.Sprintf("result log: %d damaged line(s), first at line %d", len(e.Lines), e.Lines[0])
}

// Read parses a result log. A record with index 0 starts a new run, so a
// file built with appends yields one Run per pipeline invocation. Damaged
// lines are skipped, as is the rest of their run, and reported as a
// *DamagedError next to the readable runs.
func Read(r io.Reader) ([]Run, error) {
	var runs []Run
	var damaged []int
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		rec, err := ParseLine(line)
		if err != nil {
			damaged = append(damaged, lineNo)
			continue
		}
		if rec.Index == 0 {
			runs = append(runs, nil)
		} else if len(runs) == 0 || rec.Index != len(runs[len(runs)-1]) {
			damaged = append(damaged, lineNo)
			continue
		}
		runs[len(runs)-1] = append(runs[len(runs)-1], rec)
	}
	if err := scanner.Err(); err != nil {
		return runs, errors.Wrap(err, "reading result log")
	}
	if len(damaged) > 0 {
		return runs, &DamagedError{Lines: damaged}
	}
	return runs, nil
}

// ReadFile is Read on a named file.
func ReadFile(path string) ([]Run, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(f)
}

// ParseLine decodes one "index x y width height" line.
func ParseLine(line string) (types.FrameRecord, error) {
	fields := strings.Fields(line)
	if len(fields) != 5 {
		return types.FrameRecord{}, errors.Errorf("expected 5 fields, got %d", len(fields))
	}
	var v [5]int
	for i, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil {
			return types.FrameRecord{}, errors.Wrapf(err, "field %d", i)
		}
		v[i] = n
	}
	roi := types.ROI{X: v[1], Y: v[2], Width: v[3], Height: v[4]}
	if roi.IsNull() {
		return types.LostRecord(v[0]), nil
	}
	return types.LocatedRecord(v[0], roi), nil
}

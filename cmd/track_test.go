package cmd

import (
	"bufio"
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andresmejia3/roitrack/internal/config"
	"github.com/andresmejia3/roitrack/internal/pipeline"
	"github.com/andresmejia3/roitrack/internal/record"
	"github.com/andresmejia3/roitrack/internal/types"
)

func TestFmtTime(t *testing.T) {
	tests := []struct {
		seconds float64
		want    string
	}{
		{0, "00:00:00"},
		{65, "00:01:05"},
		{3661, "01:01:01"},
	}

	for _, tt := range tests {
		if got := fmtTime(tt.seconds); got != tt.want {
			t.Errorf("fmtTime(%v) = %v, want %v", tt.seconds, got, tt.want)
		}
	}
}

func TestValidateTrackOptions(t *testing.T) {
	tmpDir := t.TempDir()
	video := filepath.Join(tmpDir, "video.mp4")
	require.NoError(t, os.WriteFile(video, []byte("not really a video"), 0644))

	base := func(mod func(*TrackOptions)) TrackOptions {
		o := TrackOptions{InputPath: video, NthFrame: 1, OutputPath: "roi.log", ROI: "1,2,3,4"}
		if mod != nil {
			mod(&o)
		}
		return o
	}

	tests := []struct {
		name    string
		opts    TrackOptions
		wantErr bool
	}{
		{"Manual ROI", base(nil), false},
		{"Selection window", base(func(o *TrackOptions) { o.ROI = ""; o.Select = true }), false},
		{"Cascade", base(func(o *TrackOptions) { o.ROI = ""; o.CascadePath = "face.xml" }), false},
		{"Worker", base(func(o *TrackOptions) { o.ROI = ""; o.WorkerCmd = "python3 detect.py" }), false},
		{"Directory source", base(func(o *TrackOptions) { o.InputPath = tmpDir; o.Source = sourceDir }), false},
		{"Camera ID", base(func(o *TrackOptions) { o.InputPath = "0"; o.Source = sourceOpenCV }), false},
		{"Missing input", base(func(o *TrackOptions) { o.InputPath = "" }), true},
		{"Input does not exist", base(func(o *TrackOptions) { o.InputPath = "nonexistent.mp4" }), true},
		{"Directory with ffmpeg", base(func(o *TrackOptions) { o.InputPath = tmpDir }), true},
		{"File with dir source", base(func(o *TrackOptions) { o.Source = sourceDir }), true},
		{"Unknown source", base(func(o *TrackOptions) { o.Source = "gstreamer" }), true},
		{"Invalid NthFrame", base(func(o *TrackOptions) { o.NthFrame = 0 }), true},
		{"Empty output", base(func(o *TrackOptions) { o.OutputPath = "" }), true},
		{"No acquisition", base(func(o *TrackOptions) { o.ROI = "" }), true},
		{"ROI and select", base(func(o *TrackOptions) { o.Select = true }), true},
		{"Detector and ROI", base(func(o *TrackOptions) { o.CascadePath = "face.xml" }), true},
		{"Cascade and worker", base(func(o *TrackOptions) { o.ROI = ""; o.CascadePath = "face.xml"; o.WorkerCmd = "detect" }), true},
		{"Blank worker", base(func(o *TrackOptions) { o.ROI = ""; o.WorkerCmd = "   " }), true},
		{"Malformed ROI", base(func(o *TrackOptions) { o.ROI = "1,2,3" }), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateTrackOptions(&tt.opts)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateTrackOptions() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateTrackOptionsDefaultsSource(t *testing.T) {
	video := filepath.Join(t.TempDir(), "video.mp4")
	require.NoError(t, os.WriteFile(video, nil, 0644))

	opts := TrackOptions{InputPath: video, NthFrame: 1, OutputPath: "roi.log", Select: true}
	require.NoError(t, validateTrackOptions(&opts))
	assert.Equal(t, sourceFFmpeg, opts.Source)
}

func newConfigTestCmd(opts *TrackOptions) *cobra.Command {
	c := &cobra.Command{Use: "track"}
	c.Flags().StringVarP(&opts.Tracker, "tracker", "k", "KCF", "")
	c.Flags().StringVarP(&opts.CascadePath, "model", "m", "", "")
	c.Flags().StringVarP(&opts.WorkerCmd, "worker", "w", "", "")
	c.Flags().StringVar(&opts.ROI, "roi", "", "")
	c.Flags().BoolVar(&opts.Select, "select", false, "")
	c.Flags().StringVarP(&opts.OutputPath, "output", "o", "roi.log", "")
	c.Flags().IntVarP(&opts.NthFrame, "nth-frame", "n", 1, "")
	return c
}

func TestApplyConfig(t *testing.T) {
	oldURL := dbURL
	dbURL = ""
	t.Cleanup(func() { dbURL = oldURL })

	var opts TrackOptions
	c := newConfigTestCmd(&opts)
	require.NoError(t, c.Flags().Parse([]string{"--tracker", "MIL"}))

	file := config.File{
		DB: "postgres://db:5432/roitrack",
		Track: config.Track{
			Input:    "clip.mp4",
			Tracker:  "CSRT",
			Output:   "out.log",
			Worker:   []string{"python3", "-u", "detect.py"},
			NthFrame: 3,
			Append:   true,
		},
	}
	applyConfig(c, &opts, file)

	assert.Equal(t, "MIL", opts.Tracker, "explicit flag wins over the file")
	assert.Equal(t, "clip.mp4", opts.InputPath)
	assert.Equal(t, "out.log", opts.OutputPath)
	assert.Equal(t, "python3 -u detect.py", opts.WorkerCmd)
	assert.Empty(t, opts.ROI)
	assert.Equal(t, 3, opts.NthFrame)
	assert.True(t, opts.Append)
	assert.Equal(t, "postgres://db:5432/roitrack", dbURL)
}

func TestApplyConfigAcquisitionFlagReplacesFileMode(t *testing.T) {
	video := filepath.Join(t.TempDir(), "video.mp4")
	require.NoError(t, os.WriteFile(video, nil, 0644))

	roi := &types.ROI{X: 1, Y: 2, Width: 3, Height: 4}
	tests := []struct {
		name  string
		file  config.Track
		args  []string
		check func(t *testing.T, o TrackOptions)
	}{
		{
			name: "Model over file ROI",
			file: config.Track{ROI: roi},
			args: []string{"--model", "m.xml"},
			check: func(t *testing.T, o TrackOptions) {
				assert.Equal(t, "m.xml", o.CascadePath)
				assert.Empty(t, o.ROI)
			},
		},
		{
			name: "Worker over file cascade",
			file: config.Track{Cascade: "face.xml"},
			args: []string{"--worker", "python3 detect.py"},
			check: func(t *testing.T, o TrackOptions) {
				assert.Empty(t, o.CascadePath)
				assert.Equal(t, "python3 detect.py", o.WorkerCmd)
			},
		},
		{
			name: "ROI over file select",
			file: config.Track{Select: true},
			args: []string{"--roi", "5,6,7,8"},
			check: func(t *testing.T, o TrackOptions) {
				assert.False(t, o.Select)
				assert.Equal(t, "5,6,7,8", o.ROI)
			},
		},
		{
			name: "Select over file worker",
			file: config.Track{Worker: []string{"detect"}},
			args: []string{"--select"},
			check: func(t *testing.T, o TrackOptions) {
				assert.True(t, o.Select)
				assert.Empty(t, o.WorkerCmd)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var opts TrackOptions
			c := newConfigTestCmd(&opts)
			require.NoError(t, c.Flags().Parse(tt.args))

			tt.file.Input = video
			applyConfig(c, &opts, config.File{Track: tt.file})
			tt.check(t, opts)
			assert.NoError(t, validateTrackOptions(&opts))
		})
	}
}

func TestResolveDBURL(t *testing.T) {
	assert.Equal(t, "postgres://flag", resolveDBURL("postgres://flag"))

	t.Setenv("POSTGRES_HOST", "")
	assert.Equal(t, "postgres://localhost:5432/roitrack", resolveDBURL(""))

	t.Setenv("POSTGRES_HOST", "db")
	t.Setenv("POSTGRES_USER", "u")
	t.Setenv("POSTGRES_PASSWORD", "p")
	t.Setenv("POSTGRES_DB", "tracks")
	t.Setenv("POSTGRES_PORT", "")
	assert.Equal(t, "postgres://u:p@db:5432/tracks", resolveDBURL(""))
}

func TestExitErrorUnwraps(t *testing.T) {
	err := errors.Wrap(&exitError{code: 2, msg: "no target"}, "track")
	var ee *exitError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, 2, ee.code)
}

func TestFailureMessage(t *testing.T) {
	for _, o := range []pipeline.Outcome{pipeline.OutcomeNoTarget, pipeline.OutcomeSelectionAborted, pipeline.OutcomeDegenerateROI} {
		assert.NotEqual(t, o.String(), failureMessage(o))
	}
	assert.Equal(t, "completed", failureMessage(pipeline.OutcomeCompleted))
}

func TestPrintSpans(t *testing.T) {
	roi := types.ROI{X: 1, Y: 1, Width: 5, Height: 5}
	runs := []record.Run{
		{
			types.LocatedRecord(0, roi),
			types.LocatedRecord(1, roi),
			types.LocatedRecord(2, roi),
			types.LostRecord(3),
			types.LocatedRecord(4, roi),
		},
		{types.LostRecord(0), types.LostRecord(1)},
	}

	var buf bytes.Buffer
	require.NoError(t, printSpans(&buf, runs, 0))

	var rows [][]string
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		rows = append(rows, strings.Fields(line))
	}
	require.Len(t, rows, 5)
	assert.Equal(t, []string{"RUN", "FRAMES", "COUNT"}, rows[0])
	assert.Equal(t, []string{"1", "0-2", "3"}, rows[2])
	assert.Equal(t, []string{"1", "4-4", "1"}, rows[3])
	assert.Equal(t, []string{"2", "-", "0"}, rows[4])

	buf.Reset()
	require.NoError(t, printSpans(&buf, runs[:1], 1))
	assert.Contains(t, buf.String(), "00:00:00 - 00:00:03")

	buf.Reset()
	require.NoError(t, printSpans(&buf, nil, 0))
	assert.Equal(t, "No frames recorded.\n", buf.String())
}

func TestRemoveLogs(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.log", "b.log", "keep.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0644))
	}

	n, err := removeLogs(dir)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	left, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "keep.txt", left[0].Name())
}

func TestConfirm(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{"n\n", false},
		{"\n", false},
		{"", false},
	}
	for _, tt := range tests {
		var out bytes.Buffer
		got := confirm(bufio.NewReader(strings.NewReader(tt.input)), &out, "Sure?")
		assert.Equal(t, tt.want, got, "input %q", tt.input)
		assert.Equal(t, "Sure? [y/N]: ", out.String())
	}
}

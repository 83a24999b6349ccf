package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andresmejia3/roitrack/internal/types"
)

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "track.yaml")
	doc := `
db: postgres://localhost:5432/roitrack
track:
  input: clip.mp4
  tracker: csrt
  output: out/roi.log
  append: true
  nth_frame: 2
  roi: {x: 1, y: 2, width: 30, height: 40}
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0644))

	f, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres://localhost:5432/roitrack", f.DB)
	assert.Equal(t, "clip.mp4", f.Track.Input)
	assert.Equal(t, "csrt", f.Track.Tracker)
	assert.Empty(t, f.Track.Worker)
	assert.True(t, f.Track.Append)
	assert.Equal(t, 2, f.Track.NthFrame)
	require.NotNil(t, f.Track.ROI)
	assert.Equal(t, types.ROI{X: 1, Y: 2, Width: 30, Height: 40}, *f.Track.ROI)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"Unknown key", "track:\n  trakcer: KCF\n"},
		{"Negative nth frame", "track:\n  nth_frame: -1\n"},
		{"Both detectors", "track:\n  cascade: face.xml\n  worker: [detect]\n"},
		{"ROI and select", "track:\n  select: true\n  roi: {x: 1, y: 1, width: 2, height: 2}\n"},
		{"Worker and ROI", "track:\n  worker: [detect]\n  roi: {x: 1, y: 1, width: 2, height: 2}\n"},
		{"Cascade and select", "track:\n  cascade: face.xml\n  select: true\n"},
		{"Bad type", "track:\n  append: maybe\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestParseEmpty(t *testing.T) {
	f, err := Parse([]byte("\n"))
	require.NoError(t, err)
	assert.Equal(t, File{}, f)
}

func TestLoadMissing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

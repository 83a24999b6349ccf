// Package config loads track defaults from a YAML file.
package config

import (
	"bytes"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/andresmejia3/roitrack/internal/types"
)

// Track mirrors the track command's flags. Zero values mean "not set".
type Track struct {
	Input    string     `yaml:"input"`
	Tracker  string     `yaml:"tracker"`
	Cascade  string     `yaml:"cascade"`
	Worker   []string   `yaml:"worker"`
	Output   string     `yaml:"output"`
	Append   bool       `yaml:"append"`
	Sync     bool       `yaml:"sync"`
	Source   string     `yaml:"source"`
	NthFrame int        `yaml:"nth_frame"`
	ROI      *types.ROI `yaml:"roi"`
	Select   bool       `yaml:"select"`
	Persist  bool       `yaml:"persist"`
}

// File is the top-level document.
type File struct {
	DB    string `yaml:"db"`
	Track Track  `yaml:"track"`
}

// Load reads path. Unknown keys are rejected so typos do not pass silently.
func Load(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, errors.Wrap(err, "reading config")
	}
	return Parse(data)
}

// Parse decodes a YAML document.
func Parse(data []byte) (File, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		// An empty document decodes to io.EOF.
		if len(bytes.TrimSpace(data)) == 0 {
			return File{}, nil
		}
		return File{}, errors.Wrap(err, "parsing config")
	}
	if f.Track.NthFrame < 0 {
		return File{}, errors.Errorf("nth_frame must be >= 0, got %d", f.Track.NthFrame)
	}
	t := f.Track
	automatic := t.Cascade != "" || len(t.Worker) > 0
	manual := t.ROI != nil || t.Select
	switch {
	case t.Cascade != "" && len(t.Worker) > 0:
		return File{}, errors.New("cascade and worker are mutually exclusive")
	case t.ROI != nil && t.Select:
		return File{}, errors.New("roi and select are mutually exclusive")
	case automatic && manual:
		return File{}, errors.New("a detector (cascade/worker) cannot be combined with roi/select")
	}
	return f, nil
}

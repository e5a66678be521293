package logging

import (
	"io"
	"os"

	"github.com/hashicorp/go-hclog"
)

// Options configures the root logger
type Options struct {
	Name   string
	Level  string
	JSON   bool
	Output io.Writer
}

// New creates the root logger. Components derive their own with Named.
// An unknown level falls back to info.
func New(opts Options) hclog.Logger {
	level := hclog.LevelFromString(opts.Level)
	if level == hclog.NoLevel {
		level = hclog.Info
	}

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	name := opts.Name
	if name == "" {
		name = "mp4-mp3"
	}

	return hclog.New(&hclog.LoggerOptions{
		Name:       name,
		Level:      level,
		Output:     out,
		JSONFormat: opts.JSON,
	})
}

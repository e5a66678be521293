package conversion

import "context"

// Virtual file names used inside the engine's private filesystem.
// Only one job runs at a time, so the names are fixed.
const (
	InputFile        = "input.mp4"
	IntermediateFile = "output.wav"
	OutputFile       = "output.mp3"
)

// ProgressFunc receives the ratio (0..1) of the command currently running
type ProgressFunc func(ratio float64)

// Engine is the transcoding engine the pipeline drives.
// This is a port that can be implemented by different infrastructure adapters.
type Engine interface {
	// Load performs the one-time initialization of the engine
	Load(ctx context.Context) error

	// IsLoaded returns true once Load has succeeded
	IsLoaded() bool

	// SetProgress registers the callback for the next Run; nil clears it
	SetProgress(fn ProgressFunc)

	// Run executes one command to completion or failure
	Run(ctx context.Context, args ...string) error

	// WriteFile stores data under name in the engine's filesystem
	WriteFile(name string, data []byte) error

	// ReadFile returns the contents of name from the engine's filesystem
	ReadFile(name string) ([]byte, error)

	// Unlink removes name from the engine's filesystem
	Unlink(name string) error
}

// VirtualFiles lists every entry a job may create, in creation order
func VirtualFiles() []string {
	return []string{InputFile, IntermediateFile, OutputFile}
}

package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"mp4-mp3/domain/conversion"

	"github.com/hashicorp/go-hclog"
)

// baseArgs precede every command: quiet banner, never prompt, overwrite, machine readable progress on stdout
var baseArgs = []string{"-hide_banner", "-nostdin", "-y", "-nostats", "-progress", "pipe:1"}

var errNotLoaded = errors.New("ffmpeg engine not loaded")

// CommandError is a failed ffmpeg run, carrying the last line ffmpeg logged
type CommandError struct {
	Message string
	Stderr  string
	Err     error
}

func (e *CommandError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("ffmpeg failed: %v", e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// Engine implements conversion.Engine with the ffmpeg binary.
// Its virtual filesystem is a private scratch directory created by Load.
type Engine struct {
	ffmpegPath     string
	scratchRoot    string
	requireEncoder string
	runner         CommandRunner
	logger         hclog.Logger

	mu       sync.Mutex
	dir      string
	progress conversion.ProgressFunc
	loaded   atomic.Bool
}

// EngineOption is a functional option for configuring Engine
type EngineOption func(*Engine)

// WithFFmpegPath sets a custom ffmpeg executable path
func WithFFmpegPath(path string) EngineOption {
	return func(e *Engine) {
		if path != "" {
			e.ffmpegPath = path
		}
	}
}

// WithCommandRunner sets a custom command runner (for testing)
func WithCommandRunner(runner CommandRunner) EngineOption {
	return func(e *Engine) {
		e.runner = runner
	}
}

// WithScratchDirectory sets the parent directory of the engine's private filesystem
func WithScratchDirectory(dir string) EngineOption {
	return func(e *Engine) {
		e.scratchRoot = dir
	}
}

// WithRequiredEncoder sets the encoder Load checks for; empty skips the check
func WithRequiredEncoder(name string) EngineOption {
	return func(e *Engine) {
		e.requireEncoder = name
	}
}

// WithLogger sets the engine's logger
func WithLogger(logger hclog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

// NewEngine creates a new ffmpeg engine. Nothing is checked until Load.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{
		ffmpegPath:     "ffmpeg",
		requireEncoder: conversion.OutputCodec,
		runner:         &ExecCommandRunner{},
		logger:         hclog.NewNullLogger(),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Load resolves the binary, verifies it runs and has the MP3 encoder, and creates the scratch directory
func (e *Engine) Load(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.loaded.Load() {
		return nil
	}

	path, err := e.runner.LookPath(e.ffmpegPath)
	if err != nil {
		return fmt.Errorf("ffmpeg not found: %w", err)
	}
	e.ffmpegPath = path

	if err := e.verifyInstalled(ctx); err != nil {
		return err
	}
	if err := e.verifyEncoder(ctx); err != nil {
		return err
	}

	if e.scratchRoot != "" {
		if err := os.MkdirAll(e.scratchRoot, 0o755); err != nil {
			return fmt.Errorf("failed to create scratch root: %w", err)
		}
	}
	dir, err := os.MkdirTemp(e.scratchRoot, "mp4-mp3-")
	if err != nil {
		return fmt.Errorf("failed to create scratch directory: %w", err)
	}
	e.dir = dir
	e.loaded.Store(true)

	e.logger.Debug("ffmpeg engine ready", "path", e.ffmpegPath, "scratch", dir)
	return nil
}

// verifyInstalled checks that ffmpeg is available
func (e *Engine) verifyInstalled(ctx context.Context) error {
	_, err := e.runner.Output(ctx, e.ffmpegPath, "-version")
	if err != nil {
		return fmt.Errorf("ffmpeg not found or not executable: %w", err)
	}
	return nil
}

// verifyEncoder checks that the required encoder is compiled in
func (e *Engine) verifyEncoder(ctx context.Context) error {
	if e.requireEncoder == "" {
		return nil
	}
	out, err := e.runner.Output(ctx, e.ffmpegPath, "-hide_banner", "-encoders")
	if err != nil {
		return fmt.Errorf("failed to list ffmpeg encoders: %w", err)
	}
	for _, line := range strings.Split(string(out), "\n") {
		fields := strings.Fields(line)
		if len(fields) >= 2 && fields[1] == e.requireEncoder {
			return nil
		}
	}
	return fmt.Errorf("ffmpeg is missing the %s encoder", e.requireEncoder)
}

// IsLoaded implements conversion.Engine
func (e *Engine) IsLoaded() bool {
	return e.loaded.Load()
}

// Dir returns the scratch directory, empty before Load
func (e *Engine) Dir() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dir
}

// SetProgress implements conversion.Engine
func (e *Engine) SetProgress(fn conversion.ProgressFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.progress = fn
}

// Run implements conversion.Engine. Relative file names resolve inside the scratch directory.
func (e *Engine) Run(ctx context.Context, args ...string) error {
	if !e.loaded.Load() {
		return errNotLoaded
	}

	e.mu.Lock()
	dir, report, path := e.dir, e.progress, e.ffmpegPath
	e.mu.Unlock()

	tracker := newProgressTracker(args, report)
	tail := &tailBuffer{max: 20}
	stdout := newLineWriter(tracker.progressLine)
	stderr := newLineWriter(func(line string) {
		tail.add(line)
		tracker.stderrLine(line)
		e.logger.Trace("ffmpeg", "line", line)
	})

	err := e.runner.Run(ctx, Command{
		Name:   path,
		Args:   append(append([]string{}, baseArgs...), args...),
		Dir:    dir,
		Stdout: stdout,
		Stderr: stderr,
	})
	stdout.Flush()
	stderr.Flush()

	if err != nil {
		return &CommandError{Message: tail.last(), Stderr: tail.String(), Err: err}
	}
	return nil
}

// WriteFile implements conversion.Engine
func (e *Engine) WriteFile(name string, data []byte) error {
	path, err := e.path(name)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadFile implements conversion.Engine
func (e *Engine) ReadFile(name string) ([]byte, error) {
	path, err := e.path(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read %s: %w", name, conversion.ErrFileNotFound)
	}
	return data, err
}

// Unlink implements conversion.Engine
func (e *Engine) Unlink(name string) error {
	path, err := e.path(name)
	if err != nil {
		return err
	}
	err = os.Remove(path)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("unlink %s: %w", name, conversion.ErrFileNotFound)
	}
	return err
}

// Close removes the scratch directory. The engine must be loaded again before further use.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.loaded.Load() {
		return nil
	}
	e.loaded.Store(false)
	dir := e.dir
	e.dir = ""
	return os.RemoveAll(dir)
}

// path maps a virtual file name into the scratch directory, rejecting anything that is not a plain name
func (e *Engine) path(name string) (string, error) {
	if !e.loaded.Load() {
		return "", errNotLoaded
	}
	if name == "" || name == "." || name == ".." || filepath.Base(name) != name || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("invalid virtual file name %q", name)
	}
	return filepath.Join(e.Dir(), name), nil
}

// Ensure Engine implements conversion.Engine
var _ conversion.Engine = (*Engine)(nil)

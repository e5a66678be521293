package filesystem

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"mp4-mp3/domain/conversion"
)

// Checker reads sources from and writes results to the local filesystem
type Checker struct{}

// NewChecker creates a new filesystem checker
func NewChecker() *Checker {
	return &Checker{}
}

// Exists returns true if the file exists
func (c *Checker) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// ReadSource loads a source file into memory. The extension is not checked.
func (c *Checker) ReadSource(path string) (conversion.Source, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return conversion.Source{}, fmt.Errorf("source file not found: %s", path)
	}
	if err != nil {
		return conversion.Source{}, fmt.Errorf("failed to stat source: %w", err)
	}
	if info.IsDir() {
		return conversion.Source{}, fmt.Errorf("source is a directory: %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return conversion.Source{}, fmt.Errorf("failed to read source: %w", err)
	}
	return conversion.Source{Name: filepath.Base(path), Data: data}, nil
}

// WriteResult saves result into dir, creating it if needed, and returns the full path
func (c *Checker) WriteResult(dir string, result *conversion.Result) (string, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	path := filepath.Join(dir, result.FileName)
	if err := os.WriteFile(path, result.Data, 0644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}

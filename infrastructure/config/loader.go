package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"mp4-mp3/domain/conversion"

	"github.com/hashicorp/go-hclog"
	"gopkg.in/yaml.v3"
)

// DefaultPath is where commands look for the config file when --config is not given
const DefaultPath = "config/config.yaml"

// Config represents the complete application configuration
type Config struct {
	Engine EngineConfig `yaml:"engine"`
	Audio  AudioConfig  `yaml:"audio"`
	Paths  PathsConfig  `yaml:"paths"`
	Server ServerConfig `yaml:"server"`
	Log    LogConfig    `yaml:"log"`
	Google GoogleConfig `yaml:"google"`
}

// EngineConfig locates the ffmpeg binary and its scratch space
type EngineConfig struct {
	FFmpegPath       string `yaml:"ffmpeg_path"`
	ScratchDirectory string `yaml:"scratch_directory"`
	RequireEncoder   string `yaml:"require_encoder"`
}

// AudioConfig contains MP3 encoding settings
type AudioConfig struct {
	Quality string `yaml:"quality"`
}

// PathsConfig contains directory paths for converted output
type PathsConfig struct {
	OutputDirectory string `yaml:"output_directory"`
}

// ServerConfig contains settings for the serve command
type ServerConfig struct {
	Address        string   `yaml:"address"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	MaxUploadMB    int64    `yaml:"max_upload_mb"`
}

// LogConfig controls structured logging
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// GoogleConfig contains Google Drive publishing settings
type GoogleConfig struct {
	CredentialsFile string `yaml:"credentials_file"`
	TokenFile       string `yaml:"token_file"`
	FolderID        string `yaml:"folder_id"`
}

// Default returns the configuration used when no file exists
func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			FFmpegPath:     "ffmpeg",
			RequireEncoder: conversion.OutputCodec,
		},
		Audio: AudioConfig{
			Quality: conversion.DefaultQuality,
		},
		Paths: PathsConfig{
			OutputDirectory: ".",
		},
		Server: ServerConfig{
			Address:     "127.0.0.1:8080",
			MaxUploadMB: 2048,
		},
		Log: LogConfig{
			Level: "info",
		},
		Google: GoogleConfig{
			CredentialsFile: "credentials.json",
			TokenFile:       "token.json",
		},
	}
}

// Load reads and parses the configuration from the specified YAML file.
// Keys missing from the file keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}

	return cfg, nil
}

// LoadOrDefault is Load, falling back to Default when the file does not exist
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Save writes the configuration to the specified YAML file
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks values that would otherwise only fail mid-conversion
func (c *Config) Validate() error {
	if _, err := conversion.ParseQuality(c.Audio.Quality); err != nil {
		return fmt.Errorf("audio.quality: %w", err)
	}
	if c.Server.MaxUploadMB <= 0 {
		return fmt.Errorf("server.max_upload_mb must be positive, got %d", c.Server.MaxUploadMB)
	}
	if hclog.LevelFromString(c.Log.Level) == hclog.NoLevel {
		return fmt.Errorf("log.level: unknown level %q", c.Log.Level)
	}
	return nil
}

// MaxUploadBytes returns the upload limit in bytes
func (c *Config) MaxUploadBytes() int64 {
	return c.Server.MaxUploadMB << 20
}

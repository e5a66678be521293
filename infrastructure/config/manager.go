package config

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Errors for config management
var (
	ErrUnknownKey   = errors.New("unknown config key")
	ErrInvalidValue = errors.New("invalid config value")
)

// ConfigManager reads and updates individual config entries by dotted key
type ConfigManager struct {
	config     *Config
	configPath string
}

// NewConfigManager creates a new config manager
func NewConfigManager(cfg *Config, configPath string) *ConfigManager {
	return &ConfigManager{
		config:     cfg,
		configPath: configPath,
	}
}

// Setting is one config entry
type Setting struct {
	Key   string
	Value string
}

// field binds a dotted key to a Config field
type field struct {
	get func(*Config) string
	set func(*Config, string) error
}

func stringField(ptr func(*Config) *string) field {
	return field{
		get: func(c *Config) string { return *ptr(c) },
		set: func(c *Config, v string) error {
			*ptr(c) = v
			return nil
		},
	}
}

var fields = map[string]field{
	"engine.ffmpeg_path":       stringField(func(c *Config) *string { return &c.Engine.FFmpegPath }),
	"engine.scratch_directory": stringField(func(c *Config) *string { return &c.Engine.ScratchDirectory }),
	"engine.require_encoder":   stringField(func(c *Config) *string { return &c.Engine.RequireEncoder }),
	"audio.quality":            stringField(func(c *Config) *string { return &c.Audio.Quality }),
	"paths.output_directory":   stringField(func(c *Config) *string { return &c.Paths.OutputDirectory }),
	"server.address":           stringField(func(c *Config) *string { return &c.Server.Address }),
	"log.level":                stringField(func(c *Config) *string { return &c.Log.Level }),
	"google.credentials_file":  stringField(func(c *Config) *string { return &c.Google.CredentialsFile }),
	"google.token_file":        stringField(func(c *Config) *string { return &c.Google.TokenFile }),
	"google.folder_id":         stringField(func(c *Config) *string { return &c.Google.FolderID }),
	"server.allowed_origins": {
		get: func(c *Config) string { return strings.Join(c.Server.AllowedOrigins, ",") },
		set: func(c *Config, v string) error {
			c.Server.AllowedOrigins = nil
			for _, origin := range strings.Split(v, ",") {
				if origin = strings.TrimSpace(origin); origin != "" {
					c.Server.AllowedOrigins = append(c.Server.AllowedOrigins, origin)
				}
			}
			return nil
		},
	},
	"server.max_upload_mb": {
		get: func(c *Config) string { return strconv.FormatInt(c.Server.MaxUploadMB, 10) },
		set: func(c *Config, v string) error {
			n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
			if err != nil {
				return fmt.Errorf("%w: %q is not a number", ErrInvalidValue, v)
			}
			c.Server.MaxUploadMB = n
			return nil
		},
	},
	"log.json": {
		get: func(c *Config) string { return strconv.FormatBool(c.Log.JSON) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("%w: %q is not true or false", ErrInvalidValue, v)
			}
			c.Log.JSON = b
			return nil
		},
	},
}

// Keys returns every settable key in sorted order
func Keys() []string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// List returns all settings sorted by key
func (m *ConfigManager) List() []Setting {
	keys := Keys()
	result := make([]Setting, 0, len(keys))
	for _, k := range keys {
		result = append(result, Setting{Key: k, Value: fields[k].get(m.config)})
	}
	return result
}

// Get returns the value of one setting
func (m *ConfigManager) Get(key string) (string, error) {
	f, ok := fields[normalizeKey(key)]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}
	return f.get(m.config), nil
}

// Set changes one setting and saves the file. The config is left unchanged if
// the new value does not validate.
func (m *ConfigManager) Set(key, value string) error {
	key = normalizeKey(key)
	f, ok := fields[key]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}

	updated := *m.config
	updated.Server.AllowedOrigins = append([]string(nil), m.config.Server.AllowedOrigins...)
	if err := f.set(&updated, value); err != nil {
		return err
	}
	if err := updated.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}

	*m.config = updated
	return Save(m.config, m.configPath)
}

// Reset restores one setting to its default and saves the file
func (m *ConfigManager) Reset(key string) error {
	key = normalizeKey(key)
	f, ok := fields[key]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}
	return m.Set(key, f.get(Default()))
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// SuggestSetCommand returns the command that sets key
func SuggestSetCommand(key string) string {
	return fmt.Sprintf("mp4-mp3 config set %s <value>", key)
}

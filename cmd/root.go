package cmd

import (
	"fmt"
	"os"

	"mp4-mp3/infrastructure/config"
	"mp4-mp3/infrastructure/ffmpeg"
	"mp4-mp3/infrastructure/logging"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"
)

var (
	cfgFile  string
	cfg      *config.Config
	cfgErr   error
	logLevel string
	logger   hclog.Logger = hclog.NewNullLogger()
)

var rootCmd = &cobra.Command{
	Use:   "mp4-mp3",
	Short: "Convert MP4 video to MP3 audio",
	Long: `mp4-mp3 extracts the audio track of a video and encodes it as MP3.

Conversion runs in two steps, each with its own progress indicator:

  - Demux the audio track to lossless 16-bit PCM WAV (44.1 kHz stereo)
  - Encode the WAV to MP3 with LAME

Example:
  mp4-mp3 convert --source recording.mp4 --quality 192k
  mp4-mp3 serve --addr 127.0.0.1:8080`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: trace, debug, info, warn, error (overrides config)")
}

func initConfig() {
	if cfgFile == "" {
		cfgFile = config.DefaultPath
	}

	// A missing file means defaults; a broken one is reported by commands that need it
	cfg, cfgErr = config.LoadOrDefault(cfgFile)
	if cfgErr != nil {
		cfg = nil
		return
	}

	level := cfg.Log.Level
	if logLevel != "" {
		level = logLevel
	}
	logger = logging.New(logging.Options{Level: level, JSON: cfg.Log.JSON, Output: os.Stderr})
}

// GetConfig returns the loaded configuration
func GetConfig() *config.Config {
	return cfg
}

// requireConfig returns the loaded configuration or the reason it could not be loaded
func requireConfig() (*config.Config, error) {
	if cfg == nil {
		if cfgErr != nil {
			return nil, fmt.Errorf("configuration not loaded: %w", cfgErr)
		}
		return nil, fmt.Errorf("configuration not loaded; ensure %s is valid", config.DefaultPath)
	}
	return cfg, nil
}

// OutputWriter allows capturing output in tests
type OutputWriter interface {
	Write(p []byte) (n int, err error)
}

// newEngine builds the ffmpeg engine described by the engine section of the config
func newEngine(c *config.Config, log hclog.Logger) *ffmpeg.Engine {
	return ffmpeg.NewEngine(
		ffmpeg.WithFFmpegPath(c.Engine.FFmpegPath),
		ffmpeg.WithScratchDirectory(c.Engine.ScratchDirectory),
		ffmpeg.WithRequiredEncoder(c.Engine.RequireEncoder),
		ffmpeg.WithLogger(log.Named("engine")),
	)
}

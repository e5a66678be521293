package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	appconversion "mp4-mp3/application/conversion"
	"mp4-mp3/application/publish"
	"mp4-mp3/domain/conversion"
	"mp4-mp3/domain/distribution"
	"mp4-mp3/infrastructure/drive"
	"mp4-mp3/infrastructure/filesystem"
	"mp4-mp3/infrastructure/terminal"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"
)

var (
	convertSourcePath string
	convertQuality    string
	convertOutputDir  string
	convertStartTime  string
	convertEndTime    string
	convertUpload     bool
)

var convertCmd = &cobra.Command{
	Use:   "convert",
	Short: "Convert a video file to MP3",
	Long: `Convert a video file to MP3.

The output is named after the source with an .mp3 extension and written to
the output directory. Quality is a constant bitrate (8k-320k) or a LAME VBR
level (q0 best to q9 smallest); the default is q2.

Press Ctrl+C once to cancel after the current step, twice to abort.

Example:
  mp4-mp3 convert --source recording.mp4
  mp4-mp3 convert --source recording.mp4 --quality 192k --output-dir ~/Music
  mp4-mp3 convert --source recording.mp4 --start 00:05:30 --end 01:15:00 --upload`,
	RunE: runConvert,
}

func init() {
	rootCmd.AddCommand(convertCmd)
	convertCmd.Flags().StringVar(&convertSourcePath, "source", "", "Path to source video file (required)")
	convertCmd.Flags().StringVar(&convertQuality, "quality", "", "MP3 quality: bitrate like 192k or VBR level q0-q9 (default from config)")
	convertCmd.Flags().StringVar(&convertOutputDir, "output-dir", "", "Directory for the MP3 (default from config)")
	convertCmd.Flags().StringVar(&convertStartTime, "start", "", "Only convert from this timestamp, HH:MM:SS")
	convertCmd.Flags().StringVar(&convertEndTime, "end", "", "Only convert up to this timestamp, HH:MM:SS")
	convertCmd.Flags().BoolVar(&convertUpload, "upload", false, "Upload the MP3 to the configured Google Drive folder and share it")
	convertCmd.MarkFlagRequired("source")
}

// SourceFiles reads sources and stores results
type SourceFiles interface {
	ReadSource(path string) (conversion.Source, error)
	WriteResult(dir string, result *conversion.Result) (string, error)
}

// ResultPublisher shares a finished result
type ResultPublisher interface {
	Publish(ctx context.Context, result *conversion.Result) (*distribution.UploadResult, error)
}

// ConvertOptions are the user's choices for one conversion
type ConvertOptions struct {
	SourcePath string
	Quality    string
	OutputDir  string
	StartTime  string
	EndTime    string
}

func runConvert(cmd *cobra.Command, args []string) error {
	cfg, err := requireConfig()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	engine := newEngine(cfg, logger)
	defer engine.Close()

	var publisher ResultPublisher
	if convertUpload {
		if cfg.Google.FolderID == "" {
			return fmt.Errorf("google.folder_id is not configured; run 'mp4-mp3 setup' or 'mp4-mp3 config set google.folder_id <id>'")
		}
		client, err := drive.NewClientWithOAuth(ctx, drive.OAuthConfig{
			CredentialsFile: cfg.Google.CredentialsFile,
			TokenFile:       cfg.Google.TokenFile,
			Output:          os.Stdout,
			OpenBrowser:     true,
		})
		if err != nil {
			return fmt.Errorf("failed to create Google Drive client: %w", err)
		}
		publisher = publish.NewUploadService(client, cfg.Google.FolderID, os.Stdout)
	}

	interrupts := make(chan os.Signal, 2)
	signal.Notify(interrupts, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(interrupts)

	opts := ConvertOptions{
		SourcePath: convertSourcePath,
		Quality:    convertQuality,
		OutputDir:  convertOutputDir,
		StartTime:  convertStartTime,
		EndTime:    convertEndTime,
	}
	if opts.Quality == "" {
		opts.Quality = cfg.Audio.Quality
	}
	if opts.OutputDir == "" {
		opts.OutputDir = cfg.Paths.OutputDirectory
	}

	return RunConvertWithDependencies(
		ctx,
		engine,
		filesystem.NewChecker(),
		publisher,
		interrupts,
		logger,
		opts,
		os.Stdout,
	)
}

// RunConvertWithDependencies runs the convert command with injected dependencies (for testing).
// The first value on interrupts requests cancellation at the next stage boundary; the second
// cancels the context. publisher may be nil.
func RunConvertWithDependencies(
	ctx context.Context,
	engine conversion.Engine,
	files SourceFiles,
	publisher ResultPublisher,
	interrupts <-chan os.Signal,
	log hclog.Logger,
	opts ConvertOptions,
	output OutputWriter,
) error {
	if log == nil {
		log = hclog.NewNullLogger()
	}

	src, err := files.ReadSource(opts.SourcePath)
	if err != nil {
		return err
	}
	options, err := conversion.NewOptions(opts.Quality, opts.StartTime, opts.EndTime)
	if err != nil {
		return err
	}

	fmt.Fprintln(output, terminal.SourceInfo(src))
	if options.Range != nil {
		fmt.Fprintf(output, "Clip: %s to %s\n", options.Range.Start, options.Range.End)
	}

	controller := appconversion.NewController(
		appconversion.NewEngineHandle(engine, log.Named("engine")),
		appconversion.WithLogger(log.Named("controller")),
		appconversion.WithListener(terminal.NewReporter(output)),
	)

	runCtx, abort := context.WithCancel(ctx)
	defer abort()
	go watchInterrupts(runCtx, interrupts, controller, abort)

	result, err := controller.Start(runCtx, src, options)
	if err != nil {
		if errors.Is(err, conversion.ErrCanceled) {
			return nil
		}
		return err
	}

	path, err := files.WriteResult(opts.OutputDir, result)
	if err != nil {
		return err
	}

	summary := terminal.Summary{
		Source:     src,
		Quality:    options.Quality.String(),
		Result:     result,
		OutputPath: path,
	}

	if publisher != nil {
		fmt.Fprintf(output, "Uploading %s...\n", result.FileName)
		uploaded, err := publisher.Publish(ctx, result)
		if err != nil {
			return fmt.Errorf("upload failed: %w", err)
		}
		summary.SharedURL = uploaded.ShareableURL
	}

	terminal.RenderSummary(output, summary)
	return nil
}

// watchInterrupts turns the first interrupt into a cooperative cancel and the second into an abort
func watchInterrupts(ctx context.Context, interrupts <-chan os.Signal, controller *appconversion.Controller, abort context.CancelFunc) {
	if interrupts == nil {
		return
	}
	requested := false
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-interrupts:
			if !ok {
				return
			}
			if !requested && controller.Cancel() {
				requested = true
				continue
			}
			abort()
			return
		}
	}
}

package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	appconversion "mp4-mp3/application/conversion"
	"mp4-mp3/infrastructure/web"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"
)

// shutdownTimeout bounds how long in-flight requests get after a stop signal
const shutdownTimeout = 10 * time.Second

// idlePollInterval is how often shutdown checks for a finished conversion
const idlePollInterval = 20 * time.Millisecond

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the browser interface",
	Long: `Serve a single-page interface for converting uploaded videos.

One conversion runs at a time. Progress is streamed to the page over a
websocket and the MP3 can be played inline or downloaded when done.

Example:
  mp4-mp3 serve
  mp4-mp3 serve --addr 0.0.0.0:9000`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default from config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := requireConfig()
	if err != nil {
		return err
	}

	addr := serveAddr
	if addr == "" {
		addr = cfg.Server.Address
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine := newEngine(cfg, logger)
	defer engine.Close()

	httpLog := logger.Named("http")
	hub := web.NewHub(cfg.Server.AllowedOrigins, httpLog)
	defer hub.Close()

	controller := appconversion.NewController(
		appconversion.NewEngineHandle(engine, logger.Named("engine")),
		appconversion.WithLogger(logger.Named("controller")),
		appconversion.WithListener(hub),
	)
	handler := web.NewHandler(controller, hub,
		web.WithLogger(httpLog),
		web.WithMaxUpload(cfg.MaxUploadBytes()),
		web.WithDefaultQuality(cfg.Audio.Quality),
		web.WithBaseContext(ctx),
	)

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	err = RunServeWithDependencies(ctx, web.NewServer(addr, handler, cfg.Server.AllowedOrigins), listener, httpLog, os.Stdout)

	// jobs run on ctx, so they are already canceled; let cleanup finish before the engine closes
	if !waitIdle(controller.Busy, shutdownTimeout) {
		logger.Warn("conversion still running at exit; closing engine anyway")
	}
	return err
}

// waitIdle polls busy until it reports false or timeout passes
func waitIdle(busy func() bool, timeout time.Duration) bool {
	if !busy() {
		return true
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	tick := time.NewTicker(idlePollInterval)
	defer tick.Stop()

	for {
		select {
		case <-tick.C:
			if !busy() {
				return true
			}
		case <-deadline.C:
			return !busy()
		}
	}
}

// RunServeWithDependencies serves on listener until ctx is done, then shuts down gracefully
func RunServeWithDependencies(ctx context.Context, server *http.Server, listener net.Listener, log hclog.Logger, output OutputWriter) error {
	if log == nil {
		log = hclog.NewNullLogger()
	}

	fmt.Fprintf(output, "Serving on http://%s\n", listener.Addr())
	log.Info("server started", "addr", listener.Addr().String())

	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Serve(listener)
	}()

	select {
	case err := <-errChan:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	fmt.Fprintln(output, "Server stopped.")
	return nil
}

package conversion

import (
	"context"
	"sync"

	"mp4-mp3/domain/conversion"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/sync/singleflight"
)

// EngineHandle wraps the shared transcoding engine.
// It is created once and reused by every job; the controller never tears it down.
type EngineHandle struct {
	engine conversion.Engine
	logger hclog.Logger
	loads  singleflight.Group

	// run serializes progress registration with the command it belongs to
	run sync.Mutex
}

// NewEngineHandle creates a handle around engine
func NewEngineHandle(engine conversion.Engine, logger hclog.Logger) *EngineHandle {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &EngineHandle{
		engine: engine,
		logger: logger,
	}
}

// EnsureLoaded loads the engine once. Concurrent callers wait for the same
// in-flight load. A failed load is not remembered, so the next call tries again.
// The load itself is detached from ctx so one caller giving up does not fail the
// others; ctx only bounds how long this caller waits.
func (h *EngineHandle) EnsureLoaded(ctx context.Context) error {
	if h.engine.IsLoaded() {
		return nil
	}

	loadCtx := context.WithoutCancel(ctx)
	ch := h.loads.DoChan("load", func() (interface{}, error) {
		if h.engine.IsLoaded() {
			return nil, nil
		}
		h.logger.Info("loading transcoding engine")
		if err := h.engine.Load(loadCtx); err != nil {
			h.logger.Error("engine load failed", "error", err)
			return nil, err
		}
		h.logger.Info("transcoding engine loaded")
		return nil, nil
	})

	select {
	case res := <-ch:
		if res.Shared {
			h.logger.Trace("joined in-flight engine load")
		}
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsLoaded reports whether the engine is ready
func (h *EngineHandle) IsLoaded() bool {
	return h.engine.IsLoaded()
}

// WriteFile proxies to the engine's filesystem
func (h *EngineHandle) WriteFile(name string, data []byte) error {
	return h.engine.WriteFile(name, data)
}

// ReadFile proxies to the engine's filesystem
func (h *EngineHandle) ReadFile(name string) ([]byte, error) {
	return h.engine.ReadFile(name)
}

// RemoveFile proxies to the engine's filesystem
func (h *EngineHandle) RemoveFile(name string) error {
	return h.engine.Unlink(name)
}

// RunCommand runs one engine command, tagging every progress ratio with stage
func (h *EngineHandle) RunCommand(ctx context.Context, stage conversion.Stage, args []string, onProgress func(conversion.ProgressSample)) error {
	h.run.Lock()
	defer h.run.Unlock()

	h.engine.SetProgress(func(ratio float64) {
		if onProgress != nil {
			onProgress(conversion.ProgressSample{Stage: stage, Ratio: ratio})
		}
	})
	defer h.engine.SetProgress(nil)

	h.logger.Debug("running engine command", "stage", stage, "args", args)
	return h.engine.Run(ctx, args...)
}

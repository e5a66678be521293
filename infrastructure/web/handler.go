package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"time"

	appconversion "mp4-mp3/application/conversion"
	"mp4-mp3/domain/conversion"

	"github.com/hashicorp/go-hclog"
)

// multipartMemory is how much of an upload ParseMultipartForm keeps in memory before spilling to disk
const multipartMemory = 32 << 20

// Converter is the part of the conversion controller the HTTP surface drives
type Converter interface {
	Submit(ctx context.Context, src conversion.Source, opts conversion.Options) (conversion.JobSnapshot, <-chan appconversion.Outcome, error)
	Cancel() bool
	Snapshot() conversion.JobSnapshot
	Result() *conversion.Result
}

// Handler serves the conversion API
type Handler struct {
	converter      Converter
	hub            *Hub
	logger         hclog.Logger
	maxUpload      int64
	defaultQuality string
	baseCtx        context.Context
}

// HandlerOption is a functional option for configuring Handler
type HandlerOption func(*Handler)

// WithLogger sets the handler's logger
func WithLogger(logger hclog.Logger) HandlerOption {
	return func(h *Handler) {
		h.logger = logger
	}
}

// WithMaxUpload limits the size of an uploaded source in bytes
func WithMaxUpload(n int64) HandlerOption {
	return func(h *Handler) {
		h.maxUpload = n
	}
}

// WithDefaultQuality sets the quality used when a request does not name one
func WithDefaultQuality(q string) HandlerOption {
	return func(h *Handler) {
		h.defaultQuality = q
	}
}

// WithBaseContext sets the context jobs run under; canceling it stops jobs at the next stage boundary
func WithBaseContext(ctx context.Context) HandlerOption {
	return func(h *Handler) {
		h.baseCtx = ctx
	}
}

// NewHandler creates the API handler. hub may be nil when progress streaming is not served.
func NewHandler(converter Converter, hub *Hub, opts ...HandlerOption) *Handler {
	h := &Handler{
		converter:      converter,
		hub:            hub,
		logger:         hclog.NewNullLogger(),
		maxUpload:      2 << 30,
		defaultQuality: conversion.DefaultQuality,
		baseCtx:        context.Background(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type errorResponse struct {
	Error string `json:"error"`
}

// StartConversion handles POST /api/conversion.
// The form carries the source as "file" plus optional "quality", "start" and "end".
func (h *Handler) StartConversion(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+multipartMemory)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "upload exceeds the size limit")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid upload: "+err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no file selected")
		return
	}
	defer file.Close()

	if header.Size > h.maxUpload {
		writeError(w, http.StatusRequestEntityTooLarge, "upload exceeds the size limit")
		return
	}
	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read upload: "+err.Error())
		return
	}

	quality := r.FormValue("quality")
	if quality == "" {
		quality = h.defaultQuality
	}
	opts, err := conversion.NewOptions(quality, r.FormValue("start"), r.FormValue("end"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	src := conversion.Source{Name: header.Filename, Data: data}
	snapshot, done, err := h.converter.Submit(h.baseCtx, src, opts)
	switch {
	case errors.Is(err, conversion.ErrAlreadyRunning):
		writeError(w, http.StatusConflict, conversion.UserMessage(err))
		return
	case errors.Is(err, conversion.ErrNoSource):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	go h.logOutcome(snapshot.JobID, done)

	h.logger.Info("upload accepted", "job_id", snapshot.JobID, "source", src.Name, "bytes", src.Size())
	writeJSON(w, http.StatusAccepted, snapshot)
}

func (h *Handler) logOutcome(jobID string, done <-chan appconversion.Outcome) {
	outcome := <-done
	if outcome.Err != nil {
		h.logger.Debug("job ended without a result", "job_id", jobID, "error", outcome.Err)
		return
	}
	h.logger.Debug("result ready", "job_id", jobID, "bytes", outcome.Result.Size())
}

// CancelConversion handles POST /api/conversion/cancel
func (h *Handler) CancelConversion(w http.ResponseWriter, r *http.Request) {
	if !h.converter.Cancel() {
		writeError(w, http.StatusConflict, "no conversion to cancel")
		return
	}
	writeJSON(w, http.StatusAccepted, h.converter.Snapshot())
}

// Status handles GET /api/conversion
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.converter.Snapshot())
}

// Result handles GET /api/conversion/result. ?inline=1 serves it for playback instead of download.
func (h *Handler) Result(w http.ResponseWriter, r *http.Request) {
	result := h.converter.Result()
	if result == nil {
		writeError(w, http.StatusNotFound, "no converted file available")
		return
	}

	disposition := "attachment"
	if r.URL.Query().Get("inline") == "1" {
		disposition = "inline"
	}
	w.Header().Set("Content-Type", result.MimeType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType(disposition, map[string]string{"filename": result.FileName}))
	w.Header().Set("Cache-Control", "no-store")
	http.ServeContent(w, r, result.FileName, time.Time{}, bytes.NewReader(result.Data))
}

// Events handles GET /api/conversion/events by upgrading to a websocket
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		writeError(w, http.StatusNotFound, "progress streaming disabled")
		return
	}
	if err := h.hub.Serve(w, r, h.converter.Snapshot); err != nil {
		h.logger.Debug("websocket upgrade failed", "error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

package conversion

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// MimeTypeMP3 is the content type of every result
const MimeTypeMP3 = "audio/mpeg"

// Source is the user-selected input file
type Source struct {
	Name string
	Data []byte
}

// Size returns the number of bytes in the source
func (s Source) Size() int64 {
	return int64(len(s.Data))
}

// Options controls a single conversion
type Options struct {
	Quality Quality
	Range   *ClipRange // Optional: only convert this window of the source
}

// NewOptions parses user supplied option strings.
// Empty quality falls back to DefaultQuality; empty start and end mean the whole source.
func NewOptions(quality, start, end string) (Options, error) {
	q, err := ParseQuality(quality)
	if err != nil {
		return Options{}, err
	}
	r, err := ParseClipRange(start, end)
	if err != nil {
		return Options{}, err
	}
	return Options{Quality: q, Range: r}, nil
}

func (o Options) quality() Quality {
	if o.Quality.IsZero() {
		return MustParseQuality(DefaultQuality)
	}
	return o.Quality
}

// CancelToken is a cooperative cancellation flag.
// Setting it never interrupts a running engine command; it is polled at stage boundaries.
type CancelToken struct {
	requested atomic.Bool
}

// Cancel records the request; it is safe to call more than once
func (t *CancelToken) Cancel() {
	t.requested.Store(true)
}

// Requested reports whether Cancel has been called
func (t *CancelToken) Requested() bool {
	return t.requested.Load()
}

// Job is one run of the pipeline.
// Stage and history are owned by the controller and guarded by its lock.
type Job struct {
	ID         string
	SourceName string
	SourceSize int64
	Options    Options
	StartedAt  time.Time

	stage   Stage
	history []Stage
	cancel  CancelToken
	err     error
}

// NewJob creates an idle job for src
func NewJob(src Source, opts Options) *Job {
	return &Job{
		ID:         uuid.NewString(),
		SourceName: src.Name,
		SourceSize: src.Size(),
		Options:    opts,
		StartedAt:  time.Now(),
		stage:      StageIdle,
		history:    []Stage{StageIdle},
	}
}

// Stage returns the current stage
func (j *Job) Stage() Stage {
	return j.stage
}

// History returns every stage entered, in order, starting with Idle
func (j *Job) History() []Stage {
	out := make([]Stage, len(j.history))
	copy(out, j.history)
	return out
}

// Err returns the failure recorded with Fail, if any
func (j *Job) Err() error {
	return j.err
}

// Transition moves the job to next, rejecting illegal moves
func (j *Job) Transition(next Stage) error {
	if !j.stage.CanTransition(next) {
		return fmt.Errorf("illegal stage transition %s -> %s", j.stage, next)
	}
	j.stage = next
	j.history = append(j.history, next)
	return nil
}

// Fail moves the job to Failed or Canceled depending on err
func (j *Job) Fail(err error) {
	next := StageFailed
	if isCanceled(err) {
		next = StageCanceled
	}
	if j.Transition(next) == nil {
		j.err = err
	}
}

// Cancel sets the job's cancel token
func (j *Job) Cancel() {
	j.cancel.Cancel()
}

// CancelRequested reports whether Cancel was called
func (j *Job) CancelRequested() bool {
	return j.cancel.Requested()
}

// OutputFilename returns the source name with its extension replaced by .mp3
func (j *Job) OutputFilename() string {
	return OutputFilename(j.SourceName)
}

// OutputFilename derives the result name from a source name.
// "clip.mp4" becomes "clip.mp3"; a name with no stem becomes "output.mp3".
func OutputFilename(sourceName string) string {
	base := filepath.Base(strings.ReplaceAll(sourceName, "\\", "/"))
	if base == "." || base == "/" {
		base = ""
	}
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" {
		stem = "output"
	}
	return stem + ".mp3"
}

// Result is the output of a successful job
type Result struct {
	JobID    string
	FileName string
	MimeType string
	Data     []byte
	Elapsed  time.Duration
}

// Size returns the number of encoded bytes
func (r *Result) Size() int64 {
	return int64(len(r.Data))
}

// JobSnapshot is a read-only view of the controller for session surfaces
type JobSnapshot struct {
	JobID           string     `json:"job_id,omitempty"`
	SourceName      string     `json:"source_name,omitempty"`
	SourceSize      int64      `json:"source_size,omitempty"`
	Quality         string     `json:"quality,omitempty"`
	Stage           Stage      `json:"stage"`
	Progress        Indicators `json:"progress"`
	CancelRequested bool       `json:"cancel_requested"`
	Busy            bool       `json:"busy"`
	Message         string     `json:"message,omitempty"`
	ResultName      string     `json:"result_name,omitempty"`
}

package terminal

import (
	"fmt"
	"io"
	"os"
	"sync"

	"mp4-mp3/domain/conversion"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
)

// plainStep is how far a stage must advance before a plain-text reporter prints again
const plainStep = 25

// Reporter renders a job's two progress indicators on a terminal.
// On a TTY each stage gets its own bar; otherwise progress is printed as lines.
type Reporter struct {
	out         io.Writer
	interactive bool

	mu          sync.Mutex
	stage       conversion.Stage
	bar         *progressbar.ProgressBar
	printed     int
	reported    bool
	cancelNoted bool
}

// ReporterOption is a functional option for configuring Reporter
type ReporterOption func(*Reporter)

// WithInteractive overrides TTY detection
func WithInteractive(interactive bool) ReporterOption {
	return func(r *Reporter) {
		r.interactive = interactive
	}
}

// NewReporter creates a reporter writing to out
func NewReporter(out io.Writer, opts ...ReporterOption) *Reporter {
	r := &Reporter{
		out:         out,
		interactive: IsTerminal(out),
		printed:     -1,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// IsTerminal reports whether w is an interactive terminal
func IsTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// StageChanged starts a new indicator when a stage with progress begins
// and prints the outcome once the job ends.
func (r *Reporter) StageChanged(s conversion.JobSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s.Stage.IsTerminal() {
		r.closeBar()
		r.stage = s.Stage
		if s.Message != "" && !r.reported {
			r.reported = true
			fmt.Fprintln(r.out, s.Message)
		}
		return
	}

	if s.CancelRequested && !r.cancelNoted {
		r.cancelNoted = true
		r.closeBar()
		fmt.Fprintln(r.out, "Cancel requested; stopping after the current step...")
	}
	if s.Stage == r.stage {
		return
	}
	r.stage = s.Stage

	switch s.Stage {
	case conversion.StageLoading:
		r.reported = false
		r.cancelNoted = s.CancelRequested
		fmt.Fprintln(r.out, "Loading transcoder...")
	case conversion.StageDemuxing, conversion.StageEncoding:
		r.closeBar()
		r.openBar(s.Stage)
	}
}

// ProgressChanged moves the indicator of the stage that reported
func (r *Reporter) ProgressChanged(stage conversion.Stage, indicators conversion.Indicators) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if stage != r.stage {
		return
	}
	percent := indicators.Demux
	if stage == conversion.StageEncoding {
		percent = indicators.Encode
	}

	if r.bar != nil {
		r.bar.Set(percent)
		return
	}
	if !r.interactive && (r.printed < 0 || percent == 100 || percent-r.printed >= plainStep) {
		r.printed = percent
		fmt.Fprintf(r.out, "  %s %d%%\n", indicatorLabel(stage), percent)
	}
}

func (r *Reporter) openBar(stage conversion.Stage) {
	r.printed = -1
	if !r.interactive {
		fmt.Fprintf(r.out, "%s...\n", stage.Label())
		return
	}
	r.bar = progressbar.NewOptions(100,
		progressbar.OptionSetWriter(r.out),
		progressbar.OptionSetDescription(fmt.Sprintf("%-8s", indicatorLabel(stage))),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionShowCount(),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionOnCompletion(func() { fmt.Fprintln(r.out) }),
	)
}

func (r *Reporter) closeBar() {
	if r.bar == nil {
		return
	}
	if !r.bar.IsFinished() {
		r.bar.Exit()
		fmt.Fprintln(r.out)
	}
	r.bar = nil
}

func indicatorLabel(stage conversion.Stage) string {
	if stage == conversion.StageEncoding {
		return "encode"
	}
	return "demux"
}

package ffmpeg

import (
	"bytes"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"mp4-mp3/domain/conversion"
)

// durationRegex matches the input duration ffmpeg prints on stderr, e.g. "Duration: 00:01:02.50,"
var durationRegex = regexp.MustCompile(`Duration:\s*(\d+:\d{2}:\d{2}(?:\.\d+)?)`)

// progressTracker turns ffmpeg's -progress key=value stream into ratios.
// stdout and stderr are copied on separate goroutines, so every method locks.
type progressTracker struct {
	mu     sync.Mutex
	total  time.Duration
	window time.Duration // expected output length when -ss/-to/-t limit the input
	report conversion.ProgressFunc
}

func newProgressTracker(args []string, report conversion.ProgressFunc) *progressTracker {
	return &progressTracker{
		window: outputWindow(args),
		report: report,
	}
}

// stderrLine picks up the input duration from ffmpeg's log output
func (p *progressTracker) stderrLine(line string) {
	m := durationRegex.FindStringSubmatch(line)
	if m == nil {
		return
	}
	d, ok := parseClock(m[1])
	if !ok {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.total == 0 {
		p.total = d
		if p.window > 0 && p.window < d {
			p.total = p.window
		}
	}
}

// progressLine handles one key=value pair from -progress pipe:1
func (p *progressTracker) progressLine(line string) {
	key, value, ok := strings.Cut(strings.TrimSpace(line), "=")
	if !ok {
		return
	}

	switch key {
	case "out_time_us", "out_time_ms":
		// out_time_ms is microseconds too, despite its name
		us, err := strconv.ParseInt(value, 10, 64)
		if err != nil || us < 0 {
			return
		}
		p.emitPosition(time.Duration(us) * time.Microsecond)
	case "progress":
		if value == "end" {
			p.emit(1)
		}
	}
}

func (p *progressTracker) emitPosition(pos time.Duration) {
	p.mu.Lock()
	total := p.total
	if total == 0 {
		total = p.window
	}
	p.mu.Unlock()

	if total <= 0 {
		return
	}
	ratio := float64(pos) / float64(total)
	if ratio > 1 {
		ratio = 1
	}
	p.emit(ratio)
}

func (p *progressTracker) emit(ratio float64) {
	if p.report != nil {
		p.report(ratio)
	}
}

// outputWindow returns the duration selected by -ss/-to or -t, or 0
func outputWindow(args []string) time.Duration {
	var start, end, length time.Duration
	for i := 0; i+1 < len(args); i++ {
		d, ok := parseClock(args[i+1])
		if !ok {
			continue
		}
		switch args[i] {
		case "-ss":
			start = d
		case "-to":
			end = d
		case "-t":
			length = d
		}
	}

	switch {
	case length > 0:
		return length
	case end > start:
		return end - start
	}
	return 0
}

// parseClock parses HH:MM:SS(.frac) or a plain number of seconds
func parseClock(s string) (time.Duration, bool) {
	parts := strings.Split(s, ":")
	if len(parts) > 3 {
		return 0, false
	}

	var total float64
	for _, part := range parts {
		v, err := strconv.ParseFloat(part, 64)
		if err != nil || v < 0 {
			return 0, false
		}
		total = total*60 + v
	}
	return time.Duration(total * float64(time.Second)), true
}

// lineWriter is an io.Writer that calls fn for every complete line
type lineWriter struct {
	mu  sync.Mutex
	buf bytes.Buffer
	fn  func(line string)
}

func newLineWriter(fn func(string)) *lineWriter {
	return &lineWriter{fn: fn}
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf.Write(p)
	for {
		data := w.buf.Bytes()
		i := bytes.IndexAny(data, "\r\n")
		if i < 0 {
			break
		}
		line := string(data[:i])
		w.buf.Next(i + 1)
		if line != "" {
			w.fn(line)
		}
	}
	return len(p), nil
}

// Flush emits any trailing partial line
func (w *lineWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.buf.Len() > 0 {
		w.fn(w.buf.String())
		w.buf.Reset()
	}
}

// tailBuffer keeps the last few stderr lines for error messages
type tailBuffer struct {
	mu    sync.Mutex
	lines []string
	max   int
}

func (t *tailBuffer) add(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lines = append(t.lines, line)
	if len(t.lines) > t.max {
		t.lines = t.lines[len(t.lines)-t.max:]
	}
}

// last returns the most recent line, which is where ffmpeg prints its fatal error
func (t *tailBuffer) last() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := len(t.lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(t.lines[i]); line != "" {
			return line
		}
	}
	return ""
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.Join(t.lines, "\n")
}

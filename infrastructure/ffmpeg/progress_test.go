package ffmpeg

import (
	"testing"
	"time"
)

func TestParseClock(t *testing.T) {
	tests := []struct {
		input  string
		want   time.Duration
		wantOK bool
	}{
		{"00:00:10.00", 10 * time.Second, true},
		{"01:02:03", time.Hour + 2*time.Minute + 3*time.Second, true},
		{"02:30", 2*time.Minute + 30*time.Second, true},
		{"45.5", 45500 * time.Millisecond, true},
		{"pipe:1", 0, false},
		{"input.mp4", 0, false},
		{"1:2:3:4", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := parseClock(tt.input)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("parseClock(%q) = %v, %v, want %v, %v", tt.input, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestOutputWindow(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want time.Duration
	}{
		{"no limits", []string{"-i", "input.mp4", "-ar", "44100", "output.wav"}, 0},
		{"start and end", []string{"-i", "input.mp4", "-ss", "00:01:00", "-to", "00:01:30", "output.wav"}, 30 * time.Second},
		{"length", []string{"-i", "input.mp4", "-t", "12", "output.wav"}, 12 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := outputWindow(tt.args); got != tt.want {
				t.Errorf("outputWindow() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestProgressTracker_UsesClipWindow(t *testing.T) {
	var ratios []float64
	p := newProgressTracker(
		[]string{"-i", "input.mp4", "-ss", "00:00:00", "-to", "00:00:20"},
		func(r float64) { ratios = append(ratios, r) },
	)

	p.stderrLine("  Duration: 00:10:00.00, start: 0.000000, bitrate: 128 kb/s")
	p.progressLine("out_time_us=5000000")
	p.progressLine("out_time_us=40000000")

	if len(ratios) != 2 || ratios[0] != 0.25 || ratios[1] != 1 {
		t.Errorf("ratios = %v, want [0.25 1]", ratios)
	}
}

func TestProgressTracker_IgnoresPositionWithoutDuration(t *testing.T) {
	var ratios []float64
	p := newProgressTracker(nil, func(r float64) { ratios = append(ratios, r) })

	p.progressLine("out_time_us=5000000")
	p.progressLine("out_time_us=N/A")
	p.progressLine("garbage")
	p.progressLine("progress=end")

	if len(ratios) != 1 || ratios[0] != 1 {
		t.Errorf("ratios = %v, want only the end marker", ratios)
	}
}

func TestLineWriter(t *testing.T) {
	var lines []string
	w := newLineWriter(func(l string) { lines = append(lines, l) })

	w.Write([]byte("frame=1\rfr"))
	w.Write([]byte("ame=2\nprogress=con"))
	w.Write([]byte("tinue\n\n"))
	w.Write([]byte("tail"))
	w.Flush()

	want := []string{"frame=1", "frame=2", "progress=continue", "tail"}
	if len(lines) != len(want) {
		t.Fatalf("lines = %q, want %q", lines, want)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("lines[%d] = %q, want %q", i, lines[i], want[i])
		}
	}
}

package conversion

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// DefaultQuality is the encode setting used when none is given (libmp3lame VBR level 2)
const DefaultQuality = "q2"

// QualityMode distinguishes constant bitrate from variable bitrate encoding
type QualityMode string

const (
	QualityBitrate QualityMode = "bitrate"
	QualityVBR     QualityMode = "vbr"
)

// Quality is the stage 2 encode setting
type Quality struct {
	Mode QualityMode
	// Kbps is set for QualityBitrate
	Kbps int
	// Level is set for QualityVBR, 0 (best) to 9 (smallest)
	Level int
}

var (
	bitrateRegex = regexp.MustCompile(`^(\d{1,3})k$`)
	vbrRegex     = regexp.MustCompile(`^q?(\d)$`)
)

// ParseQuality parses "128k" style bitrates and "q2" or "2" style VBR levels.
// An empty string yields DefaultQuality.
func ParseQuality(s string) (Quality, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		s = DefaultQuality
	}

	if m := bitrateRegex.FindStringSubmatch(s); m != nil {
		kbps, _ := strconv.Atoi(m[1])
		if kbps < 8 || kbps > 320 {
			return Quality{}, fmt.Errorf("invalid quality %q: bitrate must be 8k-320k", s)
		}
		return Quality{Mode: QualityBitrate, Kbps: kbps}, nil
	}

	if m := vbrRegex.FindStringSubmatch(s); m != nil {
		level, _ := strconv.Atoi(m[1])
		return Quality{Mode: QualityVBR, Level: level}, nil
	}

	return Quality{}, fmt.Errorf("invalid quality %q: expected a bitrate like 192k or a VBR level q0-q9", s)
}

// MustParseQuality is ParseQuality for constants; it panics on error
func MustParseQuality(s string) Quality {
	q, err := ParseQuality(s)
	if err != nil {
		panic(err)
	}
	return q
}

// EncoderArgs returns the libmp3lame rate control arguments
func (q Quality) EncoderArgs() []string {
	if q.Mode == QualityBitrate {
		return []string{"-b:a", fmt.Sprintf("%dk", q.Kbps)}
	}
	return []string{"-qscale:a", strconv.Itoa(q.Level)}
}

// String returns the canonical form accepted by ParseQuality
func (q Quality) String() string {
	if q.Mode == QualityBitrate {
		return fmt.Sprintf("%dk", q.Kbps)
	}
	return fmt.Sprintf("q%d", q.Level)
}

// IsZero returns true when no mode has been set
func (q Quality) IsZero() bool {
	return q.Mode == ""
}

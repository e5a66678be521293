package conversion

import "strings"

// Stage is a step of the conversion state machine
type Stage string

const (
	StageIdle     Stage = "idle"
	StageLoading  Stage = "loading"
	StageDemuxing Stage = "demuxing"
	StageEncoding Stage = "encoding"
	StageDone     Stage = "done"
	StageCanceled Stage = "canceled"
	StageFailed   Stage = "failed"
)

// forward lists the single legal successor of each non-terminal stage on the happy path
var forward = map[Stage]Stage{
	StageIdle:     StageLoading,
	StageLoading:  StageDemuxing,
	StageDemuxing: StageEncoding,
	StageEncoding: StageDone,
}

// IsTerminal returns true for Done, Canceled and Failed
func (s Stage) IsTerminal() bool {
	return s == StageDone || s == StageCanceled || s == StageFailed
}

// CanTransition reports whether moving from s to next is allowed.
// Canceled and Failed are reachable from every non-terminal stage.
func (s Stage) CanTransition(next Stage) bool {
	if s.IsTerminal() {
		return false
	}
	if next == StageCanceled || next == StageFailed {
		return true
	}
	return forward[s] == next
}

// Label returns a capitalized label for display
func (s Stage) Label() string {
	switch s {
	case StageDemuxing:
		return "Demux"
	case StageEncoding:
		return "Encode"
	case "":
		return "Idle"
	}
	str := string(s)
	return strings.ToUpper(str[:1]) + str[1:]
}

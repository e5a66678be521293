package conversion

import (
	"math"
	"sync"
)

// Indicators holds the displayed percentage of each stage's progress bar
type Indicators struct {
	Demux  int `json:"demux"`
	Encode int `json:"encode"`
}

// ProgressSample is one ratio reported by the engine, tagged with the stage it belongs to
type ProgressSample struct {
	Stage Stage
	Ratio float64
}

// Percent converts an engine ratio into a whole percentage in [0,100]
func Percent(ratio float64) int {
	if math.IsNaN(ratio) {
		return 0
	}
	pct := math.Round(ratio * 100)
	switch {
	case pct < 0:
		return 0
	case pct > 100:
		return 100
	}
	return int(pct)
}

// ProgressAggregator maps stage-tagged samples onto the demux and encode indicators.
// Each stage's ratio starts over from 0; only the sampled stage's indicator moves.
type ProgressAggregator struct {
	mu      sync.Mutex
	current Indicators
}

// NewProgressAggregator creates an aggregator with both indicators at 0
func NewProgressAggregator() *ProgressAggregator {
	return &ProgressAggregator{}
}

// Reset sets both indicators back to 0 for a new job
func (a *ProgressAggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.current = Indicators{}
}

// Observe applies a sample and returns the indicators and whether anything changed.
// Samples for stages without an indicator are ignored.
func (a *ProgressAggregator) Observe(sample ProgressSample) (Indicators, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	pct := Percent(sample.Ratio)
	var target *int
	switch sample.Stage {
	case StageDemuxing:
		target = &a.current.Demux
	case StageEncoding:
		target = &a.current.Encode
	default:
		return a.current, false
	}

	if *target == pct {
		return a.current, false
	}
	*target = pct
	return a.current, true
}

// Complete pins the indicator of a finished stage at 100
func (a *ProgressAggregator) Complete(stage Stage) (Indicators, bool) {
	return a.Observe(ProgressSample{Stage: stage, Ratio: 1})
}

// Current returns the indicators without changing them
func (a *ProgressAggregator) Current() Indicators {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}

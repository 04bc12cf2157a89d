package gate

import (
	"fmt"
	"sync"
	"time"

	"github.com/agentvet/agentvet/internal/eval"
)

// Regression detection parameters.
const (
	// DefaultDegradationThreshold is the absolute score drop that flags a
	// metric as regressed.
	DefaultDegradationThreshold = 0.10

	// BaselineWindow is the number of most recent history entries averaged
	// into the per-metric baseline.
	BaselineWindow = 3
)

// HistoryEntry is one recorded pipeline run.
type HistoryEntry struct {
	Timestamp  time.Time          `json:"timestamp"`
	Summary    eval.BatchSummary  `json:"summary"`
	Gate       Verdict            `json:"quality_gates"`
	Regression *RegressionVerdict `json:"regression,omitempty"`
}

// History is an append-only record of past pipeline runs, used as the
// baseline source for regression detection. Safe for concurrent use.
type History struct {
	mu      sync.Mutex
	entries []HistoryEntry
}

// NewHistory creates an empty run history.
func NewHistory() *History {
	return &History{}
}

// Append records one pipeline run.
func (h *History) Append(entry HistoryEntry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, entry)
}

// Recent returns copies of up to the n most recent entries, oldest first.
func (h *History) Recent(n int) []HistoryEntry {
	h.mu.Lock()
	defer h.mu.Unlock()

	if n > len(h.entries) {
		n = len(h.entries)
	}
	recent := make([]HistoryEntry, n)
	copy(recent, h.entries[len(h.entries)-n:])
	return recent
}

// Len returns the number of recorded runs.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}

// MetricDelta describes one metric's movement against its baseline.
type MetricDelta struct {
	Baseline    float64 `json:"baseline" yaml:"baseline"`
	Current     float64 `json:"current" yaml:"current"`
	Degradation float64 `json:"degradation" yaml:"degradation"`
}

// RegressionVerdict is the result of comparing the current run against the
// recent history baseline.
type RegressionVerdict struct {
	Detected  bool    `json:"regression_detected" yaml:"regression_detected"`
	Reason    string  `json:"reason,omitempty" yaml:"reason,omitempty"`
	Threshold float64 `json:"threshold" yaml:"threshold"`

	// Baselines and Current hold per-metric averages for every compared
	// metric; Regressions holds only the metrics whose degradation exceeded
	// the threshold.
	Baselines   map[string]float64     `json:"baselines,omitempty" yaml:"baselines,omitempty"`
	Current     map[string]float64     `json:"current,omitempty" yaml:"current,omitempty"`
	Regressions map[string]MetricDelta `json:"regressions,omitempty" yaml:"regressions,omitempty"`
}

// CheckRegression compares the current summary's average scores against the
// mean of the most recent history entries. With fewer than two recorded runs
// there is no meaningful baseline and no regression is reported. A metric's
// baseline skips history entries that did not record it; a metric with no
// usable baseline is not compared.
func CheckRegression(history *History, current eval.BatchSummary, threshold float64) RegressionVerdict {
	if threshold <= 0 {
		threshold = DefaultDegradationThreshold
	}

	verdict := RegressionVerdict{Threshold: threshold}

	if history.Len() < 2 {
		verdict.Reason = "insufficient history"
		return verdict
	}

	recent := history.Recent(BaselineWindow)

	verdict.Baselines = make(map[string]float64)
	verdict.Current = make(map[string]float64)
	verdict.Regressions = make(map[string]MetricDelta)

	for metric, score := range current.AverageScores {
		var sum float64
		var count int
		for _, entry := range recent {
			if past, ok := entry.Summary.AverageScores[metric]; ok {
				sum += past
				count++
			}
		}
		if count == 0 {
			continue
		}

		baseline := sum / float64(count)
		verdict.Baselines[metric] = baseline
		verdict.Current[metric] = score

		if degradation := baseline - score; degradation > threshold {
			verdict.Regressions[metric] = MetricDelta{
				Baseline:    baseline,
				Current:     score,
				Degradation: degradation,
			}
		}
	}

	if len(verdict.Regressions) > 0 {
		verdict.Detected = true
		verdict.Reason = fmt.Sprintf("%d metric(s) degraded beyond %.2f", len(verdict.Regressions), threshold)
	}
	return verdict
}

package eval

import (
	"time"
)

// DefaultTrackedMetrics is the metric set aggregated into batch summaries when
// no explicit set is configured.
var DefaultTrackedMetrics = []string{
	"helpfulness",
	"faithfulness",
	"instruction_following",
	"overall",
}

// BatchSummary aggregates every session outcome of one run.
// All aggregation is commutative, so the summary is identical regardless of
// the order in which turns and sessions completed.
type BatchSummary struct {
	TotalTurns      int `json:"total_turns" yaml:"total_turns"`
	SuccessfulTurns int `json:"successful_turns" yaml:"successful_turns"`
	FailedTurns     int `json:"failed_turns" yaml:"failed_turns"`
	ErrorTurns      int `json:"error_turns" yaml:"error_turns"`
	ExceptionTurns  int `json:"exception_turns" yaml:"exception_turns"`

	// SuccessRate is SuccessfulTurns/TotalTurns, 0 when TotalTurns is 0.
	SuccessRate float64 `json:"success_rate" yaml:"success_rate"`

	// AverageScores maps each tracked metric to the average of all success
	// outcomes' scores for that metric; 0 when no scores were recorded for it.
	AverageScores map[string]float64 `json:"average_scores" yaml:"average_scores"`

	TotalSessions int `json:"total_sessions" yaml:"total_sessions"`

	// ExecutionTime is the batch's wall-clock duration.
	ExecutionTime time.Duration `json:"execution_time" yaml:"execution_time"`
}

// BuildBatchSummary computes summary statistics over session outcomes.
// Only success outcomes contribute scores; a score contributes to
// AverageScores only when its metric name is in trackedMetrics. Metrics with
// no recorded scores average to 0.
func BuildBatchSummary(sessions []SessionOutcome, trackedMetrics []string, elapsed time.Duration) BatchSummary {
	if trackedMetrics == nil {
		trackedMetrics = DefaultTrackedMetrics
	}

	tracked := make(map[string]bool, len(trackedMetrics))
	scores := make(map[string][]float64, len(trackedMetrics))
	for _, metric := range trackedMetrics {
		tracked[metric] = true
	}

	summary := BatchSummary{
		TotalSessions: len(sessions),
		ExecutionTime: elapsed,
		AverageScores: make(map[string]float64, len(trackedMetrics)),
	}

	for _, session := range sessions {
		for _, outcome := range session.Outcomes {
			summary.TotalTurns++

			switch outcome.Status {
			case TurnSuccess:
				summary.SuccessfulTurns++
				if outcome.Result == nil {
					continue
				}
				for metric, score := range outcome.Result.Scores {
					if tracked[metric] {
						scores[metric] = append(scores[metric], score)
					}
				}
			case TurnFailed:
				summary.FailedTurns++
			case TurnError:
				summary.ErrorTurns++
			case TurnException:
				summary.ExceptionTurns++
			}
		}
	}

	if summary.TotalTurns > 0 {
		summary.SuccessRate = float64(summary.SuccessfulTurns) / float64(summary.TotalTurns)
	}

	for _, metric := range trackedMetrics {
		values := scores[metric]
		if len(values) == 0 {
			summary.AverageScores[metric] = 0.0
			continue
		}
		var sum float64
		for _, v := range values {
			sum += v
		}
		summary.AverageScores[metric] = sum / float64(len(values))
	}

	return summary
}

// StatusCounts returns the per-status turn counts as a map.
// The counts always sum to TotalTurns.
func (s BatchSummary) StatusCounts() map[TurnStatus]int {
	return map[TurnStatus]int{
		TurnSuccess:   s.SuccessfulTurns,
		TurnFailed:    s.FailedTurns,
		TurnError:     s.ErrorTurns,
		TurnException: s.ExceptionTurns,
	}
}

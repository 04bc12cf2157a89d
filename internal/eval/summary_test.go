package eval

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func successOutcome(scores map[string]float64) TurnOutcome {
	return TurnOutcome{
		Status: TurnSuccess,
		Result: &Result{AgentResponse: "ok", Scores: scores},
	}
}

func TestBuildBatchSummaryCounts(t *testing.T) {
	sessions := []SessionOutcome{
		{
			Status: SessionCompleted,
			Outcomes: []TurnOutcome{
				successOutcome(map[string]float64{"helpfulness": 0.8}),
				{Status: TurnFailed},
				{Status: TurnError},
				{Status: TurnException},
			},
		},
		{
			Status: SessionCompleted,
			Outcomes: []TurnOutcome{
				successOutcome(map[string]float64{"helpfulness": 0.6}),
			},
		},
	}

	summary := BuildBatchSummary(sessions, nil, 2*time.Second)

	assert.Equal(t, 5, summary.TotalTurns)
	assert.Equal(t, 2, summary.SuccessfulTurns)
	assert.Equal(t, 1, summary.FailedTurns)
	assert.Equal(t, 1, summary.ErrorTurns)
	assert.Equal(t, 1, summary.ExceptionTurns)
	assert.InDelta(t, 0.4, summary.SuccessRate, 1e-9)
	assert.Equal(t, 2, summary.TotalSessions)
	assert.Equal(t, 2*time.Second, summary.ExecutionTime)
	assert.InDelta(t, 0.7, summary.AverageScores["helpfulness"], 1e-9)
}

func TestBuildBatchSummaryOnlySuccessContributesScores(t *testing.T) {
	sessions := []SessionOutcome{
		{
			Outcomes: []TurnOutcome{
				successOutcome(map[string]float64{"overall": 1.0}),
				// A failed outcome carrying a stale result must not count.
				{Status: TurnFailed, Result: &Result{Scores: map[string]float64{"overall": 0.0}}},
			},
		},
	}

	summary := BuildBatchSummary(sessions, nil, 0)
	assert.InDelta(t, 1.0, summary.AverageScores["overall"], 1e-9)
}

func TestBuildBatchSummaryTrackedMetricsOnly(t *testing.T) {
	sessions := []SessionOutcome{
		{
			Outcomes: []TurnOutcome{
				successOutcome(map[string]float64{
					"helpfulness": 0.9,
					"latency_ms":  120.0,
				}),
			},
		},
	}

	summary := BuildBatchSummary(sessions, []string{"helpfulness"}, 0)

	assert.Contains(t, summary.AverageScores, "helpfulness")
	assert.NotContains(t, summary.AverageScores, "latency_ms")
}

func TestBuildBatchSummaryUnobservedMetricAveragesZero(t *testing.T) {
	sessions := []SessionOutcome{
		{Outcomes: []TurnOutcome{successOutcome(map[string]float64{"helpfulness": 0.5})}},
	}

	summary := BuildBatchSummary(sessions, []string{"helpfulness", "faithfulness"}, 0)

	assert.InDelta(t, 0.5, summary.AverageScores["helpfulness"], 1e-9)
	assert.Equal(t, 0.0, summary.AverageScores["faithfulness"])
}

func TestBuildBatchSummaryEmpty(t *testing.T) {
	summary := BuildBatchSummary(nil, nil, 0)

	assert.Equal(t, 0, summary.TotalTurns)
	assert.Equal(t, 0.0, summary.SuccessRate)
	assert.Equal(t, 0, summary.TotalSessions)
	for _, metric := range DefaultTrackedMetrics {
		assert.Equal(t, 0.0, summary.AverageScores[metric])
	}
}

func TestBuildBatchSummaryOrderIndependent(t *testing.T) {
	a := SessionOutcome{Outcomes: []TurnOutcome{
		successOutcome(map[string]float64{"overall": 0.9}),
		{Status: TurnFailed},
	}}
	b := SessionOutcome{Outcomes: []TurnOutcome{
		successOutcome(map[string]float64{"overall": 0.3}),
	}}

	forward := BuildBatchSummary([]SessionOutcome{a, b}, nil, 0)
	reverse := BuildBatchSummary([]SessionOutcome{b, a}, nil, 0)

	assert.Equal(t, forward.TotalTurns, reverse.TotalTurns)
	assert.Equal(t, forward.SuccessRate, reverse.SuccessRate)
	assert.Equal(t, forward.AverageScores, reverse.AverageScores)
}

func TestStatusCountsSumToTotal(t *testing.T) {
	sessions := []SessionOutcome{
		{Outcomes: []TurnOutcome{
			successOutcome(nil),
			{Status: TurnFailed},
			{Status: TurnError},
		}},
	}

	summary := BuildBatchSummary(sessions, nil, 0)
	counts := summary.StatusCounts()

	var total int
	for _, n := range counts {
		total += n
	}
	assert.Equal(t, summary.TotalTurns, total)
}

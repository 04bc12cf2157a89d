// Package gate implements the quality gate, regression analyzer, and
// evaluation pipeline used to judge batch results against configured
// thresholds in continuous-integration settings.
package gate

import (
	"fmt"
	"time"

	"github.com/agentvet/agentvet/internal/eval"
	"github.com/agentvet/agentvet/internal/types"
)

// Default gate thresholds.
const (
	DefaultMinSuccessRate   = 0.8
	DefaultMinAverageScore  = 0.7
	DefaultMaxExecutionTime = 5 * time.Minute
	DefaultMaxFailedTurns   = 5
)

// DefaultRequiredMetrics is the metric set the gate checks when none is
// configured.
var DefaultRequiredMetrics = []string{
	"helpfulness",
	"faithfulness",
	"instruction_following",
}

// Config holds the quality gate thresholds.
type Config struct {
	// MinSuccessRate is the minimum batch success rate; the check is strict,
	// so a rate exactly below the threshold fails.
	MinSuccessRate float64 `json:"min_success_rate" yaml:"min_success_rate"`

	// MinAverageScore is the minimum average score each required metric must
	// reach.
	MinAverageScore float64 `json:"min_average_score" yaml:"min_average_score"`

	// MaxExecutionTime bounds the batch's wall-clock duration.
	MaxExecutionTime time.Duration `json:"max_execution_time" yaml:"max_execution_time"`

	// MaxFailedTurns bounds the count of non-success turns.
	MaxFailedTurns int `json:"max_failed_turns" yaml:"max_failed_turns"`

	// RequiredMetrics lists the metric names checked against MinAverageScore.
	RequiredMetrics []string `json:"required_metrics" yaml:"required_metrics"`
}

// DefaultConfig returns the gate configuration used when none is supplied.
func DefaultConfig() Config {
	return Config{
		MinSuccessRate:   DefaultMinSuccessRate,
		MinAverageScore:  DefaultMinAverageScore,
		MaxExecutionTime: DefaultMaxExecutionTime,
		MaxFailedTurns:   DefaultMaxFailedTurns,
		RequiredMetrics:  append([]string(nil), DefaultRequiredMetrics...),
	}
}

// Validate checks the configuration for out-of-range thresholds.
func (c Config) Validate() error {
	if c.MinSuccessRate < 0 || c.MinSuccessRate > 1 {
		return types.NewError(types.CONFIG_VALIDATION_FAILED,
			fmt.Sprintf("min_success_rate %.3f outside [0, 1]", c.MinSuccessRate))
	}
	if c.MinAverageScore < 0 || c.MinAverageScore > 1 {
		return types.NewError(types.CONFIG_VALIDATION_FAILED,
			fmt.Sprintf("min_average_score %.3f outside [0, 1]", c.MinAverageScore))
	}
	if c.MaxExecutionTime < 0 {
		return types.NewError(types.CONFIG_VALIDATION_FAILED, "max_execution_time is negative")
	}
	if c.MaxFailedTurns < 0 {
		return types.NewError(types.CONFIG_VALIDATION_FAILED, "max_failed_turns is negative")
	}
	return nil
}

// Verdict is the result of checking one batch summary against a gate
// configuration. Checks holds one entry per independent check; Passed is the
// conjunction of all of them.
type Verdict struct {
	Passed bool            `json:"passed" yaml:"passed"`
	Checks map[string]bool `json:"checks" yaml:"checks"`

	// Actual records the observed value behind each check, for reporting.
	Actual map[string]any `json:"actual" yaml:"actual"`
}

// CheckGate evaluates every threshold independently and returns the combined
// verdict. A required metric absent from the summary's averages fails its
// check unless the configured minimum is zero or below.
func CheckGate(summary eval.BatchSummary, cfg Config) Verdict {
	verdict := Verdict{
		Checks: make(map[string]bool),
		Actual: make(map[string]any),
	}

	failedTotal := summary.FailedTurns + summary.ErrorTurns + summary.ExceptionTurns

	verdict.Checks["success_rate"] = summary.SuccessRate >= cfg.MinSuccessRate
	verdict.Actual["success_rate"] = summary.SuccessRate

	verdict.Checks["execution_time"] = summary.ExecutionTime <= cfg.MaxExecutionTime
	verdict.Actual["execution_time"] = summary.ExecutionTime.Seconds()

	verdict.Checks["failed_turns"] = failedTotal <= cfg.MaxFailedTurns
	verdict.Actual["failed_turns"] = failedTotal

	metrics := cfg.RequiredMetrics
	if metrics == nil {
		metrics = DefaultRequiredMetrics
	}
	for _, metric := range metrics {
		key := "avg_score_" + metric
		score, present := summary.AverageScores[metric]

		verdict.Checks[key] = (present && score >= cfg.MinAverageScore) || cfg.MinAverageScore <= 0
		verdict.Actual[key] = score
	}

	verdict.Passed = true
	for _, ok := range verdict.Checks {
		if !ok {
			verdict.Passed = false
			break
		}
	}
	return verdict
}

// FailedChecks lists the names of checks that did not pass, for reporting.
func (v Verdict) FailedChecks() []string {
	var failed []string
	for name, ok := range v.Checks {
		if !ok {
			failed = append(failed, name)
		}
	}
	return failed
}

package gate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/agentvet/agentvet/internal/eval"
	"github.com/agentvet/agentvet/internal/hooks"
	"github.com/agentvet/agentvet/internal/orchestrator"
	"github.com/agentvet/agentvet/internal/types"
)

// Stage identifies the pipeline's current phase.
type Stage string

const (
	StageIdle            Stage = "idle"
	StagePreChecks       Stage = "pre_checks"
	StageEvaluating      Stage = "evaluating"
	StageGateCheck       Stage = "gate_check"
	StageRegressionCheck Stage = "regression_check"
	StageReported        Stage = "reported"
)

// Status is the pipeline's final classification of one run.
type Status string

const (
	// StatusPassed indicates the gate passed and no regression was detected.
	StatusPassed Status = "passed"

	// StatusWarning indicates the gate passed but a regression was detected.
	StatusWarning Status = "warning"

	// StatusFailed indicates the gate failed, a pre-check aborted the run, or
	// a pipeline stage faulted.
	StatusFailed Status = "failed"

	// StatusCancelled indicates the run's context was cancelled.
	StatusCancelled Status = "cancelled"
)

// Report is the pipeline's complete output for one run.
type Report struct {
	Status     Status             `json:"status" yaml:"status"`
	Stage      Stage              `json:"stage" yaml:"stage"`
	Timestamp  time.Time          `json:"timestamp" yaml:"timestamp"`
	Summary    eval.BatchSummary  `json:"summary" yaml:"summary"`
	Gate       Verdict            `json:"quality_gates" yaml:"quality_gates"`
	Regression *RegressionVerdict `json:"regression,omitempty" yaml:"regression,omitempty"`

	// PreChecks holds the integration-test hook records fired before the
	// batch ran; PostChecks the post-evaluation hook records fired after it.
	PreChecks  []hooks.Record `json:"pre_checks,omitempty" yaml:"pre_checks,omitempty"`
	PostChecks []hooks.Record `json:"post_checks,omitempty" yaml:"post_checks,omitempty"`

	// Sessions carries the raw per-session results.
	Sessions []eval.SessionOutcome `json:"sessions,omitempty" yaml:"sessions,omitempty"`

	// Error describes a pipeline-level fault (Status failed or cancelled
	// without a completed batch).
	Error string `json:"error,omitempty" yaml:"error,omitempty"`
}

// BatchRunner is the evaluation capability the pipeline drives.
// *orchestrator.Orchestrator satisfies it.
type BatchRunner interface {
	RunBatch(ctx context.Context, dataset map[string][]eval.TurnSpec) (*orchestrator.BatchResult, error)
}

var _ BatchRunner = (*orchestrator.Orchestrator)(nil)

// Pipeline runs the full evaluate-gate-regress sequence over a dataset and
// records each run in its history. One pipeline instance owns its history for
// its whole lifetime.
type Pipeline struct {
	runner     BatchRunner
	config     Config
	dispatcher *hooks.Dispatcher
	history    *History
	threshold  float64
	logger     *slog.Logger
	tracer     trace.Tracer
}

// PipelineOption is a functional option for configuring a Pipeline.
type PipelineOption func(*Pipeline)

// WithLogger configures the pipeline to use the given structured logger.
func WithLogger(logger *slog.Logger) PipelineOption {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithTracer configures the OpenTelemetry tracer used around pipeline stages.
func WithTracer(tracer trace.Tracer) PipelineOption {
	return func(p *Pipeline) {
		if tracer != nil {
			p.tracer = tracer
		}
	}
}

// WithDispatcher attaches a hook dispatcher. The pipeline fires
// integration-test hooks before evaluation and post-evaluation hooks after
// the report is built.
func WithDispatcher(d *hooks.Dispatcher) PipelineOption {
	return func(p *Pipeline) {
		if d != nil {
			p.dispatcher = d
		}
	}
}

// WithHistory attaches an existing run history, e.g. one restored from disk.
func WithHistory(h *History) PipelineOption {
	return func(p *Pipeline) {
		if h != nil {
			p.history = h
		}
	}
}

// WithDegradationThreshold overrides the regression detection threshold.
func WithDegradationThreshold(t float64) PipelineOption {
	return func(p *Pipeline) {
		if t > 0 {
			p.threshold = t
		}
	}
}

// NewPipeline creates a pipeline around a batch runner and gate config.
func NewPipeline(runner BatchRunner, cfg Config, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		runner:     runner,
		config:     cfg,
		dispatcher: hooks.NewDispatcher(),
		history:    NewHistory(),
		threshold:  DefaultDegradationThreshold,
		logger:     slog.Default(),
		tracer:     noop.NewTracerProvider().Tracer("pipeline"),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("component", "pipeline")
	return p
}

// History exposes the pipeline's run history.
func (p *Pipeline) History() *History { return p.history }

// Run executes the full pipeline over a dataset: integration-test pre-checks,
// batch evaluation, gate check, regression check, then report construction
// and history append. A failed pre-check or a faulted stage produces a failed
// report; context cancellation produces a cancelled report. The returned
// error is non-nil only for failed and cancelled reports, carrying the coded
// cause.
func (p *Pipeline) Run(ctx context.Context, dataset map[string][]eval.TurnSpec) (*Report, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.run",
		trace.WithAttributes(attribute.Int("pipeline.session_count", len(dataset))),
	)
	defer span.End()

	report := &Report{Stage: StageIdle, Timestamp: time.Now()}

	// Pre-checks: integration-test hooks must all succeed for the run to
	// proceed.
	report.Stage = StagePreChecks
	preChecks, err := p.runPreChecks(ctx)
	report.PreChecks = preChecks
	if err != nil {
		return p.fail(report, err)
	}

	report.Stage = StageEvaluating
	p.logger.Info("running evaluation batch", "sessions", len(dataset))

	result, err := p.runBatch(ctx, dataset)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			report.Status = StatusCancelled
			report.Error = err.Error()
			p.logger.Warn("pipeline cancelled", "stage", string(report.Stage))
			return report, types.WrapError(types.PIPELINE_CANCELLED, "evaluation cancelled", err)
		}
		return p.fail(report, err)
	}
	report.Summary = result.Summary
	report.Sessions = result.Sessions

	// Post-evaluation hooks observe the batch results before the verdict
	// stages run; their records travel with the report.
	report.PostChecks = p.firePostEvaluation(ctx, result.Summary)

	report.Stage = StageGateCheck
	report.Gate = CheckGate(result.Summary, p.config)
	p.logger.Info("gate checked",
		"passed", report.Gate.Passed, "failed_checks", report.Gate.FailedChecks())

	report.Stage = StageRegressionCheck
	regression := CheckRegression(p.history, result.Summary, p.threshold)
	report.Regression = &regression
	if regression.Detected {
		p.logger.Warn("regression detected", "reason", regression.Reason)
	}

	report.Stage = StageReported
	report.Status = BuildStatus(report.Gate, regression)

	p.history.Append(HistoryEntry{
		Timestamp:  report.Timestamp,
		Summary:    result.Summary,
		Gate:       report.Gate,
		Regression: &regression,
	})

	span.SetAttributes(attribute.String("pipeline.status", string(report.Status)))
	p.logger.Info("pipeline complete", "status", string(report.Status))

	return report, nil
}

// runPreChecks fires the integration-test hooks. Any record with a
// non-success status aborts the run.
func (p *Pipeline) runPreChecks(ctx context.Context) ([]hooks.Record, error) {
	records := p.dispatcher.Fire(ctx, hooks.PointIntegrationTest, hooks.Context{
		Point:     hooks.PointIntegrationTest,
		Timestamp: time.Now(),
	})

	for _, rec := range records {
		if rec.Status != hooks.StatusSuccess {
			p.logger.Error("integration pre-check failed",
				"hook", rec.HookName, "status", string(rec.Status), "error", rec.Error)
			return records, types.NewError(types.PIPELINE_STAGE_FAILED,
				fmt.Sprintf("integration pre-check %s %s", rec.HookName, rec.Status))
		}
	}
	return records, nil
}

// runBatch invokes the runner with stage fault containment.
func (p *Pipeline) runBatch(ctx context.Context, dataset map[string][]eval.TurnSpec) (result *orchestrator.BatchResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("evaluation stage panicked", "panic", r)
			result = nil
			err = types.NewError(types.PIPELINE_STAGE_FAILED, fmt.Sprintf("evaluation panicked: %v", r))
		}
	}()

	return p.runner.RunBatch(ctx, dataset)
}

// firePostEvaluation fires the post-evaluation hooks over the batch summary
// and returns their records for inclusion in the report.
func (p *Pipeline) firePostEvaluation(ctx context.Context, summary eval.BatchSummary) []hooks.Record {
	return p.dispatcher.Fire(ctx, hooks.PointPostEvaluation, hooks.Context{
		Point: hooks.PointPostEvaluation,
		Results: map[string]any{
			"success_rate": summary.SuccessRate,
			"total_turns":  summary.TotalTurns,
		},
		Timestamp: time.Now(),
	})
}

func (p *Pipeline) fail(report *Report, err error) (*Report, error) {
	report.Status = StatusFailed
	report.Error = err.Error()
	p.logger.Error("pipeline failed", "stage", string(report.Stage), "error", err)
	return report, err
}

// BuildStatus combines the gate and regression verdicts into a final status.
// Gate failure dominates; a regression on a passing gate downgrades to
// warning. This status is the sole verdict automation should branch on.
func BuildStatus(gate Verdict, regression RegressionVerdict) Status {
	switch {
	case !gate.Passed:
		return StatusFailed
	case regression.Detected:
		return StatusWarning
	default:
		return StatusPassed
	}
}

// BuildReport assembles a terminal report from the individual verdicts, for
// callers that drive the checks themselves instead of using Pipeline.Run.
func BuildReport(summary eval.BatchSummary, gateVerdict Verdict, regression RegressionVerdict, preChecks, postChecks []hooks.Record) *Report {
	return &Report{
		Status:     BuildStatus(gateVerdict, regression),
		Stage:      StageReported,
		Timestamp:  time.Now(),
		Summary:    summary,
		Gate:       gateVerdict,
		Regression: &regression,
		PreChecks:  preChecks,
		PostChecks: postChecks,
	}
}

// Package orchestrator implements the two-level concurrent scheduler that
// evaluates a batch of conversation sessions: sessions run under a
// batch-level worker bound and, within each session, turns run under a
// per-session worker bound. Every submitted unit of work yields exactly one
// outcome, whatever happens; faults are contained at the turn boundary so
// sibling work is never affected.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"

	"github.com/agentvet/agentvet/internal/eval"
)

// DefaultSessionWorkers is the batch-level worker bound: the number of
// sessions evaluated concurrently.
const DefaultSessionWorkers = 5

// BatchResult carries the aggregated summary plus the raw per-session results
// of one batch run.
type BatchResult struct {
	Summary  eval.BatchSummary     `json:"summary"`
	Sessions []eval.SessionOutcome `json:"sessions"`
}

// Orchestrator schedules sessions and turns with bounded parallelism.
//
// Three independent concurrency bounds exist at runtime: the batch-level
// session bound (sessionWorkers), and a fresh per-session turn bound created
// for each session from its MaxConcurrentTurns. The orchestrator applies no
// per-call timeout: a hung evaluator holds one worker slot indefinitely.
type Orchestrator struct {
	registry       *eval.Registry
	logger         *slog.Logger
	tracer         trace.Tracer
	sessionWorkers int
	turnWorkers    int
	trackedMetrics []string
	strictBuild    bool
}

// Option is a functional option for configuring an Orchestrator.
type Option func(*Orchestrator)

// WithLogger configures the orchestrator to use the given structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithTracer configures the OpenTelemetry tracer used to create spans around
// batch, session, and turn execution.
func WithTracer(tracer trace.Tracer) Option {
	return func(o *Orchestrator) {
		if tracer != nil {
			o.tracer = tracer
		}
	}
}

// WithSessionWorkers sets the batch-level worker bound.
func WithSessionWorkers(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.sessionWorkers = n
		}
	}
}

// WithTurnWorkers sets the per-session turn worker bound applied to sessions
// built by this orchestrator.
func WithTurnWorkers(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.turnWorkers = n
		}
	}
}

// WithTrackedMetrics sets the metric names aggregated into batch summaries.
func WithTrackedMetrics(metrics []string) Option {
	return func(o *Orchestrator) {
		if len(metrics) > 0 {
			o.trackedMetrics = metrics
		}
	}
}

// WithStrictBuild makes BuildSession reject turns whose evaluation-type tag is
// not registered, instead of deferring the configuration error to evaluation
// time.
func WithStrictBuild() Option {
	return func(o *Orchestrator) {
		o.strictBuild = true
	}
}

// New creates an Orchestrator around a fixed evaluator registry.
// Default configuration: 5 session workers, 3 turn workers per session,
// no-op tracer, slog.Default() logging, default tracked metric set.
func New(registry *eval.Registry, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		registry:       registry,
		logger:         slog.Default(),
		tracer:         noop.NewTracerProvider().Tracer("orchestrator"),
		sessionWorkers: DefaultSessionWorkers,
		turnWorkers:    eval.DefaultMaxConcurrentTurns,
		trackedMetrics: eval.DefaultTrackedMetrics,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.With("component", "orchestrator")
	return o
}

// BuildSession deterministically constructs a session from one trajectory's
// turn specs. Turn ordinals are assigned by input order. A spec lacking a
// question or an evaluation-type tag fails construction with a
// MALFORMED_INPUT error; under strict build, an unregistered evaluation-type
// tag fails construction with a CONFIGURATION_ERROR.
func (o *Orchestrator) BuildSession(trajectoryID string, specs []eval.TurnSpec) (*eval.Session, error) {
	turns := make([]eval.Turn, 0, len(specs))

	for i, spec := range specs {
		turn, err := eval.NewTurn(i, spec)
		if err != nil {
			return nil, fmt.Errorf("trajectory %s turn %d: %w", trajectoryID, i, err)
		}

		if o.strictBuild {
			if _, err := o.registry.Lookup(turn.EvalType); err != nil {
				return nil, fmt.Errorf("trajectory %s turn %d: %w", trajectoryID, i, err)
			}
		}

		turns = append(turns, turn)
	}

	session := eval.NewSession(trajectoryID, turns, o.turnWorkers)

	o.logger.Debug("built session",
		"session_id", session.ID,
		"trajectory_id", trajectoryID,
		"turns", len(turns),
	)

	return session, nil
}

// EvaluateTurn invokes the evaluator capability selected by the turn's
// evaluation-type tag and converts whatever happens into exactly one
// TurnOutcome. It never raises past this boundary: an unknown tag or a
// capability error becomes status error, the "no result" sentinel becomes
// status failed. After a success, the turn's response is recorded in the
// session context map through the session's serialized update path.
func (o *Orchestrator) EvaluateTurn(ctx context.Context, session *eval.Session, turn eval.Turn) eval.TurnOutcome {
	ctx, span := o.tracer.Start(ctx, "turn.evaluate",
		trace.WithAttributes(
			attribute.String("session.id", session.ID.String()),
			attribute.String("trajectory.id", session.TrajectoryID),
			attribute.Int("turn.id", turn.Ordinal),
			attribute.String("turn.eval_type", turn.EvalType),
		),
	)
	defer span.End()

	outcome := eval.TurnOutcome{
		SessionID: session.ID,
		TurnID:    turn.Ordinal,
		Timestamp: time.Now(),
	}

	evaluator, err := o.registry.Lookup(turn.EvalType)
	if err != nil {
		o.logger.Error("no evaluator for turn",
			"session_id", session.ID, "turn_id", turn.Ordinal, "eval_type", turn.EvalType)
		outcome.Status = eval.TurnError
		outcome.Error = err.Error()
		return outcome
	}

	result, err := evaluator.Evaluate(ctx, eval.Request{
		EvalType:     turn.EvalType,
		Question:     turn.Question,
		Expected:     turn.Expected,
		Metadata:     turn.Metadata,
		SessionID:    session.ID,
		TrajectoryID: session.TrajectoryID,
		TurnID:       turn.Ordinal,
	})

	outcome.Timestamp = time.Now()

	switch {
	case errors.Is(err, eval.ErrNoResult), err == nil && result == nil:
		o.logger.Warn("evaluation returned no result",
			"session_id", session.ID, "turn_id", turn.Ordinal)
		outcome.Status = eval.TurnFailed
		outcome.Error = "evaluation returned no result"
	case err != nil:
		o.logger.Error("evaluation error",
			"session_id", session.ID, "turn_id", turn.Ordinal, "error", err)
		outcome.Status = eval.TurnError
		outcome.Error = err.Error()
	default:
		outcome.Status = eval.TurnSuccess
		outcome.Result = result
		session.RecordTurnResponse(turn.Ordinal, result.AgentResponse)
	}

	return outcome
}

// RunSession executes all turns of a session under the session's turn worker
// bound, using a semaphore-guarded goroutine per turn. Turns are evaluated
// independently; outcomes are collected in completion order, and a single
// turn's panic is contained as a status-exception outcome without aborting
// sibling turns.
func (o *Orchestrator) RunSession(ctx context.Context, session *eval.Session) eval.SessionOutcome {
	ctx, span := o.tracer.Start(ctx, "session.run",
		trace.WithAttributes(
			attribute.String("session.id", session.ID.String()),
			attribute.String("trajectory.id", session.TrajectoryID),
			attribute.Int("session.turn_count", len(session.Turns)),
		),
	)
	defer span.End()

	o.logger.Info("starting session",
		"session_id", session.ID,
		"trajectory_id", session.TrajectoryID,
		"turns", len(session.Turns),
		"max_concurrent_turns", session.MaxConcurrentTurns,
	)

	outcomes := make([]eval.TurnOutcome, 0, len(session.Turns))
	var outcomesMu sync.Mutex

	sem := make(chan struct{}, session.MaxConcurrentTurns)
	var wg sync.WaitGroup

	for _, turn := range session.Turns {
		wg.Add(1)
		sem <- struct{}{}

		go func(t eval.Turn) {
			defer wg.Done()
			defer func() { <-sem }()

			outcome := o.evaluateTurnSafe(ctx, session, t)

			outcomesMu.Lock()
			outcomes = append(outcomes, outcome)
			outcomesMu.Unlock()

			o.logger.Info("completed turn",
				"session_id", session.ID,
				"turn_id", t.Ordinal,
				"status", string(outcome.Status),
			)
		}(turn)
	}

	wg.Wait()

	return eval.SessionOutcome{
		SessionID:    session.ID,
		TrajectoryID: session.TrajectoryID,
		Status:       eval.SessionCompleted,
		Outcomes:     outcomes,
		Context:      session.ContextSnapshot(),
	}
}

// evaluateTurnSafe contains panics escaping the evaluation boundary so that
// every submitted turn yields exactly one outcome.
func (o *Orchestrator) evaluateTurnSafe(ctx context.Context, session *eval.Session, turn eval.Turn) (outcome eval.TurnOutcome) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("turn evaluation panicked",
				"session_id", session.ID, "turn_id", turn.Ordinal, "panic", r)
			outcome = eval.TurnOutcome{
				SessionID: session.ID,
				TurnID:    turn.Ordinal,
				Status:    eval.TurnException,
				Error:     fmt.Sprintf("panic: %v", r),
				Timestamp: time.Now(),
			}
		}
	}()

	return o.EvaluateTurn(ctx, session, turn)
}

// RunBatch builds sessions from the input dataset and executes them all under
// the batch-level worker bound, then aggregates every turn outcome into a
// BatchSummary. A session that cannot be constructed is recorded as a failed
// SessionOutcome and does not abort other sessions. The returned error is
// non-nil only when the batch context was cancelled.
func (o *Orchestrator) RunBatch(ctx context.Context, dataset map[string][]eval.TurnSpec) (*BatchResult, error) {
	ctx, span := o.tracer.Start(ctx, "batch.run",
		trace.WithAttributes(
			attribute.Int("batch.session_count", len(dataset)),
			attribute.Int("batch.session_workers", o.sessionWorkers),
		),
	)
	defer span.End()

	start := time.Now()

	// Deterministic session construction order.
	trajectoryIDs := make([]string, 0, len(dataset))
	for id := range dataset {
		trajectoryIDs = append(trajectoryIDs, id)
	}
	sort.Strings(trajectoryIDs)

	o.logger.Info("starting batch",
		"sessions", len(trajectoryIDs),
		"session_workers", o.sessionWorkers,
	)

	sessionOutcomes := make([]eval.SessionOutcome, 0, len(trajectoryIDs))
	var outcomesMu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.sessionWorkers)

	for _, trajectoryID := range trajectoryIDs {
		specs := dataset[trajectoryID]

		g.Go(func() error {
			var outcome eval.SessionOutcome

			session, err := o.BuildSession(trajectoryID, specs)
			if err != nil {
				o.logger.Error("session construction failed",
					"trajectory_id", trajectoryID, "error", err)
				outcome = eval.SessionOutcome{
					TrajectoryID: trajectoryID,
					Status:       eval.SessionFailed,
					Error:        err.Error(),
				}
			} else {
				outcome = o.RunSession(gctx, session)
			}

			outcomesMu.Lock()
			sessionOutcomes = append(sessionOutcomes, outcome)
			outcomesMu.Unlock()

			o.logger.Info("completed session",
				"trajectory_id", trajectoryID, "status", string(outcome.Status))

			return nil
		})
	}

	// Workers never return errors; Wait only blocks until all finish.
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	summary := eval.BuildBatchSummary(sessionOutcomes, o.trackedMetrics, time.Since(start))

	span.SetAttributes(
		attribute.Int("batch.total_turns", summary.TotalTurns),
		attribute.Float64("batch.success_rate", summary.SuccessRate),
	)

	o.logger.Info("batch complete",
		"total_turns", summary.TotalTurns,
		"success_rate", summary.SuccessRate,
		"duration", summary.ExecutionTime,
	)

	return &BatchResult{
		Summary:  summary,
		Sessions: sessionOutcomes,
	}, nil
}

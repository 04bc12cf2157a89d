package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/agentvet/agentvet/internal/eval"
	"github.com/agentvet/agentvet/internal/types"
)

func specs(n int) []eval.TurnSpec {
	out := make([]eval.TurnSpec, n)
	for i := range out {
		out[i] = eval.TurnSpec{
			Question:     fmt.Sprintf("question %d", i),
			GroundTruth:  fmt.Sprintf("answer %d", i),
			QuestionType: "RAG",
		}
	}
	return out
}

func scriptedRegistry(e eval.Evaluator) *eval.Registry {
	return eval.NewRegistry(map[string]eval.Evaluator{"RAG": e})
}

func allSuccess() *eval.Registry {
	return scriptedRegistry(eval.EvaluatorFunc(func(ctx context.Context, req eval.Request) (*eval.Result, error) {
		return &eval.Result{
			AgentResponse: "response to " + req.Question,
			Scores:        map[string]float64{"overall": 0.9},
		}, nil
	}))
}

func TestBuildSession(t *testing.T) {
	o := New(allSuccess())

	session, err := o.BuildSession("traj-1", specs(3))
	require.NoError(t, err)

	require.Len(t, session.Turns, 3)
	for i, turn := range session.Turns {
		assert.Equal(t, i, turn.Ordinal, "ordinals follow input order")
	}
	assert.Equal(t, "traj-1", session.TrajectoryID)
	assert.Equal(t, eval.DefaultMaxConcurrentTurns, session.MaxConcurrentTurns)
}

func TestBuildSessionRejectsMalformedSpec(t *testing.T) {
	o := New(allSuccess())

	_, err := o.BuildSession("traj-1", []eval.TurnSpec{
		{Question: "ok", QuestionType: "RAG"},
		{Question: "", QuestionType: "RAG"},
	})
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.MALFORMED_INPUT))
	assert.Contains(t, err.Error(), "turn 1")
}

func TestBuildSessionStrictRejectsUnknownTag(t *testing.T) {
	o := New(allSuccess(), WithStrictBuild())

	_, err := o.BuildSession("traj-1", []eval.TurnSpec{
		{Question: "q", QuestionType: "UNKNOWN"},
	})
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.CONFIGURATION_ERROR))
}

func TestRunSessionAllSuccess(t *testing.T) {
	for _, turnWorkers := range []int{1, 3, 10} {
		t.Run(fmt.Sprintf("workers_%d", turnWorkers), func(t *testing.T) {
			o := New(allSuccess(), WithTurnWorkers(turnWorkers))

			session, err := o.BuildSession("traj-1", specs(10))
			require.NoError(t, err)

			outcome := o.RunSession(context.Background(), session)

			assert.Equal(t, eval.SessionCompleted, outcome.Status)
			require.Len(t, outcome.Outcomes, 10, "exactly one outcome per turn")
			for _, turnOutcome := range outcome.Outcomes {
				assert.Equal(t, eval.TurnSuccess, turnOutcome.Status)
				assert.NotNil(t, turnOutcome.Result)
			}
		})
	}
}

func TestRunSessionBoundsConcurrency(t *testing.T) {
	var running, peak atomic.Int32
	registry := scriptedRegistry(eval.EvaluatorFunc(func(ctx context.Context, req eval.Request) (*eval.Result, error) {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		running.Add(-1)
		return &eval.Result{AgentResponse: "ok"}, nil
	}))

	o := New(registry, WithTurnWorkers(2))
	session, err := o.BuildSession("traj-1", specs(8))
	require.NoError(t, err)

	o.RunSession(context.Background(), session)

	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestRunSessionNoResultTurn(t *testing.T) {
	registry := scriptedRegistry(eval.EvaluatorFunc(func(ctx context.Context, req eval.Request) (*eval.Result, error) {
		if req.TurnID == 1 {
			return nil, eval.ErrNoResult
		}
		return &eval.Result{AgentResponse: "ok", Scores: map[string]float64{"overall": 1.0}}, nil
	}))

	o := New(registry)
	session, err := o.BuildSession("traj-1", specs(3))
	require.NoError(t, err)

	outcome := o.RunSession(context.Background(), session)

	statuses := make(map[int]eval.TurnStatus)
	for _, turnOutcome := range outcome.Outcomes {
		statuses[turnOutcome.TurnID] = turnOutcome.Status
	}
	assert.Equal(t, eval.TurnSuccess, statuses[0])
	assert.Equal(t, eval.TurnFailed, statuses[1])
	assert.Equal(t, eval.TurnSuccess, statuses[2])

	summary := eval.BuildBatchSummary([]eval.SessionOutcome{outcome}, nil, 0)
	assert.InDelta(t, 2.0/3.0, summary.SuccessRate, 1e-9)
}

func TestRunSessionWrappedNoResultIsFailed(t *testing.T) {
	registry := scriptedRegistry(eval.EvaluatorFunc(func(ctx context.Context, req eval.Request) (*eval.Result, error) {
		return nil, fmt.Errorf("agent backend: %w", eval.ErrNoResult)
	}))

	o := New(registry)
	session, err := o.BuildSession("traj-1", specs(1))
	require.NoError(t, err)

	outcome := o.RunSession(context.Background(), session)
	require.Len(t, outcome.Outcomes, 1)
	assert.Equal(t, eval.TurnFailed, outcome.Outcomes[0].Status, "wrapped sentinel is still a failed turn, not an error")
}

func TestRunSessionNilResultIsFailed(t *testing.T) {
	registry := scriptedRegistry(eval.EvaluatorFunc(func(ctx context.Context, req eval.Request) (*eval.Result, error) {
		return nil, nil
	}))

	o := New(registry)
	session, err := o.BuildSession("traj-1", specs(1))
	require.NoError(t, err)

	outcome := o.RunSession(context.Background(), session)
	require.Len(t, outcome.Outcomes, 1)
	assert.Equal(t, eval.TurnFailed, outcome.Outcomes[0].Status)
}

func TestRunSessionEvaluatorErrorIsError(t *testing.T) {
	registry := scriptedRegistry(eval.EvaluatorFunc(func(ctx context.Context, req eval.Request) (*eval.Result, error) {
		return nil, errors.New("backend unreachable")
	}))

	o := New(registry)
	session, err := o.BuildSession("traj-1", specs(1))
	require.NoError(t, err)

	outcome := o.RunSession(context.Background(), session)
	require.Len(t, outcome.Outcomes, 1)
	assert.Equal(t, eval.TurnError, outcome.Outcomes[0].Status)
	assert.Contains(t, outcome.Outcomes[0].Error, "backend unreachable")
}

func TestRunSessionContainsPanics(t *testing.T) {
	registry := scriptedRegistry(eval.EvaluatorFunc(func(ctx context.Context, req eval.Request) (*eval.Result, error) {
		if req.TurnID == 1 {
			panic("evaluator bug")
		}
		return &eval.Result{AgentResponse: "ok"}, nil
	}))

	o := New(registry)
	session, err := o.BuildSession("traj-1", specs(3))
	require.NoError(t, err)

	outcome := o.RunSession(context.Background(), session)

	require.Len(t, outcome.Outcomes, 3, "panicking turn still yields an outcome")
	statuses := make(map[int]eval.TurnStatus)
	for _, turnOutcome := range outcome.Outcomes {
		statuses[turnOutcome.TurnID] = turnOutcome.Status
	}
	assert.Equal(t, eval.TurnException, statuses[1])
	assert.Equal(t, eval.TurnSuccess, statuses[0], "sibling turns unaffected")
	assert.Equal(t, eval.TurnSuccess, statuses[2])
}

func TestRunSessionUnknownTagIsError(t *testing.T) {
	o := New(allSuccess())

	session, err := o.BuildSession("traj-1", []eval.TurnSpec{
		{Question: "q", QuestionType: "UNKNOWN"},
	})
	require.NoError(t, err, "lazy build defers tag errors to evaluation")

	outcome := o.RunSession(context.Background(), session)
	require.Len(t, outcome.Outcomes, 1)
	assert.Equal(t, eval.TurnError, outcome.Outcomes[0].Status)
	assert.Contains(t, outcome.Outcomes[0].Error, "unknown evaluation type")
}

func TestRunSessionRecordsResponsesInContext(t *testing.T) {
	o := New(allSuccess())
	session, err := o.BuildSession("traj-1", specs(4))
	require.NoError(t, err)

	outcome := o.RunSession(context.Background(), session)

	require.Len(t, outcome.Context, 4)
	for i := 0; i < 4; i++ {
		assert.Contains(t, outcome.Context, fmt.Sprintf("turn_%d_response", i))
	}
}

func TestRunBatch(t *testing.T) {
	o := New(allSuccess(), WithSessionWorkers(2))

	dataset := map[string][]eval.TurnSpec{
		"traj-a": specs(2),
		"traj-b": specs(3),
		"traj-c": specs(1),
	}

	result, err := o.RunBatch(context.Background(), dataset)
	require.NoError(t, err)

	assert.Equal(t, 3, result.Summary.TotalSessions)
	assert.Equal(t, 6, result.Summary.TotalTurns)
	assert.Equal(t, 6, result.Summary.SuccessfulTurns)
	assert.InDelta(t, 1.0, result.Summary.SuccessRate, 1e-9)
	assert.Len(t, result.Sessions, 3)
}

func TestRunBatchIsolatesConstructionFailures(t *testing.T) {
	o := New(allSuccess())

	dataset := map[string][]eval.TurnSpec{
		"traj-good": specs(2),
		"traj-bad":  {{Question: "", QuestionType: "RAG"}},
	}

	result, err := o.RunBatch(context.Background(), dataset)
	require.NoError(t, err)

	byTrajectory := make(map[string]eval.SessionOutcome)
	for _, session := range result.Sessions {
		byTrajectory[session.TrajectoryID] = session
	}

	assert.Equal(t, eval.SessionFailed, byTrajectory["traj-bad"].Status)
	assert.NotEmpty(t, byTrajectory["traj-bad"].Error)
	assert.Equal(t, eval.SessionCompleted, byTrajectory["traj-good"].Status)
	assert.Equal(t, 2, result.Summary.TotalTurns, "failed construction contributes no turns")
}

func TestRunBatchEmptyDataset(t *testing.T) {
	o := New(allSuccess())

	result, err := o.RunBatch(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, 0, result.Summary.TotalTurns)
	assert.Equal(t, 0.0, result.Summary.SuccessRate)
	assert.Empty(t, result.Sessions)
}

func TestRunBatchCancelled(t *testing.T) {
	o := New(allSuccess())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := o.RunBatch(ctx, map[string][]eval.TurnSpec{"traj-a": specs(1)})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunBatchEmitsSpans(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	o := New(allSuccess(), WithTracer(provider.Tracer("test")))

	_, err := o.RunBatch(context.Background(), map[string][]eval.TurnSpec{"traj-a": specs(2)})
	require.NoError(t, err)

	names := make(map[string]int)
	for _, span := range exporter.GetSpans() {
		names[span.Name]++
	}
	assert.Equal(t, 1, names["batch.run"])
	assert.Equal(t, 1, names["session.run"])
	assert.Equal(t, 2, names["turn.evaluate"])
}

func TestRunBatchTrackedMetrics(t *testing.T) {
	registry := scriptedRegistry(eval.EvaluatorFunc(func(ctx context.Context, req eval.Request) (*eval.Result, error) {
		return &eval.Result{
			AgentResponse: "ok",
			Scores: map[string]float64{
				"helpfulness": 0.8,
				"untracked":   0.1,
			},
		}, nil
	}))

	o := New(registry, WithTrackedMetrics([]string{"helpfulness"}))

	result, err := o.RunBatch(context.Background(), map[string][]eval.TurnSpec{"traj-a": specs(2)})
	require.NoError(t, err)

	assert.InDelta(t, 0.8, result.Summary.AverageScores["helpfulness"], 1e-9)
	assert.NotContains(t, result.Summary.AverageScores, "untracked")
}

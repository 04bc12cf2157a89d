package eval

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/agentvet/agentvet/internal/types"
)

// ErrNoResult is the "no result" sentinel an evaluator may return when the
// agent produced nothing scoreable. The scheduler converts it to a TurnOutcome
// with status failed, not error.
var ErrNoResult = errors.New("evaluation returned no result")

// Request carries everything an evaluator capability needs to evaluate one turn.
type Request struct {
	// EvalType is the evaluation-type tag that selected this evaluator.
	EvalType string

	// Question is the prompt for the agent under evaluation.
	Question string

	// Expected is the expected answer; may be empty.
	Expected string

	// Metadata is the turn's free-form metadata map.
	Metadata map[string]any

	// SessionID and TrajectoryID identify the conversation this turn belongs to.
	SessionID    types.ID
	TrajectoryID string

	// TurnID is the turn's ordinal within its session.
	TurnID int
}

// Result is the payload an evaluator produces on success: the agent's answer
// plus a metric-score map. The scheduler does not interpret metric semantics
// beyond extracting numeric scores keyed by metric name.
type Result struct {
	// AgentResponse is the answer produced by the agent under evaluation.
	AgentResponse string `json:"agent_response" yaml:"agent_response"`

	// Scores maps metric name to a score, conventionally in [0.0, 1.0].
	Scores map[string]float64 `json:"metrics_scores,omitempty" yaml:"metrics_scores,omitempty"`

	// Metadata carries evaluator-specific detail (explanations, trace IDs, ...).
	Metadata map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Evaluator is the opaque capability that evaluates one turn.
//
// Contract: return (result, nil) on success; (nil, ErrNoResult) or (nil, nil)
// when the agent produced no scoreable result; any other error for a
// recoverable application fault. The scheduler catches everything at the turn
// boundary, so evaluators never need to worry about aborting sibling work.
// Retry and backoff policy, if any, belongs inside the evaluator.
type Evaluator interface {
	Evaluate(ctx context.Context, req Request) (*Result, error)
}

// EvaluatorFunc adapts a plain function to the Evaluator interface.
type EvaluatorFunc func(ctx context.Context, req Request) (*Result, error)

// Evaluate implements Evaluator.
func (f EvaluatorFunc) Evaluate(ctx context.Context, req Request) (*Result, error) {
	return f(ctx, req)
}

// Registry maps evaluation-type tags to evaluator capabilities.
// The set of tags is fixed at construction time; unknown tags are rejected
// eagerly at session build rather than discovered at call time.
type Registry struct {
	evaluators map[string]Evaluator
}

// NewRegistry builds a registry from a tag-to-evaluator map.
// The map is copied; later mutation of the argument does not affect the registry.
func NewRegistry(evaluators map[string]Evaluator) *Registry {
	m := make(map[string]Evaluator, len(evaluators))
	for tag, e := range evaluators {
		m[tag] = e
	}
	return &Registry{evaluators: m}
}

// Lookup resolves an evaluation-type tag to its capability.
// Returns a CONFIGURATION_ERROR for unregistered tags.
func (r *Registry) Lookup(tag string) (Evaluator, error) {
	e, ok := r.evaluators[tag]
	if !ok {
		return nil, types.NewError(types.CONFIGURATION_ERROR,
			fmt.Sprintf("unknown evaluation type: %s", tag))
	}
	return e, nil
}

// Has reports whether the tag is registered.
func (r *Registry) Has(tag string) bool {
	_, ok := r.evaluators[tag]
	return ok
}

// Tags returns the registered evaluation-type tags in sorted order.
func (r *Registry) Tags() []string {
	tags := make([]string, 0, len(r.evaluators))
	for tag := range r.evaluators {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

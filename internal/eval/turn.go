package eval

import (
	"fmt"
	"time"

	"github.com/agentvet/agentvet/internal/types"
)

// TurnStatus classifies the outcome of evaluating a single turn.
type TurnStatus string

const (
	// TurnSuccess indicates the evaluator produced a scored result.
	TurnSuccess TurnStatus = "success"

	// TurnFailed indicates the evaluator returned the "no result" sentinel.
	TurnFailed TurnStatus = "failed"

	// TurnError indicates the evaluator raised a recoverable application error,
	// or the turn's evaluation-type tag was not registered.
	TurnError TurnStatus = "error"

	// TurnException indicates an unexpected, unclassified fault (e.g. a panic
	// inside the evaluator) was contained by the scheduler.
	TurnException TurnStatus = "exception"
)

// TurnSpec is the wire-level specification of a turn as it appears in an
// input dataset. Field names follow the dataset format: each trajectory maps
// to an ordered list of these specs.
type TurnSpec struct {
	// Question is the prompt sent to the agent under evaluation. Required.
	Question string `json:"question" yaml:"question"`

	// GroundTruth is the expected answer. May be empty for open-ended turns.
	GroundTruth string `json:"ground_truth,omitempty" yaml:"ground_truth,omitempty"`

	// QuestionType selects the evaluator capability for this turn. Required.
	QuestionType string `json:"question_type" yaml:"question_type"`

	// Metadata carries free-form per-turn attributes passed through to the
	// evaluator and to hooks.
	Metadata map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Validate checks that the spec carries the fields required to construct a turn.
func (s TurnSpec) Validate() error {
	if s.Question == "" {
		return types.NewError(types.MALFORMED_INPUT, "turn spec is missing question")
	}
	if s.QuestionType == "" {
		return types.NewError(types.MALFORMED_INPUT,
			fmt.Sprintf("turn spec %q is missing question_type", truncate(s.Question, 40)))
	}
	return nil
}

// Turn is one question/expected-answer pair within a session.
// Turns are constructed once when a session is built and are immutable
// thereafter; the ordinal is unique within the session and order-significant.
type Turn struct {
	Ordinal  int            `json:"turn_id"`
	Question string         `json:"question"`
	Expected string         `json:"expected_response,omitempty"`
	EvalType string         `json:"evaluation_type"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// NewTurn constructs a Turn from a spec, assigning the given ordinal.
// It fails with a MALFORMED_INPUT error if the spec lacks a question or an
// evaluation-type tag.
func NewTurn(ordinal int, spec TurnSpec) (Turn, error) {
	if err := spec.Validate(); err != nil {
		return Turn{}, err
	}

	return Turn{
		Ordinal:  ordinal,
		Question: spec.Question,
		Expected: spec.GroundTruth,
		EvalType: spec.QuestionType,
		Metadata: spec.Metadata,
	}, nil
}

// TurnOutcome is the immutable result of evaluating one turn.
// Exactly one outcome exists per attempted turn, whatever happened.
type TurnOutcome struct {
	SessionID types.ID   `json:"session_id" yaml:"session_id"`
	TurnID    int        `json:"turn_id" yaml:"turn_id"`
	Status    TurnStatus `json:"status" yaml:"status"`

	// Result is the evaluator's payload; non-nil only on success.
	Result *Result `json:"results,omitempty" yaml:"results,omitempty"`

	// Error holds the failure description for failed/error/exception outcomes.
	Error string `json:"error,omitempty" yaml:"error,omitempty"`

	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

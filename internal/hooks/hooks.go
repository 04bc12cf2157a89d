// Package hooks provides a lifecycle hook dispatch subsystem: named,
// prioritized units of work bound to fixed lifecycle points, executed before
// and after evaluation without coupling to the scheduler.
//
// Hooks for one lifecycle point run concurrently through a bounded worker
// pool, each hook's fault is contained individually, and the returned records
// always preserve registration/priority order regardless of completion order.
package hooks

import (
	"context"
	"time"

	"github.com/agentvet/agentvet/internal/types"
)

// Point identifies a lifecycle point hooks can bind to.
// The set is closed and known at compile time.
type Point string

const (
	PointPreEvaluation   Point = "pre_evaluation"
	PointPostEvaluation  Point = "post_evaluation"
	PointPreSession      Point = "pre_session"
	PointPostSession     Point = "post_session"
	PointPreTurn         Point = "pre_turn"
	PointPostTurn        Point = "post_turn"
	PointErrorHandler    Point = "error_handler"
	PointIntegrationTest Point = "integration_test"
	PointCustom          Point = "custom"
)

// Points lists every lifecycle point, in declaration order.
func Points() []Point {
	return []Point{
		PointPreEvaluation,
		PointPostEvaluation,
		PointPreSession,
		PointPostSession,
		PointPreTurn,
		PointPostTurn,
		PointErrorHandler,
		PointIntegrationTest,
		PointCustom,
	}
}

// Status classifies the result of one hook execution.
type Status string

const (
	// StatusSuccess indicates the hook ran to completion.
	StatusSuccess Status = "success"

	// StatusFailed indicates the hook ran but reported a failure.
	StatusFailed Status = "failed"

	// StatusException indicates the hook faulted (panicked or returned an
	// error to the dispatcher) and was contained.
	StatusException Status = "exception"

	// StatusHandled and StatusUnhandled are reported by error-policy hooks
	// depending on whether a handler existed for the captured error.
	StatusHandled   Status = "handled"
	StatusUnhandled Status = "unhandled"

	// StatusNoError is reported by error-policy hooks fired without an error.
	StatusNoError Status = "no_error"
)

// Context is the value object passed to a hook invocation.
// It is immutable once constructed; hooks must not retain or mutate the maps.
type Context struct {
	Point        Point          `json:"hook_type"`
	SessionID    types.ID       `json:"session_id,omitempty"`
	TurnID       int            `json:"turn_id,omitempty"`
	TrajectoryID string         `json:"trajectory_id,omitempty"`
	Data         map[string]any `json:"data,omitempty"`
	Results      map[string]any `json:"results,omitempty"`
	Err          error          `json:"-"`
	Timestamp    time.Time      `json:"timestamp"`
}

// Record is the result of one hook execution.
type Record struct {
	HookName string         `json:"hook_name" yaml:"hook_name"`
	Status   Status         `json:"status" yaml:"status"`
	Result   map[string]any `json:"result,omitempty" yaml:"result,omitempty"`
	Error    string         `json:"error,omitempty" yaml:"error,omitempty"`
	Elapsed  time.Duration  `json:"execution_time,omitempty" yaml:"execution_time,omitempty"`
}

// Hook is a named, prioritized unit of work bound to one lifecycle point.
//
// Execute returns the hook's record; a returned error (or a panic) is treated
// as a hook fault and converted by the dispatcher to a record with status
// exception. Hooks that want to report an application-level failure without
// faulting return a record with status failed and a nil error.
type Hook interface {
	Name() string
	Point() Point
	Priority() int
	Execute(ctx context.Context, hctx Context) (Record, error)
}

// funcHook adapts a plain function to the Hook interface.
// The function's error is reported as an application-level failure (status
// failed), matching the behavior of custom hooks that catch their own faults.
type funcHook struct {
	name     string
	point    Point
	priority int
	fn       func(ctx context.Context, hctx Context) (map[string]any, error)
}

// New creates a hook from a function. The function's returned map becomes the
// record's result payload; a returned error produces a record with status
// failed rather than a dispatcher-level fault.
func New(name string, point Point, priority int, fn func(ctx context.Context, hctx Context) (map[string]any, error)) Hook {
	return &funcHook{name: name, point: point, priority: priority, fn: fn}
}

func (h *funcHook) Name() string  { return h.name }
func (h *funcHook) Point() Point  { return h.point }
func (h *funcHook) Priority() int { return h.priority }

func (h *funcHook) Execute(ctx context.Context, hctx Context) (Record, error) {
	result, err := h.fn(ctx, hctx)
	if err != nil {
		return Record{
			HookName: h.name,
			Status:   StatusFailed,
			Error:    err.Error(),
		}, nil
	}
	return Record{
		HookName: h.name,
		Status:   StatusSuccess,
		Result:   result,
	}, nil
}

package hooks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/agentvet/agentvet/internal/types"
)

// ValidationRule describes the constraints checked on one input data field.
type ValidationRule struct {
	// Required fails validation when the field is absent or empty.
	Required bool

	// Kind, when set, names the expected Go kind: "string", "int", "float",
	// "bool", or "map".
	Kind string
}

// validationHook validates Context.Data fields against configured rules
// before evaluation.
type validationHook struct {
	name     string
	priority int
	rules    map[string]ValidationRule
}

// NewValidationHook creates a pre-evaluation hook that validates input data
// fields against the given rules. Validation problems are reported in the
// record payload; a violation does not fault the hook.
func NewValidationHook(name string, rules map[string]ValidationRule, priority int) Hook {
	return &validationHook{name: name, priority: priority, rules: rules}
}

func (h *validationHook) Name() string  { return h.name }
func (h *validationHook) Point() Point  { return PointPreEvaluation }
func (h *validationHook) Priority() int { return h.priority }

func (h *validationHook) Execute(ctx context.Context, hctx Context) (Record, error) {
	var results []map[string]any

	for field, rule := range h.rules {
		value, present := hctx.Data[field]

		switch {
		case rule.Required && (!present || isEmpty(value)):
			results = append(results, map[string]any{
				"field":   field,
				"status":  "failed",
				"message": fmt.Sprintf("required field %s is empty", field),
			})
		case present && rule.Kind != "" && !matchesKind(value, rule.Kind):
			results = append(results, map[string]any{
				"field":   field,
				"status":  "failed",
				"message": fmt.Sprintf("field %s has wrong type", field),
			})
		case present:
			results = append(results, map[string]any{
				"field":  field,
				"status": "passed",
			})
		}
	}

	return Record{
		HookName: h.name,
		Status:   StatusSuccess,
		Result:   map[string]any{"validation_results": results},
	}, nil
}

func isEmpty(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return val == ""
	default:
		return false
	}
}

func matchesKind(v any, kind string) bool {
	switch kind {
	case "string":
		_, ok := v.(string)
		return ok
	case "int":
		switch v.(type) {
		case int, int32, int64:
			return true
		}
		return false
	case "float":
		switch v.(type) {
		case float32, float64:
			return true
		}
		return false
	case "bool":
		_, ok := v.(bool)
		return ok
	case "map":
		_, ok := v.(map[string]any)
		return ok
	default:
		return false
	}
}

// performanceHook captures token usage metrics from evaluation results.
type performanceHook struct {
	name     string
	priority int

	mu      sync.Mutex
	metrics map[string]map[string]any
}

// NewPerformanceHook creates a post-evaluation hook that accumulates token
// usage metrics keyed by "sessionID_turnID" across firings.
func NewPerformanceHook(name string, priority int) Hook {
	return &performanceHook{
		name:     name,
		priority: priority,
		metrics:  make(map[string]map[string]any),
	}
}

func (h *performanceHook) Name() string  { return h.name }
func (h *performanceHook) Point() Point  { return PointPostEvaluation }
func (h *performanceHook) Priority() int { return h.priority }

func (h *performanceHook) Execute(ctx context.Context, hctx Context) (Record, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if response, ok := hctx.Results["agent_response"].(map[string]any); ok {
		inputTokens := intValue(response["input_tokens"])
		outputTokens := intValue(response["output_tokens"])

		key := fmt.Sprintf("%s_%d", hctx.SessionID, hctx.TurnID)
		h.metrics[key] = map[string]any{
			"input_tokens":  inputTokens,
			"output_tokens": outputTokens,
			"total_tokens":  inputTokens + outputTokens,
			"timestamp":     hctx.Timestamp,
		}
	}

	snapshot := make(map[string]any, len(h.metrics))
	for k, v := range h.metrics {
		snapshot[k] = v
	}

	return Record{
		HookName: h.name,
		Status:   StatusSuccess,
		Result:   map[string]any{"metrics": snapshot},
	}, nil
}

func intValue(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}

// ErrorPolicy maps a framework error code (or error type name) to a recovery
// action computed from the hook context.
type ErrorPolicy func(hctx Context) (map[string]any, error)

// errorPolicyHook applies error-type-specific recovery policy when fired with
// a captured error.
type errorPolicyHook struct {
	name     string
	priority int
	policies map[string]ErrorPolicy
}

// NewErrorPolicyHook creates an error-handler hook. When fired with a captured
// error, it looks up a policy by the error's code (for framework errors) or
// its formatted type and reports handled/unhandled accordingly. Without an
// error it reports no_error.
func NewErrorPolicyHook(name string, policies map[string]ErrorPolicy, priority int) Hook {
	return &errorPolicyHook{name: name, priority: priority, policies: policies}
}

func (h *errorPolicyHook) Name() string  { return h.name }
func (h *errorPolicyHook) Point() Point  { return PointErrorHandler }
func (h *errorPolicyHook) Priority() int { return h.priority }

func (h *errorPolicyHook) Execute(ctx context.Context, hctx Context) (Record, error) {
	if hctx.Err == nil {
		return Record{HookName: h.name, Status: StatusNoError}, nil
	}

	errType := errorTypeName(hctx.Err)

	policy, ok := h.policies[errType]
	if !ok {
		return Record{
			HookName: h.name,
			Status:   StatusUnhandled,
			Result:   map[string]any{"error_type": errType},
			Error:    fmt.Sprintf("no handler for error type %s", errType),
		}, nil
	}

	result, err := policy(hctx)
	if err != nil {
		return Record{
			HookName: h.name,
			Status:   StatusFailed,
			Result:   map[string]any{"error_type": errType},
			Error:    err.Error(),
		}, nil
	}

	return Record{
		HookName: h.name,
		Status:   StatusHandled,
		Result: map[string]any{
			"error_type": errType,
			"result":     result,
		},
	}, nil
}

func errorTypeName(err error) string {
	var fwErr *types.FrameworkError
	if errors.As(err, &fwErr) {
		return string(fwErr.Code)
	}
	return fmt.Sprintf("%T", err)
}

// NewLoggingHook creates a hook that logs the firing context at the given
// lifecycle point. Useful as a low-priority default observer.
func NewLoggingHook(name string, point Point, logger *slog.Logger, priority int) Hook {
	if logger == nil {
		logger = slog.Default()
	}
	return New(name, point, priority, func(ctx context.Context, hctx Context) (map[string]any, error) {
		logger.Info("lifecycle point fired",
			"point", string(hctx.Point),
			"session_id", hctx.SessionID.String(),
			"turn_id", hctx.TurnID,
			"trajectory_id", hctx.TrajectoryID,
		)
		return map[string]any{"logged": true, "at": time.Now()}, nil
	})
}

package eval

import (
	"context"
	"strings"
	"sync"
)

// ScriptedResponse is one canned reply used by the scripted evaluator.
type ScriptedResponse struct {
	// Answer is returned as the agent response.
	Answer string

	// Scores are the metric scores attached to the result.
	Scores map[string]float64

	// NoResult makes the evaluator return the "no result" sentinel instead.
	NoResult bool

	// Err, when non-nil, is returned as an evaluation error.
	Err error
}

// ScriptedEvaluator replays canned responses keyed by question text.
// It backs the CLI demo mode and tests, where no live agent backend exists.
// Questions without a scripted response fall back to Default.
type ScriptedEvaluator struct {
	mu        sync.Mutex
	responses map[string]ScriptedResponse

	// Default is used for questions without an explicit scripted response.
	Default ScriptedResponse
}

// NewScriptedEvaluator creates a scripted evaluator from a question-to-response map.
func NewScriptedEvaluator(responses map[string]ScriptedResponse) *ScriptedEvaluator {
	m := make(map[string]ScriptedResponse, len(responses))
	for q, r := range responses {
		m[q] = r
	}
	return &ScriptedEvaluator{
		responses: m,
		Default:   ScriptedResponse{NoResult: true},
	}
}

// Script registers or replaces the canned response for a question.
func (e *ScriptedEvaluator) Script(question string, resp ScriptedResponse) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.responses[question] = resp
}

// Evaluate implements Evaluator.
func (e *ScriptedEvaluator) Evaluate(ctx context.Context, req Request) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	resp, ok := e.responses[req.Question]
	e.mu.Unlock()
	if !ok {
		resp = e.Default
	}

	if resp.Err != nil {
		return nil, resp.Err
	}
	if resp.NoResult {
		return nil, ErrNoResult
	}

	scores := make(map[string]float64, len(resp.Scores))
	for name, score := range resp.Scores {
		scores[name] = score
	}

	return &Result{
		AgentResponse: resp.Answer,
		Scores:        scores,
	}, nil
}

// KeywordEvaluator scores the expected answer's keyword coverage.
// It is an offline baseline capability: the "agent response" is the expected
// answer itself and the score is the fraction of expected-answer keywords
// present in the question's reference text. Real deployments replace this with
// an evaluator that invokes a live agent backend.
type KeywordEvaluator struct {
	// Metric is the name the coverage score is reported under.
	// Defaults to "keyword_overlap" when empty.
	Metric string
}

// Evaluate implements Evaluator.
func (e *KeywordEvaluator) Evaluate(ctx context.Context, req Request) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if req.Expected == "" {
		return nil, ErrNoResult
	}

	metric := e.Metric
	if metric == "" {
		metric = "keyword_overlap"
	}

	questionWords := tokenize(req.Question)
	expectedWords := tokenize(req.Expected)
	if len(expectedWords) == 0 {
		return nil, ErrNoResult
	}

	matched := 0
	for word := range expectedWords {
		if _, ok := questionWords[word]; ok {
			matched++
		}
	}

	return &Result{
		AgentResponse: req.Expected,
		Scores: map[string]float64{
			metric: float64(matched) / float64(len(expectedWords)),
		},
	}, nil
}

func tokenize(s string) map[string]struct{} {
	words := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(s)) {
		w = strings.Trim(w, ".,;:!?\"'()")
		if w != "" {
			words[w] = struct{}{}
		}
	}
	return words
}

// Compile-time interface checks.
var (
	_ Evaluator = (*ScriptedEvaluator)(nil)
	_ Evaluator = (*KeywordEvaluator)(nil)
)

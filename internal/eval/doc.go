// Package eval defines the data model for trajectory-based agent evaluation:
// turns, sessions, turn outcomes, batch summaries, and the evaluator
// capability surface consumed by the orchestrator.
//
// A Turn is one question/expected-answer pair. A Session is one trajectory of
// ordered turns sharing a mutable conversational context map. Evaluators are
// opaque capabilities selected by each turn's evaluation-type tag through a
// closed Registry built once at startup.
//
// The package holds no scheduling logic; see internal/orchestrator for the
// concurrent execution of sessions and turns, and internal/gate for quality
// gates over the resulting BatchSummary.
package eval

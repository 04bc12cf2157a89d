package eval

import (
	"fmt"
	"sync"

	"github.com/agentvet/agentvet/internal/types"
)

// DefaultMaxConcurrentTurns is the per-session worker bound applied when a
// session is built without an explicit bound.
const DefaultMaxConcurrentTurns = 3

// SessionStatus classifies the overall fate of a session.
type SessionStatus string

const (
	// SessionCompleted indicates every turn produced an outcome, whatever the
	// individual statuses.
	SessionCompleted SessionStatus = "completed"

	// SessionFailed indicates the session itself could not run, e.g. it could
	// not be constructed from its turn specs.
	SessionFailed SessionStatus = "failed"
)

// Session is one trajectory of ordered turns sharing conversational context.
//
// The context map is owned by exactly one session. Turns of the same session
// may run in parallel and all may attempt to write, so mutation goes through
// SetContext, which serializes writers. Readers using a stale snapshot are
// acceptable: the map is best-effort auxiliary context, not an input gate.
type Session struct {
	// ID is the globally unique session identifier, generated at creation.
	ID types.ID

	// TrajectoryID is supplied by the input data. It is unique within one run
	// but not guaranteed unique across datasets.
	TrajectoryID string

	// Turns is the ordered turn sequence; immutable after construction.
	Turns []Turn

	// MaxConcurrentTurns bounds this session's turn worker pool.
	MaxConcurrentTurns int

	mu      sync.Mutex
	context map[string]any
}

// NewSession creates a session from pre-built turns with a fresh unique ID
// and an empty context map. maxConcurrentTurns <= 0 selects the default bound.
func NewSession(trajectoryID string, turns []Turn, maxConcurrentTurns int) *Session {
	if maxConcurrentTurns <= 0 {
		maxConcurrentTurns = DefaultMaxConcurrentTurns
	}
	return &Session{
		ID:                 types.NewID(),
		TrajectoryID:       trajectoryID,
		Turns:              turns,
		MaxConcurrentTurns: maxConcurrentTurns,
		context:            make(map[string]any),
	}
}

// SetContext writes one key into the session context map.
// Safe for concurrent use by turns of this session; the lock is held only for
// the duration of the write.
func (s *Session) SetContext(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.context[key] = value
}

// RecordTurnResponse stores a completed turn's agent response in the context
// map under the turn's ordinal key, for post-hoc inspection by later logic.
func (s *Session) RecordTurnResponse(ordinal int, response any) {
	s.SetContext(fmt.Sprintf("turn_%d_response", ordinal), response)
}

// ContextSnapshot returns a copy of the session context map.
func (s *Session) ContextSnapshot() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := make(map[string]any, len(s.context))
	for k, v := range s.context {
		snapshot[k] = v
	}
	return snapshot
}

// SessionOutcome aggregates a session's turn outcomes plus its final context
// snapshot.
type SessionOutcome struct {
	SessionID    types.ID      `json:"session_id" yaml:"session_id"`
	TrajectoryID string        `json:"trajectory_id" yaml:"trajectory_id"`
	Status       SessionStatus `json:"status" yaml:"status"`

	// Outcomes holds one entry per attempted turn, in completion order.
	Outcomes []TurnOutcome `json:"results,omitempty" yaml:"results,omitempty"`

	// Context is the session's final context snapshot.
	Context map[string]any `json:"context,omitempty" yaml:"context,omitempty"`

	// Error describes a session-level failure (Status == SessionFailed).
	Error string `json:"error,omitempty" yaml:"error,omitempty"`
}

package eval

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSession(t *testing.T) {
	turns := []Turn{
		{Ordinal: 0, Question: "q0", EvalType: "RAG"},
		{Ordinal: 1, Question: "q1", EvalType: "RAG"},
	}

	session := NewSession("traj-1", turns, 4)
	require.NotNil(t, session)

	assert.False(t, session.ID.IsZero())
	assert.Equal(t, "traj-1", session.TrajectoryID)
	assert.Len(t, session.Turns, 2)
	assert.Equal(t, 4, session.MaxConcurrentTurns)
	assert.Empty(t, session.ContextSnapshot())
}

func TestNewSessionDefaultsTurnBound(t *testing.T) {
	session := NewSession("traj-1", nil, 0)
	assert.Equal(t, DefaultMaxConcurrentTurns, session.MaxConcurrentTurns)

	session = NewSession("traj-1", nil, -3)
	assert.Equal(t, DefaultMaxConcurrentTurns, session.MaxConcurrentTurns)
}

func TestSessionIDsAreUnique(t *testing.T) {
	a := NewSession("same", nil, 1)
	b := NewSession("same", nil, 1)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestRecordTurnResponse(t *testing.T) {
	session := NewSession("traj-1", nil, 1)
	session.RecordTurnResponse(0, "first answer")
	session.RecordTurnResponse(2, "third answer")

	snapshot := session.ContextSnapshot()
	assert.Equal(t, "first answer", snapshot["turn_0_response"])
	assert.Equal(t, "third answer", snapshot["turn_2_response"])
	assert.NotContains(t, snapshot, "turn_1_response")
}

func TestSessionContextConcurrentWrites(t *testing.T) {
	session := NewSession("traj-1", nil, 1)

	const writers = 50
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			session.SetContext(fmt.Sprintf("key_%d", n), n)
			session.RecordTurnResponse(n, fmt.Sprintf("response %d", n))
		}(i)
	}
	wg.Wait()

	snapshot := session.ContextSnapshot()
	assert.Len(t, snapshot, writers*2)
	for i := 0; i < writers; i++ {
		assert.Equal(t, i, snapshot[fmt.Sprintf("key_%d", i)])
		assert.Equal(t, fmt.Sprintf("response %d", i), snapshot[fmt.Sprintf("turn_%d_response", i)])
	}
}

func TestContextSnapshotIsACopy(t *testing.T) {
	session := NewSession("traj-1", nil, 1)
	session.SetContext("k", "v")

	snapshot := session.ContextSnapshot()
	snapshot["k"] = "mutated"
	snapshot["new"] = true

	fresh := session.ContextSnapshot()
	assert.Equal(t, "v", fresh["k"])
	assert.NotContains(t, fresh, "new")
}

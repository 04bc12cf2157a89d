package eval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentvet/agentvet/internal/types"
)

func TestTurnSpecValidate(t *testing.T) {
	tests := []struct {
		name    string
		spec    TurnSpec
		wantErr bool
	}{
		{
			name: "valid spec",
			spec: TurnSpec{Question: "What is 2+2?", GroundTruth: "4", QuestionType: "RAG"},
		},
		{
			name:    "missing question",
			spec:    TurnSpec{QuestionType: "RAG"},
			wantErr: true,
		},
		{
			name:    "missing question type",
			spec:    TurnSpec{Question: "What is 2+2?"},
			wantErr: true,
		},
		{
			name: "empty ground truth is allowed",
			spec: TurnSpec{Question: "Tell me a story", QuestionType: "CUSTOM"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.spec.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, types.IsCode(err, types.MALFORMED_INPUT))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewTurn(t *testing.T) {
	spec := TurnSpec{
		Question:     "What is the capital of France?",
		GroundTruth:  "Paris",
		QuestionType: "RAG",
		Metadata:     map[string]any{"difficulty": "easy"},
	}

	turn, err := NewTurn(3, spec)
	require.NoError(t, err)

	assert.Equal(t, 3, turn.Ordinal)
	assert.Equal(t, spec.Question, turn.Question)
	assert.Equal(t, spec.GroundTruth, turn.Expected)
	assert.Equal(t, spec.QuestionType, turn.EvalType)
	assert.Equal(t, spec.Metadata, turn.Metadata)
}

func TestNewTurnRejectsInvalidSpec(t *testing.T) {
	_, err := NewTurn(0, TurnSpec{Question: "no type"})
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.MALFORMED_INPUT))
}

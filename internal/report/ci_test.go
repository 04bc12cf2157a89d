package report

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentvet/agentvet/internal/gate"
)

func TestParsePlatform(t *testing.T) {
	for input, want := range map[string]Platform{
		"":       PlatformNone,
		"github": PlatformGitHub,
		"GitHub": PlatformGitHub,
		"gitlab": PlatformGitLab,
	} {
		got, err := ParsePlatform(input)
		require.NoError(t, err, input)
		assert.Equal(t, want, got)
	}

	_, err := ParsePlatform("jenkins")
	assert.Error(t, err)
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, ExitCode(gate.StatusPassed))
	assert.Equal(t, 0, ExitCode(gate.StatusWarning))
	assert.Equal(t, 0, ExitCode(gate.StatusCancelled))
	assert.Equal(t, 1, ExitCode(gate.StatusFailed))
}

func TestEmitGitHubAppendsOutputs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "github_output")
	require.NoError(t, os.WriteFile(path, []byte("existing=1\n"), 0o644))
	t.Setenv("GITHUB_OUTPUT", path)

	require.NoError(t, EmitCI(sampleReport(), PlatformGitHub))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	out := string(data)
	assert.Contains(t, out, "existing=1", "existing outputs preserved")
	assert.Contains(t, out, "pipeline_status=passed")
	assert.Contains(t, out, "success_rate=0.9000")
	assert.Contains(t, out, "gate_passed=true")
	assert.Contains(t, out, "regression_detected=false")
}

func TestEmitNoneIsNoOp(t *testing.T) {
	assert.NoError(t, EmitCI(sampleReport(), PlatformNone))
}

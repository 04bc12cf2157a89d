package report

import (
	"fmt"
	"os"
	"strings"

	"github.com/agentvet/agentvet/internal/gate"
	"github.com/agentvet/agentvet/internal/types"
)

// Platform identifies a CI system receiving machine-readable outputs.
type Platform string

const (
	PlatformNone   Platform = ""
	PlatformGitHub Platform = "github"
	PlatformGitLab Platform = "gitlab"
)

// ParsePlatform validates a CI platform name from configuration.
func ParsePlatform(s string) (Platform, error) {
	switch Platform(strings.ToLower(s)) {
	case PlatformNone, PlatformGitHub, PlatformGitLab:
		return Platform(strings.ToLower(s)), nil
	default:
		return "", types.NewError(types.CONFIG_VALIDATION_FAILED,
			fmt.Sprintf("unknown CI platform %q", s))
	}
}

// ExitCode maps a pipeline status to the process exit code CI systems act on.
// Only a failed pipeline is a build failure; warnings pass with their status
// visible in the outputs.
func ExitCode(status gate.Status) int {
	if status == gate.StatusFailed {
		return 1
	}
	return 0
}

// EmitCI publishes machine-readable pipeline outputs for the given platform.
// Unknown or empty platforms are a no-op.
func EmitCI(r *gate.Report, platform Platform) error {
	switch platform {
	case PlatformGitHub:
		return emitGitHub(r)
	case PlatformGitLab:
		return emitGitLab(r)
	default:
		return nil
	}
}

// emitGitHub appends step outputs to the file named by GITHUB_OUTPUT. Without
// that variable (e.g. running locally) the outputs go to stdout in the same
// key=value form.
func emitGitHub(r *gate.Report) error {
	lines := ciOutputs(r)

	path := os.Getenv("GITHUB_OUTPUT")
	if path == "" {
		for _, line := range lines {
			fmt.Println(line)
		}
		return nil
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return types.WrapError(types.REPORT_WRITE_FAILED, "opening GITHUB_OUTPUT", err)
	}
	defer f.Close()

	for _, line := range lines {
		if _, err := fmt.Fprintln(f, line); err != nil {
			return types.WrapError(types.REPORT_WRITE_FAILED, "writing GITHUB_OUTPUT", err)
		}
	}
	return nil
}

// emitGitLab prints dotenv-style outputs for GitLab artifact reports.
func emitGitLab(r *gate.Report) error {
	for _, line := range ciOutputs(r) {
		fmt.Println(strings.ToUpper(strings.SplitN(line, "=", 2)[0]) + "=" + strings.SplitN(line, "=", 2)[1])
	}
	return nil
}

func ciOutputs(r *gate.Report) []string {
	regression := false
	if r.Regression != nil {
		regression = r.Regression.Detected
	}

	return []string{
		fmt.Sprintf("pipeline_status=%s", r.Status),
		fmt.Sprintf("success_rate=%.4f", r.Summary.SuccessRate),
		fmt.Sprintf("total_turns=%d", r.Summary.TotalTurns),
		fmt.Sprintf("gate_passed=%t", r.Gate.Passed),
		fmt.Sprintf("regression_detected=%t", regression),
	}
}

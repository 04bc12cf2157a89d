// Package report renders pipeline reports for humans and CI systems and
// persists them to disk.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/agentvet/agentvet/internal/gate"
	"github.com/agentvet/agentvet/internal/hooks"
	"github.com/agentvet/agentvet/internal/types"
)

// Format selects a report rendering.
type Format string

const (
	FormatJSON     Format = "json"
	FormatYAML     Format = "yaml"
	FormatMarkdown Format = "markdown"
)

// ParseFormat validates a format name from configuration.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case FormatJSON:
		return FormatJSON, nil
	case FormatYAML:
		return FormatYAML, nil
	case FormatMarkdown, Format("md"):
		return FormatMarkdown, nil
	default:
		return "", types.NewError(types.CONFIG_VALIDATION_FAILED,
			fmt.Sprintf("unknown report format %q", s))
	}
}

// Render serializes a pipeline report in the requested format.
func Render(r *gate.Report, format Format) ([]byte, error) {
	switch format {
	case FormatJSON:
		data, err := json.MarshalIndent(r, "", "  ")
		if err != nil {
			return nil, types.WrapError(types.REPORT_RENDER_FAILED, "rendering JSON report", err)
		}
		return data, nil
	case FormatYAML:
		data, err := yaml.Marshal(r)
		if err != nil {
			return nil, types.WrapError(types.REPORT_RENDER_FAILED, "rendering YAML report", err)
		}
		return data, nil
	case FormatMarkdown:
		return renderMarkdown(r), nil
	default:
		return nil, types.NewError(types.REPORT_RENDER_FAILED,
			fmt.Sprintf("unknown report format %q", format))
	}
}

func renderMarkdown(r *gate.Report) []byte {
	var b strings.Builder

	b.WriteString("# Evaluation Pipeline Report\n\n")
	fmt.Fprintf(&b, "**Status:** %s %s\n\n", statusEmoji(r.Status), strings.ToUpper(string(r.Status)))
	fmt.Fprintf(&b, "**Timestamp:** %s\n\n", r.Timestamp.Format(time.RFC3339))

	b.WriteString("## Summary\n\n")
	b.WriteString("| Metric | Value |\n|--------|-------|\n")
	fmt.Fprintf(&b, "| Total Turns | %d |\n", r.Summary.TotalTurns)
	fmt.Fprintf(&b, "| Successful | %d |\n", r.Summary.SuccessfulTurns)
	fmt.Fprintf(&b, "| Failed | %d |\n", r.Summary.FailedTurns)
	fmt.Fprintf(&b, "| Errors | %d |\n", r.Summary.ErrorTurns)
	fmt.Fprintf(&b, "| Exceptions | %d |\n", r.Summary.ExceptionTurns)
	fmt.Fprintf(&b, "| Success Rate | %.1f%% |\n", r.Summary.SuccessRate*100)
	fmt.Fprintf(&b, "| Sessions | %d |\n", r.Summary.TotalSessions)
	fmt.Fprintf(&b, "| Execution Time | %.2fs |\n\n", r.Summary.ExecutionTime.Seconds())

	if len(r.Summary.AverageScores) > 0 {
		b.WriteString("## Average Scores\n\n")
		b.WriteString("| Metric | Score |\n|--------|-------|\n")
		for _, metric := range sortedKeys(r.Summary.AverageScores) {
			fmt.Fprintf(&b, "| %s | %.3f |\n", metric, r.Summary.AverageScores[metric])
		}
		b.WriteString("\n")
	}

	b.WriteString("## Quality Gates\n\n")
	b.WriteString("| Check | Result |\n|-------|--------|\n")
	for _, name := range sortedBoolKeys(r.Gate.Checks) {
		mark := "✅"
		if !r.Gate.Checks[name] {
			mark = "❌"
		}
		fmt.Fprintf(&b, "| %s | %s |\n", name, mark)
	}
	b.WriteString("\n")

	writeCheckTable(&b, "Pre-Checks", r.PreChecks)
	writeCheckTable(&b, "Post-Checks", r.PostChecks)

	if r.Regression != nil && r.Regression.Detected {
		b.WriteString("## Regressions\n\n")
		b.WriteString("| Metric | Baseline | Current | Degradation |\n|--------|----------|---------|-------------|\n")
		for _, metric := range sortedDeltaKeys(r.Regression.Regressions) {
			delta := r.Regression.Regressions[metric]
			fmt.Fprintf(&b, "| %s | %.3f | %.3f | %.3f |\n",
				metric, delta.Baseline, delta.Current, delta.Degradation)
		}
		b.WriteString("\n")
	}

	if r.Error != "" {
		fmt.Fprintf(&b, "## Error\n\n```\n%s\n```\n", r.Error)
	}

	return []byte(b.String())
}

func writeCheckTable(b *strings.Builder, heading string, records []hooks.Record) {
	if len(records) == 0 {
		return
	}
	fmt.Fprintf(b, "## %s\n\n", heading)
	b.WriteString("| Hook | Status |\n|------|--------|\n")
	for _, rec := range records {
		fmt.Fprintf(b, "| %s | %s |\n", rec.HookName, rec.Status)
	}
	b.WriteString("\n")
}

func statusEmoji(s gate.Status) string {
	switch s {
	case gate.StatusPassed:
		return "✅"
	case gate.StatusWarning:
		return "⚠️"
	case gate.StatusCancelled:
		return "🚫"
	default:
		return "❌"
	}
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedBoolKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedDeltaKeys(m map[string]gate.MetricDelta) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// extensions maps formats to report file extensions.
var extensions = map[Format]string{
	FormatJSON:     "json",
	FormatYAML:     "yaml",
	FormatMarkdown: "md",
}

// Save writes a rendered report into outputDir under a timestamped name and
// returns the written path. The directory is created if absent.
func Save(r *gate.Report, format Format, outputDir string) (string, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", types.WrapError(types.REPORT_WRITE_FAILED, "creating output directory", err)
	}

	data, err := Render(r, format)
	if err != nil {
		return "", err
	}

	name := fmt.Sprintf("pipeline_report_%s.%s",
		r.Timestamp.Format("20060102_150405"), extensions[format])
	path := filepath.Join(outputDir, name)

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", types.WrapError(types.REPORT_WRITE_FAILED, "writing report", err)
	}
	return path, nil
}

// SaveHistory persists the run history as JSON, so later runs can use it as a
// regression baseline.
func SaveHistory(h *gate.History, outputDir string) (string, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", types.WrapError(types.REPORT_WRITE_FAILED, "creating output directory", err)
	}

	entries := h.Recent(h.Len())
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return "", types.WrapError(types.REPORT_RENDER_FAILED, "rendering history", err)
	}

	path := filepath.Join(outputDir, "evaluation_history.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", types.WrapError(types.REPORT_WRITE_FAILED, "writing history", err)
	}
	return path, nil
}

// LoadHistory restores a run history previously written by SaveHistory.
// A missing file yields an empty history, not an error.
func LoadHistory(outputDir string) (*gate.History, error) {
	path := filepath.Join(outputDir, "evaluation_history.json")

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return gate.NewHistory(), nil
		}
		return nil, types.WrapError(types.CONFIG_LOAD_FAILED, "reading history", err)
	}

	var entries []gate.HistoryEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, types.WrapError(types.CONFIG_PARSE_FAILED, "parsing history", err)
	}

	h := gate.NewHistory()
	for _, entry := range entries {
		h.Append(entry)
	}
	return h, nil
}

// Package dataset loads evaluation datasets from disk. A dataset maps each
// trajectory ID to its ordered list of turn specs, in JSON or YAML form.
package dataset

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/agentvet/agentvet/internal/eval"
	"github.com/agentvet/agentvet/internal/types"
)

// Dataset maps trajectory IDs to their ordered turn specs.
type Dataset map[string][]eval.TurnSpec

// TrajectoryIDs returns the dataset's trajectory IDs in sorted order.
func (d Dataset) TrajectoryIDs() []string {
	ids := make([]string, 0, len(d))
	for id := range d {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// TurnCount returns the total number of turns across all trajectories.
func (d Dataset) TurnCount() int {
	var n int
	for _, specs := range d {
		n += len(specs)
	}
	return n
}

// Load reads a dataset file, selecting the parser by extension: .json for
// JSON, .yaml or .yml for YAML.
func Load(path string) (Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, types.WrapError(types.DATASET_NOT_FOUND, "dataset not found", err)
		}
		return nil, types.WrapError(types.DATASET_LOAD_FAILED, "reading dataset", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return ParseJSON(data)
	case ".yaml", ".yml":
		return ParseYAML(data)
	default:
		return nil, types.NewError(types.DATASET_LOAD_FAILED,
			"unsupported dataset format: "+filepath.Ext(path))
	}
}

// ParseJSON parses a JSON dataset document.
func ParseJSON(data []byte) (Dataset, error) {
	var ds Dataset
	if err := json.Unmarshal(data, &ds); err != nil {
		return nil, types.WrapError(types.DATASET_PARSE_FAILED, "parsing JSON dataset", err)
	}
	return ds, validate(ds)
}

// ParseYAML parses a YAML dataset document.
func ParseYAML(data []byte) (Dataset, error) {
	var ds Dataset
	if err := yaml.Unmarshal(data, &ds); err != nil {
		return nil, types.WrapError(types.DATASET_PARSE_FAILED, "parsing YAML dataset", err)
	}
	return ds, validate(ds)
}

// validate rejects structurally empty datasets. Per-turn validation happens
// at session construction, where failures are isolated per trajectory.
func validate(ds Dataset) error {
	if len(ds) == 0 {
		return types.NewError(types.DATASET_PARSE_FAILED, "dataset contains no trajectories")
	}
	for id, specs := range ds {
		if len(specs) == 0 {
			return types.NewError(types.DATASET_PARSE_FAILED,
				"trajectory "+id+" contains no turns")
		}
	}
	return nil
}

package gate

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/agentvet/agentvet/internal/types"
)

// fileConfig is the on-disk gate configuration shape. Execution time is
// expressed in seconds, matching the CLI flag.
type fileConfig struct {
	MinSuccessRate   *float64 `yaml:"min_success_rate"`
	MinAverageScore  *float64 `yaml:"min_average_score"`
	MaxExecutionTime *float64 `yaml:"max_execution_time"`
	MaxFailedTurns   *int     `yaml:"max_failed_turns"`
	RequiredMetrics  []string `yaml:"required_metrics"`
}

// LoadConfig reads a YAML gate configuration from disk. Absent fields keep
// their defaults; present fields override them. The loaded configuration is
// validated before being returned.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, types.WrapError(types.CONFIG_NOT_FOUND, "gate config not found", err)
		}
		return cfg, types.WrapError(types.CONFIG_LOAD_FAILED, "reading gate config", err)
	}

	var raw fileConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return cfg, types.WrapError(types.CONFIG_PARSE_FAILED, "parsing gate config", err)
	}

	if raw.MinSuccessRate != nil {
		cfg.MinSuccessRate = *raw.MinSuccessRate
	}
	if raw.MinAverageScore != nil {
		cfg.MinAverageScore = *raw.MinAverageScore
	}
	if raw.MaxExecutionTime != nil {
		cfg.MaxExecutionTime = time.Duration(*raw.MaxExecutionTime * float64(time.Second))
	}
	if raw.MaxFailedTurns != nil {
		cfg.MaxFailedTurns = *raw.MaxFailedTurns
	}
	if len(raw.RequiredMetrics) > 0 {
		cfg.RequiredMetrics = raw.RequiredMetrics
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

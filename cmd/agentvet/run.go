package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentvet/agentvet/internal/dataset"
	"github.com/agentvet/agentvet/internal/eval"
	"github.com/agentvet/agentvet/internal/gate"
	"github.com/agentvet/agentvet/internal/hooks"
	"github.com/agentvet/agentvet/internal/orchestrator"
	"github.com/agentvet/agentvet/internal/report"
)

type runFlags struct {
	dataFile             string
	gateConfigPath       string
	sessionWorkers       int
	turnWorkers          int
	minSuccessRate       float64
	minAverageScore      float64
	maxExecutionTime     float64
	maxFailedTurns       int
	degradationThreshold float64
	outputDir            string
	outputFormat         string
	ciPlatform           string
	trace                bool
}

func newRunCmd() *cobra.Command {
	flags := &runFlags{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the evaluation pipeline over a dataset",
		Long: `Run loads a dataset of conversation trajectories, evaluates every turn with
bounded parallelism, checks the aggregate results against the quality gates,
compares them with previous runs for regressions, and writes the pipeline
report. The process exits 1 when the gates fail and 0 otherwise.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd, flags)
		},
	}

	cmd.Flags().StringVarP(&flags.dataFile, "data-file", "d", "", "dataset file (JSON or YAML), required")
	cmd.Flags().StringVar(&flags.gateConfigPath, "gate-config", "", "quality gate config file (YAML)")
	cmd.Flags().IntVar(&flags.sessionWorkers, "max-workers", orchestrator.DefaultSessionWorkers, "concurrent sessions")
	cmd.Flags().IntVar(&flags.turnWorkers, "turn-workers", eval.DefaultMaxConcurrentTurns, "concurrent turns per session")
	cmd.Flags().Float64Var(&flags.minSuccessRate, "min-success-rate", gate.DefaultMinSuccessRate, "minimum batch success rate")
	cmd.Flags().Float64Var(&flags.minAverageScore, "min-average-score", gate.DefaultMinAverageScore, "minimum average score per required metric")
	cmd.Flags().Float64Var(&flags.maxExecutionTime, "max-execution-time", gate.DefaultMaxExecutionTime.Seconds(), "maximum batch duration in seconds")
	cmd.Flags().IntVar(&flags.maxFailedTurns, "max-failed-turns", gate.DefaultMaxFailedTurns, "maximum non-success turns")
	cmd.Flags().Float64Var(&flags.degradationThreshold, "degradation-threshold", gate.DefaultDegradationThreshold, "score drop that flags a regression")
	cmd.Flags().StringVarP(&flags.outputDir, "output-dir", "o", "evaluation_results", "directory for reports and run history")
	cmd.Flags().StringVar(&flags.outputFormat, "output-format", "json", "report format (json, yaml, markdown)")
	cmd.Flags().StringVar(&flags.ciPlatform, "ci-platform", "", "CI platform for machine-readable outputs (github, gitlab)")
	cmd.Flags().BoolVar(&flags.trace, "trace", false, "emit execution spans to stdout")

	cobra.CheckErr(cmd.MarkFlagRequired("data-file"))

	return cmd
}

func runPipeline(cmd *cobra.Command, flags *runFlags) error {
	ctx := cmd.Context()
	logger := slog.Default()

	format, err := report.ParseFormat(flags.outputFormat)
	if err != nil {
		return err
	}
	platform, err := report.ParsePlatform(flags.ciPlatform)
	if err != nil {
		return err
	}

	cfg, err := buildGateConfig(flags, cmd.Flags().Changed)
	if err != nil {
		return err
	}

	ds, err := dataset.Load(flags.dataFile)
	if err != nil {
		return err
	}
	logger.Info("loaded dataset",
		"path", flags.dataFile,
		"trajectories", len(ds),
		"turns", ds.TurnCount(),
	)

	history, err := report.LoadHistory(flags.outputDir)
	if err != nil {
		return err
	}

	tracer, shutdownTracing, err := setupTracing(flags.trace)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("trace shutdown failed", "error", err)
		}
	}()

	orch := orchestrator.New(buildRegistry(),
		orchestrator.WithLogger(logger),
		orchestrator.WithTracer(tracer),
		orchestrator.WithSessionWorkers(flags.sessionWorkers),
		orchestrator.WithTurnWorkers(flags.turnWorkers),
	)

	dispatcher := hooks.NewDispatcher(hooks.WithLogger(logger))
	dispatcher.Register(hooks.NewLoggingHook("post_evaluation_logger", hooks.PointPostEvaluation, logger, 0))

	pipeline := gate.NewPipeline(orch, cfg,
		gate.WithLogger(logger),
		gate.WithTracer(tracer),
		gate.WithDispatcher(dispatcher),
		gate.WithHistory(history),
		gate.WithDegradationThreshold(flags.degradationThreshold),
	)

	result, err := pipeline.Run(ctx, ds)
	if result == nil {
		return err
	}

	path, saveErr := report.Save(result, format, flags.outputDir)
	if saveErr != nil {
		return saveErr
	}
	logger.Info("wrote report", "path", path)

	if _, err := report.SaveHistory(pipeline.History(), flags.outputDir); err != nil {
		return err
	}

	if err := report.EmitCI(result, platform); err != nil {
		return err
	}

	printSummary(result)

	setExitCode(ctx, report.ExitCode(result.Status))
	return nil
}

// buildGateConfig layers CLI flag overrides on top of the config file (or the
// defaults when no file is given). Only flags the user set explicitly win,
// so a flag passed at its default value still overrides the file.
func buildGateConfig(flags *runFlags, changed func(name string) bool) (gate.Config, error) {
	cfg := gate.DefaultConfig()

	if flags.gateConfigPath != "" {
		loaded, err := gate.LoadConfig(flags.gateConfigPath)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}

	if changed("min-success-rate") {
		cfg.MinSuccessRate = flags.minSuccessRate
	}
	if changed("min-average-score") {
		cfg.MinAverageScore = flags.minAverageScore
	}
	if changed("max-execution-time") {
		cfg.MaxExecutionTime = time.Duration(flags.maxExecutionTime * float64(time.Second))
	}
	if changed("max-failed-turns") {
		cfg.MaxFailedTurns = flags.maxFailedTurns
	}

	return cfg, cfg.Validate()
}

// buildRegistry constructs the offline evaluator set: keyword-overlap scoring
// for every supported evaluation-type tag. Deployments with a live agent
// backend swap these for evaluators that call it.
func buildRegistry() *eval.Registry {
	return eval.NewRegistry(map[string]eval.Evaluator{
		"RAG":      &eval.KeywordEvaluator{},
		"TEXT2SQL": &eval.KeywordEvaluator{},
		"COT":      &eval.KeywordEvaluator{},
		"CUSTOM":   &eval.KeywordEvaluator{},
	})
}

func printSummary(r *gate.Report) {
	fmt.Printf("\nPipeline status: %s\n", r.Status)
	fmt.Printf("Turns: %d total, %d successful (%.1f%%)\n",
		r.Summary.TotalTurns, r.Summary.SuccessfulTurns, r.Summary.SuccessRate*100)
	fmt.Printf("Sessions: %d, execution time: %.2fs\n",
		r.Summary.TotalSessions, r.Summary.ExecutionTime.Seconds())

	if failed := r.Gate.FailedChecks(); len(failed) > 0 {
		fmt.Printf("Failed gates: %v\n", failed)
	}
	if r.Regression != nil && r.Regression.Detected {
		fmt.Printf("Regression: %s\n", r.Regression.Reason)
	}
}

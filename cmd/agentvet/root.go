package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "0.2.0"

	logLevel string
	logJSON  bool
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agentvet",
		Short: "Concurrent agent evaluation orchestrator",
		Long: `agentvet evaluates conversational AI agents over multi-turn datasets with
bounded parallelism, checks the results against configurable quality gates,
and detects regressions against previous runs for CI pipelines.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			configureLogging()
		},
	}

	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "emit logs as JSON")

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the agentvet version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("agentvet %s\n", version)
		},
	}
}

func configureLogging() {
	var level slog.Level
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if logJSON {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// execute runs the CLI and returns the process exit code. Run commands store
// their exit code in the command context so gate failures can exit non-zero
// without being treated as execution errors.
func execute(ctx context.Context) (int, error) {
	root := newRootCmd()

	var exitCode int
	ctx = context.WithValue(ctx, exitCodeKey{}, &exitCode)

	if err := root.ExecuteContext(ctx); err != nil {
		return exitCode, err
	}
	return exitCode, nil
}

type exitCodeKey struct{}

func setExitCode(ctx context.Context, code int) {
	if p, ok := ctx.Value(exitCodeKey{}).(*int); ok {
		*p = code
	}
}

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/michaelbrown/gradebox/internal/config"
	"github.com/michaelbrown/gradebox/internal/sandbox"
	"github.com/michaelbrown/gradebox/internal/storage"
)

var (
	timeoutFlag time.Duration
	saveFlag    bool
)

var runCmd = &cobra.Command{
	Use:   "run <file|->",
	Short: "Execute a JavaScript file in the sandbox",
	Long: `Execute JavaScript in the configured sandbox and print the captured
console output.

The code runs as the body of a function, so a top-level return is allowed.

Examples:
  gradebox run script.js
  echo 'console.log(1 + 1)' | gradebox run -
  gradebox run --timeout 500ms loop.js`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().DurationVar(&timeoutFlag, "timeout", 0, "Execution timeout (overrides config)")
	runCmd.Flags().BoolVar(&saveFlag, "save", true, "Record the execution in the submission history")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	code, err := readSource(args[0])
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := cfg.NewSandbox().Exec(ctx, sandbox.ExecOpts{Code: code, Timeout: timeoutFlag})
	if err != nil {
		return err
	}
	fmt.Println(res.Output)

	if saveFlag {
		sub := storage.NewSubmission(storage.KindRun, "", code)
		sub.Outcome = string(res.Type)
		sub.Output = res.Output
		saveSubmission(cfg, sub)
	}

	if res.Type != sandbox.OutcomeSuccess {
		return fmt.Errorf("execution finished with outcome %s", res.Type)
	}
	return nil
}

// saveSubmission records sub. Failures are logged, not returned.
func saveSubmission(cfg *config.Config, sub *storage.Submission) {
	store, err := openStore(cfg)
	if err != nil {
		slog.Warn("opening storage", "error", err)
		return
	}
	defer store.Close()

	if err := store.CreateSubmission(context.Background(), sub); err != nil {
		slog.Warn("recording submission", "error", err)
		return
	}
	slog.Debug("submission recorded", "id", sub.ID)
}

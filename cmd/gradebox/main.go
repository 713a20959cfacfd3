package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configFlag   string
	logLevelFlag string
)

var rootCmd = &cobra.Command{
	Use:   "gradebox",
	Short: "Gradebox - sandboxed JavaScript runner and grader",
	Long: `Gradebox runs JavaScript snippets in an isolated sandbox and grades
student submissions against exercise test cases.

Submissions are scored from 0 to 10. Array inputs can be instrumented to
count element reads and writes, and exercises can forbid constructs such
as sort or reduce.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "Config file (default: ./gradebox.yaml or ~/.gradebox/gradebox.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Log level: debug, info, warn, error (overrides config)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/michaelbrown/gradebox/internal/grader"
	"github.com/michaelbrown/gradebox/internal/storage"
)

var (
	exerciseFlag string
	contentFlag  string
	debugFlag    bool
	jsonFlag     bool
)

var gradeCmd = &cobra.Command{
	Use:   "grade <file|->",
	Short: "Grade a submission against an exercise",
	Long: `Grade student code against an exercise from the catalog, or against a
content file (JSON or YAML) holding mainCode, functionName, tests and
forbiddenFunctions.

Examples:
  gradebox grade --exercise buscar-maximo solucion.js
  gradebox grade --content ejercicio.json --debug solucion.js
  gradebox grade --exercise analizar-notas --json - < solucion.js`,
	Args: cobra.ExactArgs(1),
	RunE: runGrade,
}

func init() {
	gradeCmd.Flags().StringVarP(&exerciseFlag, "exercise", "e", "", "Exercise ID from the catalog")
	gradeCmd.Flags().StringVar(&contentFlag, "content", "", "Path to a content file (JSON or YAML)")
	gradeCmd.Flags().BoolVar(&debugFlag, "debug", false, "Print grading progress lines")
	gradeCmd.Flags().BoolVar(&jsonFlag, "json", false, "Print the report as JSON")
	gradeCmd.Flags().BoolVar(&saveFlag, "save", true, "Record the grading in the submission history")
	gradeCmd.MarkFlagsMutuallyExclusive("exercise", "content")
	rootCmd.AddCommand(gradeCmd)
}

func runGrade(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	code, err := readSource(args[0])
	if err != nil {
		return err
	}

	var content grader.Content
	switch {
	case exerciseFlag != "":
		catalog, err := loadCatalog(cfg)
		if err != nil {
			return err
		}
		ex, err := catalog.Get(exerciseFlag)
		if err != nil {
			return err
		}
		content = ex.Content()
	case contentFlag != "":
		if content, err = loadContent(contentFlag); err != nil {
			return err
		}
	default:
		return fmt.Errorf("one of --exercise or --content is required")
	}

	g, err := newGrader(cfg, cfg.NewSandbox(), nil)
	if err != nil {
		return err
	}

	var debug grader.DebugFunc
	if debugFlag {
		debug = func(line string) { fmt.Fprintln(os.Stderr, line) }
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := g.Grade(ctx, content, code, debug)
	if err != nil {
		return err
	}

	if saveFlag {
		saveSubmission(cfg, gradeSubmission(exerciseFlag, code, report))
	}

	if jsonFlag {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}
	printReport(report, cfg.Grading.PassThreshold)
	return nil
}

// loadContent reads grading content from a JSON or YAML file.
func loadContent(path string) (grader.Content, error) {
	var c grader.Content
	data, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &c)
	default:
		err = json.Unmarshal(data, &c)
	}
	if err != nil {
		return c, fmt.Errorf("parsing %s: %w", path, err)
	}
	return c, nil
}

func gradeSubmission(exerciseID, code string, r *grader.Report) *storage.Submission {
	sub := storage.NewSubmission(storage.KindGrade, exerciseID, code)
	sub.Outcome = string(r.Type)
	sub.State = string(r.State)
	sub.Score = r.Score
	sub.PassedCount = r.PassedCount
	sub.TotalTests = r.TotalTests
	sub.Output = r.Output
	if results, err := json.Marshal(r.Results); err == nil {
		sub.Results = results
	}
	return sub
}

func printReport(r *grader.Report, threshold float64) {
	for i, res := range r.Results {
		mark := "\033[32m✅\033[0m"
		if !res.Passed {
			mark = "\033[31m❌\033[0m"
		}
		line := fmt.Sprintf("Test %d  %s", i+1, mark)
		if res.Accesses != nil {
			line += fmt.Sprintf("  accesos %d%s", *res.Accesses, limitSuffix(res.MaxAccesses))
		}
		if res.Writes != nil {
			line += fmt.Sprintf("  escrituras %d%s", *res.Writes, limitSuffix(res.MaxWrites))
		}
		if res.Error != "" {
			line += "  " + res.Error
		}
		fmt.Println(line)
	}
	if len(r.Results) > 0 {
		fmt.Println(strings.Repeat("─", 40))
	}

	fmt.Println(r.Message)
	verdict := "suspenso"
	if r.Approved(threshold) {
		verdict = "aprobado"
	}
	fmt.Printf("Nota: %.2f (%s)\n", r.Score, verdict)
}

func limitSuffix(limit *int) string {
	if limit == nil {
		return ""
	}
	return fmt.Sprintf("/%d", *limit)
}

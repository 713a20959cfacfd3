package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/michaelbrown/gradebox/internal/exercise"
)

var exercisesCmd = &cobra.Command{
	Use:     "exercises",
	Aliases: []string{"exercise", "ex"},
	Short:   "Browse and verify the exercise catalog",
}

var exercisesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List exercises",
	RunE:  runExercisesList,
}

var exercisesShowCmd = &cobra.Command{
	Use:   "show <exercise-id>",
	Short: "Show an exercise statement and starter code",
	Args:  cobra.ExactArgs(1),
	RunE:  runExercisesShow,
}

var exercisesCheckCmd = &cobra.Command{
	Use:   "check [exercise-id...]",
	Short: "Grade reference solutions to validate exercise tests",
	Long: `Grade each exercise's reference solution. A solution that does not
score 10 usually means the exercise tests are wrong.

With no arguments every exercise in the catalog is checked.`,
	RunE: runExercisesCheck,
}

func init() {
	rootCmd.AddCommand(exercisesCmd)
	exercisesCmd.AddCommand(exercisesListCmd, exercisesShowCmd, exercisesCheckCmd)
}

func runExercisesList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	catalog, err := loadCatalog(cfg)
	if err != nil {
		return err
	}

	if catalog.Len() == 0 {
		fmt.Printf("No exercises found in %s.\n", cfg.Exercises.Dir)
		return nil
	}

	fmt.Printf("%-20s %-20s %-6s %s\n", "ID", "FUNCTION", "TESTS", "TITLE")
	fmt.Println(strings.Repeat("─", 80))
	for _, ex := range catalog.List() {
		fmt.Printf("%-20s %-20s %-6d %s\n", ex.ID, ex.FunctionName, len(ex.Tests), truncate(ex.Title, 40))
	}
	return nil
}

func runExercisesShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	catalog, err := loadCatalog(cfg)
	if err != nil {
		return err
	}
	ex, err := catalog.Get(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("%s\n\n", ex.Title)
	fmt.Println(strings.TrimSpace(ex.Instructions))
	printList("Precondiciones", ex.Preconditions)
	printList("Postcondiciones", ex.Postconditions)
	if len(ex.ForbiddenFunctions) > 0 {
		fmt.Printf("\nNo permitido: %s\n", strings.Join(ex.ForbiddenFunctions, ", "))
	}
	fmt.Printf("\nFunción: %s | Tests: %d\n", ex.FunctionName, len(ex.Tests))
	if ex.StarterCode != "" {
		fmt.Println(strings.Repeat("─", 60))
		fmt.Print(ex.StarterCode)
	}
	return nil
}

func printList(title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Printf("\n%s:\n", title)
	for _, item := range items {
		fmt.Printf("  - %s\n", item)
	}
}

func runExercisesCheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	catalog, err := loadCatalog(cfg)
	if err != nil {
		return err
	}
	g, err := newGrader(cfg, cfg.NewSandbox(), nil)
	if err != nil {
		return err
	}

	var targets []*exercise.Exercise
	if len(args) == 0 {
		targets = catalog.List()
	}
	for _, id := range args {
		ex, err := catalog.Get(id)
		if err != nil {
			return err
		}
		targets = append(targets, ex)
	}

	failed := 0
	for _, ex := range targets {
		report, err := ex.Check(context.Background(), g)
		switch {
		case err != nil:
			failed++
			fmt.Printf("\033[31m✗\033[0m %-20s %v\n", ex.ID, err)
		case report.Score < 10:
			failed++
			fmt.Printf("\033[31m✗\033[0m %-20s %.2f  %s\n", ex.ID, report.Score, report.Message)
		default:
			fmt.Printf("\033[32m✓\033[0m %-20s %.2f\n", ex.ID, report.Score)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d exercises failed", failed, len(targets))
	}
	return nil
}

func truncate(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	if len(s) > maxLen {
		return s[:maxLen] + "..."
	}
	return s
}

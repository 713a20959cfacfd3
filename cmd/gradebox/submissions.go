package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/michaelbrown/gradebox/internal/storage"
)

var (
	kindFilter     string
	exerciseFilter string
	limitFlag      int
	exportFormat   string
	exportOutput   string
	forceFlag      bool
)

var submissionsCmd = &cobra.Command{
	Use:     "submissions",
	Aliases: []string{"submission", "subs"},
	Short:   "Manage the submission history",
}

var submissionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded executions and gradings",
	RunE:  runSubmissionsList,
}

var submissionsShowCmd = &cobra.Command{
	Use:   "show <submission-id>",
	Short: "Show a submission with its code and output",
	Args:  cobra.ExactArgs(1),
	RunE:  runSubmissionsShow,
}

var submissionsDeleteCmd = &cobra.Command{
	Use:   "delete <submission-id>",
	Short: "Delete a submission",
	Args:  cobra.ExactArgs(1),
	RunE:  runSubmissionsDelete,
}

var submissionsExportCmd = &cobra.Command{
	Use:   "export <submission-id>",
	Short: "Export a submission as markdown or JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runSubmissionsExport,
}

func init() {
	rootCmd.AddCommand(submissionsCmd)
	submissionsCmd.AddCommand(submissionsListCmd, submissionsShowCmd, submissionsDeleteCmd, submissionsExportCmd)

	submissionsListCmd.Flags().StringVar(&kindFilter, "kind", "", "Filter by kind (run, grade)")
	submissionsListCmd.Flags().StringVar(&exerciseFilter, "exercise", "", "Filter by exercise ID")
	submissionsListCmd.Flags().IntVar(&limitFlag, "limit", 20, "Max submissions to show")

	submissionsExportCmd.Flags().StringVar(&exportFormat, "format", "md", "Export format: md or json")
	submissionsExportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output file (default: stdout)")

	submissionsDeleteCmd.Flags().BoolVar(&forceFlag, "force", false, "Skip confirmation")
}

func openHistory() (storage.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return openStore(cfg)
}

func runSubmissionsList(cmd *cobra.Command, args []string) error {
	store, err := openHistory()
	if err != nil {
		return err
	}
	defer store.Close()

	subs, err := store.ListSubmissions(context.Background(), storage.ListOptions{
		Kind:       storage.Kind(kindFilter),
		ExerciseID: exerciseFilter,
		Limit:      limitFlag,
	})
	if err != nil {
		return err
	}

	if len(subs) == 0 {
		fmt.Println("No submissions found.")
		return nil
	}

	// Header
	fmt.Printf("%-10s %-6s %-20s %-10s %-8s %s\n", "ID", "KIND", "EXERCISE", "OUTCOME", "SCORE", "CREATED")
	fmt.Println(strings.Repeat("─", 75))

	for _, s := range subs {
		exercise := s.ExerciseID
		if exercise == "" {
			exercise = "-"
		}
		score := "-"
		if s.Kind == storage.KindGrade {
			score = fmt.Sprintf("%.2f", s.Score)
		}
		fmt.Printf("%-10s %-6s %-20s %-10s %-8s %s\n",
			s.ID[:8], s.Kind, truncate(exercise, 18), s.Outcome, score, timeAgo(s.CreatedAt))
	}

	return nil
}

func runSubmissionsShow(cmd *cobra.Command, args []string) error {
	store, err := openHistory()
	if err != nil {
		return err
	}
	defer store.Close()

	sub, err := store.GetSubmission(context.Background(), args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Submission: %s\n", sub.ID)
	fmt.Printf("Kind:       %s\n", sub.Kind)
	if sub.ExerciseID != "" {
		fmt.Printf("Exercise:   %s\n", sub.ExerciseID)
	}
	fmt.Printf("Outcome:    %s\n", sub.Outcome)
	if sub.Kind == storage.KindGrade {
		fmt.Printf("State:      %s\n", sub.State)
		fmt.Printf("Score:      %.2f (%d/%d)\n", sub.Score, sub.PassedCount, sub.TotalTests)
	}
	fmt.Printf("Digest:     %s\n", sub.Digest[:16])
	fmt.Printf("Created:    %s\n", sub.CreatedAt.Format(time.RFC3339))

	fmt.Println(strings.Repeat("─", 60))
	fmt.Println(strings.TrimRight(sub.Code, "\n"))
	fmt.Println(strings.Repeat("─", 60))
	fmt.Printf("\033[90m%s\033[0m\n", sub.Output)
	return nil
}

func runSubmissionsDelete(cmd *cobra.Command, args []string) error {
	store, err := openHistory()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	sub, err := store.GetSubmission(ctx, args[0])
	if err != nil {
		return err
	}

	if !forceFlag {
		fmt.Printf("Delete %s submission %s? [y/N] ", sub.Kind, sub.ID[:8])
		var confirm string
		fmt.Scanln(&confirm)
		if strings.ToLower(confirm) != "y" {
			fmt.Println("Cancelled.")
			return nil
		}
	}

	if err := store.DeleteSubmission(ctx, sub.ID); err != nil {
		return err
	}
	fmt.Printf("Deleted submission %s\n", sub.ID[:8])
	return nil
}

func runSubmissionsExport(cmd *cobra.Command, args []string) error {
	store, err := openHistory()
	if err != nil {
		return err
	}
	defer store.Close()

	sub, err := store.GetSubmission(context.Background(), args[0])
	if err != nil {
		return err
	}

	var output string
	switch exportFormat {
	case "json":
		data, err := storage.ExportJSON(sub)
		if err != nil {
			return err
		}
		output = string(data)
	default:
		output = storage.ExportMarkdown(sub)
	}

	if exportOutput != "" {
		return os.WriteFile(exportOutput, []byte(output), 0o644)
	}

	fmt.Print(output)
	return nil
}

func timeAgo(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

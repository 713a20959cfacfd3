package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// ExportMarkdown renders a submission as a markdown document.
func ExportMarkdown(sub *Submission) string {
	var b strings.Builder

	title := "Ejecución"
	if sub.Kind == KindGrade {
		title = "Evaluación"
	}
	if sub.ExerciseID != "" {
		title += " de " + sub.ExerciseID
	}

	b.WriteString(fmt.Sprintf("# %s\n\n", title))
	b.WriteString(fmt.Sprintf("- **Submission:** %s\n", sub.ID))
	b.WriteString(fmt.Sprintf("- **Kind:** %s\n", sub.Kind))
	b.WriteString(fmt.Sprintf("- **Digest:** `%s`\n", sub.Digest))
	b.WriteString(fmt.Sprintf("- **Created:** %s\n", sub.CreatedAt.Format("2006-01-02 15:04:05")))
	b.WriteString(fmt.Sprintf("- **Outcome:** %s\n", sub.Outcome))
	if sub.Kind == KindGrade {
		b.WriteString(fmt.Sprintf("- **State:** %s\n", sub.State))
		b.WriteString(fmt.Sprintf("- **Score:** %.2f (%d/%d)\n", sub.Score, sub.PassedCount, sub.TotalTests))
	}
	b.WriteString("\n---\n\n")

	b.WriteString(fmt.Sprintf("## Code\n\n```javascript\n%s\n```\n\n", strings.TrimRight(sub.Code, "\n")))
	b.WriteString(fmt.Sprintf("## Output\n\n```\n%s\n```\n", sub.Output))

	if len(sub.Results) > 0 {
		var pretty bytes.Buffer
		if err := json.Indent(&pretty, sub.Results, "", "  "); err == nil {
			b.WriteString(fmt.Sprintf("\n<details>\n<summary>Test Results</summary>\n\n```json\n%s\n```\n</details>\n", pretty.String()))
		}
	}

	return b.String()
}

// ExportJSON renders a submission as formatted JSON.
func ExportJSON(sub *Submission) ([]byte, error) {
	return json.MarshalIndent(sub, "", "  ")
}

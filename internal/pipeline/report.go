package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nelsonpires5/sisifo/internal/core"
)

// maxCapturedOutput bounds stdout/stderr embedded in a diagnostic report.
const maxCapturedOutput = 8000

func truncate(s string) string {
	if len(s) <= maxCapturedOutput {
		return s
	}
	return s[:maxCapturedOutput] + "\n...(truncated)"
}

// generateErrorReport renders the fixed-section markdown diagnostic report
// of spec.md §4.6: task identity, stage, command, exit code, captured
// stdout/stderr (truncated), and timestamp.
func generateErrorReport(taskID string, stageErr *core.StageError, at time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Task Failure Report: %s\n\n", taskID)
	fmt.Fprintf(&b, "- **Task ID**: %s\n", taskID)
	fmt.Fprintf(&b, "- **Stage**: %s\n", stageErr.Stage)
	fmt.Fprintf(&b, "- **Timestamp**: %s\n", at.UTC().Format(time.RFC3339))
	if stageErr.Command != "" {
		fmt.Fprintf(&b, "- **Command**: `%s`\n", stageErr.Command)
	}
	fmt.Fprintf(&b, "- **Exit code**: %d\n\n", stageErr.ExitCode)
	fmt.Fprintf(&b, "## Message\n\n%s\n\n", stageErr.Message)
	fmt.Fprintf(&b, "## Stdout\n\n```\n%s\n```\n\n", truncate(stageErr.Stdout))
	fmt.Fprintf(&b, "## Stderr\n\n```\n%s\n```\n", truncate(stageErr.Stderr))
	return b.String()
}

// writeErrorReport writes the rendered report to path, creating its parent
// directory as needed.
func writeErrorReport(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(content), 0o644)
}

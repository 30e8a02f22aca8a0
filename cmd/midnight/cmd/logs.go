package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show recent execution-log entries",
	RunE:  runLogs,
}

var (
	logsProject string
	logsLimit   int
	logsJSON    bool
)

func init() {
	rootCmd.AddCommand(logsCmd)
	logsCmd.Flags().StringVar(&logsProject, "project", "", "only show entries for this project id")
	logsCmd.Flags().IntVarP(&logsLimit, "limit", "n", 50, "maximum entries to show")
	logsCmd.Flags().BoolVar(&logsJSON, "json", false, "output as JSON")
}

type logRow struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Source    string `json:"source"`
	Message   string `json:"message"`
	ProjectID string `json:"project_id,omitempty"`
	TaskID    string `json:"task_id,omitempty"`
}

func runLogs(cmd *cobra.Command, _ []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	entries, err := st.ListLogs(cmd.Context(), logsProject, logsLimit)
	if err != nil {
		return fmt.Errorf("reading execution log: %w", err)
	}

	// ListLogs returns newest first; display oldest first so the terminal
	// reads chronologically like a tail.
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}

	if logsJSON {
		rows := make([]logRow, 0, len(entries))
		for _, e := range entries {
			rows = append(rows, logRow{
				Timestamp: fmtTimestamp(e.Timestamp),
				Level:     string(e.Level),
				Source:    e.Source,
				Message:   e.Message,
				ProjectID: e.ProjectID,
				TaskID:    e.TaskID,
			})
		}
		return outputJSON(rows)
	}

	if len(entries) == 0 {
		fmt.Println("no log entries")
		return nil
	}
	for _, e := range entries {
		line := fmt.Sprintf("%s %-5s [%s] %s", fmtTimestamp(e.Timestamp), e.Level, e.Source, e.Message)
		if e.ProjectID != "" {
			line += " project=" + shortID(e.ProjectID)
		}
		if e.TaskID != "" {
			line += " task=" + shortID(e.TaskID)
		}
		fmt.Println(line)
	}
	return nil
}

package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the running daemon's current status",
	Long:  "status queries the daemon's HTTP transport for its current phase, queue length, and confidence score.",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "output as JSON")
}

// daemonStatus mirrors transporthttp.Status; the CLI talks HTTP rather
// than importing the server package, matching a real remote-admin
// client's constraints even though today it only ever calls localhost.
type daemonStatus struct {
	Running            bool    `json:"running"`
	CurrentProjectID    string  `json:"current_project_id"`
	CurrentProjectName  string  `json:"current_project_name"`
	QueueLength         int     `json:"queue_length"`
	ConfidenceScore     int     `json:"confidence_score"`
	ConfidenceStatus    string  `json:"confidence_status"`
	UptimeSeconds       float64 `json:"uptime_seconds"`
	TasksCompleted      int     `json:"tasks_completed"`
	TasksFailed         int     `json:"tasks_failed"`
	ActiveCooldowns     int     `json:"active_cooldowns"`
}

func runStatus(_ *cobra.Command, _ []string) error {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(statusURL(loadedConfig.HTTP.ListenAddr, "/api/v1/status"))
	if err != nil {
		return fmt.Errorf("contacting daemon at %s: %w", loadedConfig.HTTP.ListenAddr, err)
	}
	defer resp.Body.Close()

	var st daemonStatus
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return fmt.Errorf("decoding status response: %w", err)
	}

	if statusJSON {
		return outputJSON(st)
	}

	fmt.Printf("Running: %t\n", st.Running)
	if st.CurrentProjectID != "" {
		fmt.Printf("Current project: %s (%s)\n", st.CurrentProjectName, st.CurrentProjectID)
	}
	fmt.Printf("Queue length: %d\n", st.QueueLength)
	fmt.Printf("Confidence: %d (%s)\n", st.ConfidenceScore, st.ConfidenceStatus)
	fmt.Printf("Tasks completed: %d, failed: %d\n", st.TasksCompleted, st.TasksFailed)
	fmt.Printf("Active cooldowns: %d\n", st.ActiveCooldowns)
	fmt.Printf("Uptime: %.0fs\n", st.UptimeSeconds)
	return nil
}

func statusURL(listenAddr, path string) string {
	return "http://" + listenAddr + path
}

func outputJSON(v interface{}) error {
	enc := json.NewEncoder(cmdOut())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

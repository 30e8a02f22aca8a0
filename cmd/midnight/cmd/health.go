package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check whether the daemon is alive",
	RunE:  runHealth,
}

func init() {
	rootCmd.AddCommand(healthCmd)
}

func runHealth(_ *cobra.Command, _ []string) error {
	client := &http.Client{Timeout: 3 * time.Second}
	resp, err := client.Get(statusURL(loadedConfig.HTTP.ListenAddr, "/healthz"))
	if err != nil {
		return fmt.Errorf("daemon not reachable at %s: %w", loadedConfig.HTTP.ListenAddr, err)
	}
	defer resp.Body.Close()

	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("decoding health response: %w", err)
	}
	if body["status"] != "ok" {
		return fmt.Errorf("daemon unhealthy: %v", body)
	}
	fmt.Println("ok")
	return nil
}

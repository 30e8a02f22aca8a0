// Package cmd is Midnight's command-line surface: start/stop the
// orchestrator daemon, inspect status, and manage the project queue and
// state snapshots. Cobra/viper wiring (persistent flags bound onto a
// package-level viper instance in init(), config loaded in
// PersistentPreRunE).
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/midnight-build/midnight/internal/config"
)

var (
	cfgFile   string
	logLevel  string
	logFormat string
	quiet     bool

	appVersion string
	appCommit  string
	appDate    string

	loadedConfig *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "midnight",
	Short: "Autonomous overnight software-build orchestrator",
	Long: `midnight drives one project at a time through loading, planning,
building, and verifying, unattended, across a queue of projects — then
hands off and rotates to the next.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		return initConfig()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion injects build-time version metadata, set from main.go.
func SetVersion(version, commit, date string) {
	appVersion = version
	appCommit = commit
	appDate = date
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: .midnight/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format (auto, text, json)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress non-essential output")

	_ = viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log_format", rootCmd.PersistentFlags().Lookup("log-format"))
}

func initConfig() error {
	loader := config.NewLoaderWithViper(viper.GetViper())
	if cfgFile != "" {
		loader = loader.WithConfigFile(cfgFile)
	}

	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	loadedConfig = cfg
	return nil
}

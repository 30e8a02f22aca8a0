package cmd

import (
	"fmt"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var stopForce bool

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop a running midnight daemon",
	Long: `stop signals the daemon found in the configured pid_file to shut
down. By default it requests a graceful stop (SIGTERM, final snapshot
taken before exit); --force sends SIGKILL immediately.`,
	RunE: runStop,
}

func init() {
	rootCmd.AddCommand(stopCmd)
	stopCmd.Flags().BoolVar(&stopForce, "force", false, "send SIGKILL instead of SIGTERM")
}

func runStop(_ *cobra.Command, _ []string) error {
	pid, err := readPidFile(loadedConfig.PidFile)
	if err != nil {
		return err
	}

	sig := syscall.SIGTERM
	if stopForce {
		sig = syscall.SIGKILL
	}
	if err := syscall.Kill(pid, sig); err != nil {
		return fmt.Errorf("signaling pid %d: %w", pid, err)
	}

	if stopForce {
		fmt.Println("sent SIGKILL")
		return nil
	}

	for i := 0; i < 30; i++ {
		if syscall.Kill(pid, syscall.Signal(0)) != nil {
			fmt.Println("stopped")
			return nil
		}
		time.Sleep(time.Second)
	}
	return fmt.Errorf("process %d did not exit within 30s; retry with --force", pid)
}

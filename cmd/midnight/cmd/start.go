package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the orchestrator daemon",
	Long: `start boots the queue store, the agent loop, and the status/event
HTTP transport, then drives projects off the queue until stopped with
SIGINT/SIGTERM or 'midnight stop'.`,
	RunE: runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, _ []string) error {
	if errs := loadedConfig.Validate(); len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %v", errs)
	}

	if err := writePidFile(loadedConfig.PidFile); err != nil {
		return fmt.Errorf("writing pid file: %w", err)
	}
	defer removePidFile(loadedConfig.PidFile)

	d, err := buildDaemon(loadedConfig)
	if err != nil {
		return err
	}
	defer d.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := d.orch.Start(ctx); err != nil {
		return fmt.Errorf("starting orchestrator: %w", err)
	}
	d.log.Info("midnight started", "listen_addr", loadedConfig.HTTP.ListenAddr, "trust_level", int(loadedConfig.TrustLevel))

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- d.server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		d.log.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			d.log.Error("http transport failed", "error", err.Error())
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := d.server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		d.log.Warn("http shutdown error", "error", err.Error())
	}
	if err := d.orch.Stop(true); err != nil {
		d.log.Warn("orchestrator shutdown error", "error", err.Error())
	}
	if err := d.executor.Cleanup(shutdownCtx); err != nil {
		d.log.Warn("sandbox cleanup error", "error", err.Error())
	}

	d.log.Info("midnight stopped cleanly")
	return nil
}

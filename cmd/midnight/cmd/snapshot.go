package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/midnight-build/midnight/internal/core"
	"github.com/midnight-build/midnight/internal/gitops"
	"github.com/midnight-build/midnight/internal/recovery"
	"github.com/midnight-build/midnight/internal/stateengine"
	"github.com/midnight-build/midnight/internal/store"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Inspect, create, and recover from state snapshots",
}

var snapshotListCmd = &cobra.Command{
	Use:   "list <project-id>",
	Short: "List a project's snapshots, newest first",
	Args:  cobra.ExactArgs(1),
	RunE:  runSnapshotList,
}

var snapshotCreateCmd = &cobra.Command{
	Use:   "create <project-id>",
	Short: "Take a snapshot of a project's current state",
	Long: `create captures the project's current git hash and persists a snapshot
row. Run against a stopped daemon the captured agent state is empty;
the daemon's own periodic snapshots carry live agent state.`,
	Args: cobra.ExactArgs(1),
	RunE: runSnapshotCreate,
}

var snapshotRecoverCmd = &cobra.Command{
	Use:   "recover [project-id]",
	Short: "Recover interrupted projects from their snapshots",
	Long: `recover scans for projects stuck in an in-flight phase (loading,
planning, building, verifying) and brings each back to a re-runnable
state from its best snapshot. With a project-id argument only that
project is recovered.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSnapshotRecover,
}

var (
	snapshotListJSON         bool
	recoverForceSnapshot     string
	recoverSkipGitReset      bool
	recoverClearFailedTasks  bool
)

func init() {
	rootCmd.AddCommand(snapshotCmd)
	snapshotCmd.AddCommand(snapshotListCmd)
	snapshotCmd.AddCommand(snapshotCreateCmd)
	snapshotCmd.AddCommand(snapshotRecoverCmd)

	snapshotListCmd.Flags().BoolVar(&snapshotListJSON, "json", false, "output as JSON")
	snapshotRecoverCmd.Flags().StringVar(&recoverForceSnapshot, "snapshot", "", "recover from this snapshot id instead of the best recovery point")
	snapshotRecoverCmd.Flags().BoolVar(&recoverSkipGitReset, "skip-git-reset", false, "restore task and project state without touching the working tree")
	snapshotRecoverCmd.Flags().BoolVar(&recoverClearFailedTasks, "clear-failed-tasks", false, "reset failed tasks to pending with a fresh retry budget")
}

type snapshotRow struct {
	ID        string `json:"id"`
	GitHash   string `json:"git_hash"`
	TaskID    string `json:"current_task_id,omitempty"`
	CreatedAt string `json:"created_at"`
}

func runSnapshotList(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	snaps, err := st.ListSnapshots(cmd.Context(), core.ProjectID(args[0]))
	if err != nil {
		return fmt.Errorf("listing snapshots: %w", err)
	}

	if snapshotListJSON {
		rows := make([]snapshotRow, 0, len(snaps))
		for _, s := range snaps {
			rows = append(rows, snapshotRow{
				ID:        string(s.ID),
				GitHash:   s.GitHash,
				TaskID:    string(s.AgentState.CurrentTaskID),
				CreatedAt: fmtTime(s.CreatedAt),
			})
		}
		return outputJSON(rows)
	}

	if len(snaps) == 0 {
		fmt.Println("no snapshots")
		return nil
	}
	fmt.Printf("%-10s %-12s %-10s %s\n", "ID", "GIT HASH", "TASK", "CREATED")
	for _, s := range snaps {
		fmt.Printf("%-10s %-12s %-10s %s\n",
			shortID(string(s.ID)), shortID(s.GitHash), shortID(string(s.AgentState.CurrentTaskID)), fmtTime(s.CreatedAt))
	}
	return nil
}

// offlineCapturer is the StateCapturer used when snapshotting from the
// CLI with no daemon running: the git hash comes from the project's
// working tree and the agent state is empty.
type offlineCapturer struct {
	store *store.Store
	git   *gitops.Client
}

func (c offlineCapturer) CaptureState(projectID core.ProjectID) (string, core.AgentState, []string) {
	ctx := context.Background()
	p, err := c.store.GetProject(ctx, projectID)
	if err != nil {
		return "", core.AgentState{}, nil
	}
	hash, err := c.git.RevParseHEAD(ctx, p.LocalPath)
	if err != nil {
		hash = p.LastVerifiedHash
	}
	return hash, core.AgentState{}, nil
}

func runSnapshotCreate(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	git, err := gitops.New()
	if err != nil {
		return err
	}

	projectID := core.ProjectID(args[0])
	if _, err := st.GetProject(cmd.Context(), projectID); err != nil {
		return err
	}

	engine := stateengine.New(st, offlineCapturer{store: st, git: git}, nil)
	id, err := engine.SaveSnapshot(cmd.Context(), projectID)
	if err != nil {
		return fmt.Errorf("saving snapshot: %w", err)
	}
	fmt.Printf("snapshot %s created\n", id)
	return nil
}

func runSnapshotRecover(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	git, err := gitops.New()
	if err != nil {
		return err
	}

	sys := recovery.New(st, git)
	opts := recovery.Options{
		ForceSnapshot:    core.SnapshotID(recoverForceSnapshot),
		SkipGitReset:     recoverSkipGitReset,
		ClearFailedTasks: recoverClearFailedTasks,
	}

	ctx := cmd.Context()
	var results []*recovery.Result
	if len(args) == 1 {
		p, err := st.GetProject(ctx, core.ProjectID(args[0]))
		if err != nil {
			return err
		}
		r, err := sys.RecoverProject(ctx, p, opts)
		if err != nil {
			return fmt.Errorf("recovering project %s: %w", p.ID, err)
		}
		results = append(results, r)
	} else {
		needed, err := sys.CheckNeedsRecovery(ctx)
		if err != nil {
			return err
		}
		if !needed {
			fmt.Println("no projects need recovery")
			return nil
		}
		results, err = sys.Recover(ctx, opts)
		if err != nil {
			return err
		}
	}

	for _, r := range results {
		if r == nil {
			continue
		}
		fmt.Printf("%s: %s (restored tasks: %d, status: %s)\n",
			shortID(string(r.ProjectID)), r.Message, r.RestoredTasks, r.NewStatus)
	}
	return nil
}

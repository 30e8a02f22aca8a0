package cmd

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/midnight-build/midnight/internal/core"
	"github.com/midnight-build/midnight/internal/projectloader"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Manage the project queue",
}

var queueAddCmd = &cobra.Command{
	Use:   "add <path>",
	Short: "Add a project to the queue",
	Long: `add enqueues the project at <path>. If the path carries DNA files
(idea.md, tech_stack.yaml, definition_of_done.md) they are loaded and
stored immediately; otherwise loading is deferred to the daemon's
loading phase.`,
	Args: cobra.ExactArgs(1),
	RunE: runQueueAdd,
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List queued projects",
	RunE:  runQueueList,
}

var queueRemoveCmd = &cobra.Command{
	Use:   "remove <project-id>",
	Short: "Remove a project and all its tasks, DNA, and snapshots",
	Args:  cobra.ExactArgs(1),
	RunE:  runQueueRemove,
}

var queueReorderCmd = &cobra.Command{
	Use:   "reorder <project-id> <priority>",
	Short: "Change a project's dispatch priority",
	Args:  cobra.ExactArgs(2),
	RunE:  runQueueReorder,
}

var (
	queueAddPriority int
	queueListJSON    bool
)

func init() {
	rootCmd.AddCommand(queueCmd)
	queueCmd.AddCommand(queueAddCmd)
	queueCmd.AddCommand(queueListCmd)
	queueCmd.AddCommand(queueRemoveCmd)
	queueCmd.AddCommand(queueReorderCmd)

	queueAddCmd.Flags().IntVarP(&queueAddPriority, "priority", "p", 0, "dispatch priority (higher runs first)")
	queueListCmd.Flags().BoolVar(&queueListJSON, "json", false, "output as JSON")
}

func runQueueAdd(cmd *cobra.Command, args []string) error {
	path, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("resolving project path: %w", err)
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := cmd.Context()
	p, err := st.AddProject(ctx, path, queueAddPriority)
	if err != nil {
		return fmt.Errorf("adding project: %w", err)
	}

	loader := projectloader.New()
	if dna, err := loader.LoadDNA(ctx, path); err == nil {
		if ok, errs := loader.ValidateDNA(dna); !ok {
			fmt.Printf("warning: DNA found but invalid (%v); daemon will retry at load time\n", errs)
		} else if err := st.StoreDNA(ctx, p.ID, dna); err != nil {
			return fmt.Errorf("storing project DNA: %w", err)
		}
	} else if !quiet {
		fmt.Println("no DNA files found at path; daemon will load them when the project starts")
	}

	fmt.Printf("queued %s (priority %d)\n", p.ID, p.Priority)
	return nil
}

type queueRow struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	LocalPath string `json:"local_path"`
	Status    string `json:"status"`
	Priority  int    `json:"priority"`
	CreatedAt string `json:"created_at"`
}

func runQueueList(cmd *cobra.Command, _ []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	projects, err := st.ListProjects(cmd.Context())
	if err != nil {
		return fmt.Errorf("listing projects: %w", err)
	}

	if queueListJSON {
		rows := make([]queueRow, 0, len(projects))
		for _, p := range projects {
			rows = append(rows, queueRow{
				ID:        string(p.ID),
				Name:      p.Name,
				LocalPath: p.LocalPath,
				Status:    string(p.Status),
				Priority:  p.Priority,
				CreatedAt: fmtTime(p.CreatedAt),
			})
		}
		return outputJSON(rows)
	}

	if len(projects) == 0 {
		fmt.Println("queue is empty")
		return nil
	}
	fmt.Printf("%-10s %-20s %-10s %-8s %s\n", "ID", "NAME", "STATUS", "PRIORITY", "CREATED")
	for _, p := range projects {
		name := p.Name
		if name == "" {
			name = filepath.Base(p.LocalPath)
		}
		fmt.Printf("%-10s %-20s %-10s %-8d %s\n",
			shortID(string(p.ID)), name, p.Status, p.Priority, fmtTime(p.CreatedAt))
	}
	return nil
}

func runQueueRemove(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	removed, err := st.RemoveProject(cmd.Context(), core.ProjectID(args[0]))
	if err != nil {
		return fmt.Errorf("removing project: %w", err)
	}
	if !removed {
		return fmt.Errorf("no project with id %s", args[0])
	}
	fmt.Println("removed")
	return nil
}

func runQueueReorder(cmd *cobra.Command, args []string) error {
	priority, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("priority must be an integer: %w", err)
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := cmd.Context()
	if _, err := st.GetProject(ctx, core.ProjectID(args[0])); err != nil {
		return err
	}
	if err := st.ReorderProject(ctx, core.ProjectID(args[0]), priority); err != nil {
		return fmt.Errorf("reordering project: %w", err)
	}
	fmt.Printf("priority set to %d\n", priority)
	return nil
}

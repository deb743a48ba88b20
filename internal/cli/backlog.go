package cli

import (
	"fmt"

	"github.com/kdorchestrator/kd/internal/task"
	"github.com/spf13/cobra"
)

var closeCmd = &cobra.Command{
	Use:   "close <id>",
	Short: "Close a task directly (open/in_progress -> closed)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		taskID := args[0]
		d, err := buildDeps()
		if err != nil {
			return err
		}
		t, path, err := d.tasks.Find("", taskID)
		if err != nil {
			return fmt.Errorf("task %s: %w", taskID, err)
		}
		if err := d.tasks.SetStatus(path, t, task.StatusClosed); err != nil {
			return err
		}
		if d.tasks.IsBacklogPath(path) {
			if err := d.tasks.Move(path, d.layout.ArchiveBacklogTicket(taskID)); err != nil {
				return err
			}
		}
		fmt.Println("closed")
		return nil
	},
}

var reopenCmd = &cobra.Command{
	Use:   "reopen <id>",
	Short: "Reopen a closed task (closed -> open)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		taskID := args[0]
		d, err := buildDeps()
		if err != nil {
			return err
		}
		t, path, err := d.tasks.Find("", taskID)
		if err != nil {
			return fmt.Errorf("task %s: %w", taskID, err)
		}
		wasArchived := path == d.layout.ArchiveBacklogTicket(taskID)
		if err := d.tasks.SetStatus(path, t, task.StatusOpen); err != nil {
			return err
		}
		if wasArchived {
			if err := d.tasks.Move(path, d.layout.BacklogTicket(taskID)); err != nil {
				return err
			}
		}
		fmt.Println("open")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(closeCmd, reopenCmd)
}

package cli

import (
	"fmt"

	"github.com/kdorchestrator/kd/internal/gitutil"
	"github.com/kdorchestrator/kd/internal/slug"
	"github.com/kdorchestrator/kd/internal/task"
	"github.com/spf13/cobra"
)

var acceptBranchFlag string

var acceptCmd = &cobra.Command{
	Use:   "accept <id>",
	Short: "Accept a task in review, closing it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		taskID := args[0]
		d, err := buildDeps()
		if err != nil {
			return err
		}
		branchSlug := slug.Normalize(acceptBranchFlag)

		t, path, err := d.tasks.Find(branchSlug, taskID)
		if err != nil {
			return fmt.Errorf("task %s: %w", taskID, err)
		}

		if branchSlug != "" {
			repo, err := repoRoot()
			if err != nil {
				return err
			}
			current, err := gitutil.CurrentBranch(repo)
			if err == nil && current != acceptBranchFlag {
				return fmt.Errorf("accept: expected branch %q, on %q; switch branches before accepting (worktree mode expects the reviewer already on the feature branch)", acceptBranchFlag, current)
			}
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

func init() {
	acceptCmd.Flags().StringVar(&acceptBranchFlag, "branch", "", "branch the task lives on")
	rootCmd.AddCommand(acceptCmd)
}

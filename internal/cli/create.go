package cli

import (
	"fmt"

	"github.com/kdorchestrator/kd/internal/slug"
	"github.com/kdorchestrator/kd/internal/task"
	"github.com/spf13/cobra"
)

var createBranchFlag string

var createCmd = &cobra.Command{
	Use:   "create <title>",
	Short: "Create a new task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := buildDeps()
		if err != nil {
			return err
		}

		branchSlug := ""
		if createBranchFlag != "" {
			branchSlug = slug.Normalize(createBranchFlag)
		}

		var id string
		var path string
		for attempt := 0; attempt < 8; attempt++ {
			id, err = task.NewID()
			if err != nil {
				return err
			}
			t := &task.Task{ID: id, Title: args[0], Status: task.StatusOpen}
			path, err = d.tasks.Create(branchSlug, t)
			if err == task.ErrIDCollision {
				continue
			}
			if err != nil {
				return err
			}
			break
		}

		fmt.Println(path)
		return nil
	},
}

func init() {
	createCmd.Flags().StringVar(&createBranchFlag, "branch", "", "branch to create the task on (default: backlog)")
	rootCmd.AddCommand(createCmd)
}

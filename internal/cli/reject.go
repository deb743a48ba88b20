package cli

import (
	"fmt"

	"github.com/kdorchestrator/kd/internal/session"
	"github.com/kdorchestrator/kd/internal/slug"
	"github.com/kdorchestrator/kd/internal/task"
	"github.com/spf13/cobra"
)

var (
	rejectBranchFlag   string
	rejectFeedbackFlag string
)

var rejectCmd = &cobra.Command{
	Use:   "reject <id>",
	Short: "Reject a task in review, sending it back to work",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		taskID := args[0]
		d, err := buildDeps()
		if err != nil {
			return err
		}
		branchSlug := slug.Normalize(rejectBranchFlag)

		t, path, err := d.tasks.Find(branchSlug, taskID)
		if err != nil {
			return fmt.Errorf("task %s: %w", taskID, err)
		}
		if err := d.tasks.SetStatus(path, t, task.StatusInProgress); err != nil {
			return err
		}

		if rejectFeedbackFlag != "" {
			workThreadSlug := "work-" + taskID
			if _, _, err := d.threads.AppendMessage(branchSlug, workThreadSlug, "king", "", rejectFeedbackFlag, nil); err != nil {
				return err
			}
		}

		// A reject-relaunch resets review_bounce_count to zero.
		sessionName := "peasant-" + taskID
		if _, err := d.sessions.UpdateAgentState(branchSlug, sessionName, func(s *session.State) {
			s.ReviewBounceCount = 0
			s.Status = session.StatusIdle
		}); err != nil {
			return err
		}

		fmt.Println("in_progress")
		return nil
	},
}

func init() {
	rejectCmd.Flags().StringVar(&rejectBranchFlag, "branch", "", "branch the task lives on")
	rejectCmd.Flags().StringVar(&rejectFeedbackFlag, "feedback", "", "feedback to post as a king directive")
	rootCmd.AddCommand(rejectCmd)
}

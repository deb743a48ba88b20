package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/kdorchestrator/kd/internal/gitutil"
	"github.com/kdorchestrator/kd/internal/harness"
	"github.com/kdorchestrator/kd/internal/kdlog"
	"github.com/kdorchestrator/kd/internal/slug"
	"github.com/kdorchestrator/kd/internal/task"
	"github.com/kdorchestrator/kd/internal/thread"
	"github.com/spf13/cobra"
)

var (
	startBranchFlag string
	startAgentFlag  string
	startHandFlag   bool
)

var startCmd = &cobra.Command{
	Use:   "start <id>",
	Short: "Start the Peasant Harness on a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		taskID := args[0]
		d, err := buildDeps()
		if err != nil {
			return err
		}

		branchSlug := slug.Normalize(startBranchFlag)
		t, path, err := d.tasks.Find(branchSlug, taskID)
		if err != nil {
			return fmt.Errorf("task %s: %w", taskID, err)
		}

		if err := d.tasks.SetStatus(path, t, task.StatusInProgress); err != nil {
			return err
		}

		workThreadSlug := "work-" + taskID
		if _, err := d.threads.ReadThreadMeta(branchSlug, workThreadSlug); err != nil {
			if err := d.threads.CreateThread(branchSlug, workThreadSlug, []string{"king", startAgentFlag}, thread.PatternWork); err != nil {
				return err
			}
		}

		workDir, err := repoRoot()
		if err != nil {
			return err
		}
		startSHA, _ := gitutil.HeadSHA(workDir)
		featureBranch, _ := gitutil.CurrentBranch(workDir)

		logPath := d.layout.TaskLog(branchSlug, taskID)
		if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
			return fmt.Errorf("start: create log dir: %w", err)
		}
		logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("start: open task log: %w", err)
		}
		defer logFile.Close()
		d.harn.LogFunc = func(branchSlug, taskID string, iteration int, content string) {
			kdlog.New(logFile, kdlog.WithFields(map[string]string{"task": taskID}), kdlog.WithIteration(iteration)).Info("%s", content)
		}
		kdlog.New(logFile, kdlog.WithFields(map[string]string{"task": taskID, "agent": startAgentFlag})).
			Info("starting task %s on branch %q", taskID, branchSlug)

		stop := harness.NewStopFlag()
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
		go func() {
			<-sigCh
			stop.Set()
		}()

		status, err := d.harn.Run(context.Background(), harness.RunParams{
			AgentName:      startAgentFlag,
			TaskID:         taskID,
			BranchSlug:     branchSlug,
			WorkThreadSlug: workThreadSlug,
			WorkDir:        workDir,
			StartSHA:       startSHA,
			FeatureBranch:  featureBranch,
			HandMode:       startHandFlag,
			CouncilTimeout: d.orch.Timeout,
		}, stop)
		if err != nil {
			return err
		}

		switch status {
		case harness.FinalStopped:
			fmt.Println("stopped")
			return nil
		case harness.FinalNeedsKingReview:
			fmt.Println("needs_king_review")
			return nil
		default:
			fmt.Println(status)
			return nil
		}
	},
}

func init() {
	startCmd.Flags().StringVar(&startBranchFlag, "branch", "", "branch the task lives on (default: backlog)")
	startCmd.Flags().StringVar(&startAgentFlag, "agent", "claude", "agent backend to drive")
	startCmd.Flags().BoolVar(&startHandFlag, "hand", false, "run in hand-mode (base repo checkout, not a worktree)")
	rootCmd.AddCommand(startCmd)
}

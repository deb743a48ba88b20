package cli

import (
	"fmt"
	"os"
	"os/user"

	"github.com/kdorchestrator/kd/internal/chattui"
	"github.com/kdorchestrator/kd/internal/slug"
	"github.com/kdorchestrator/kd/internal/thread"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

var (
	chatBranchFlag string
	chatThreadFlag string
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Open an interactive group chat with the council",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd()) {
			return fmt.Errorf("chat: stdout is not a terminal; the group chat view requires an interactive TTY")
		}

		d, err := buildDeps()
		if err != nil {
			return err
		}
		branchSlug := slug.Normalize(chatBranchFlag)
		threadSlug := chatThreadFlag
		if threadSlug == "" {
			threadSlug = "chat"
		}

		if _, err := d.threads.ReadThreadMeta(branchSlug, threadSlug); err != nil {
			if err := d.threads.CreateThread(branchSlug, threadSlug, d.orch.Members, thread.PatternDirect); err != nil {
				return err
			}
		}

		username := currentUsername()

		return chattui.Run(chattui.Options{
			Layout:       d.layout,
			Threads:      d.threads,
			Invoker:      d.inv,
			Backends:     d.backends,
			BranchSlug:   branchSlug,
			ThreadSlug:   threadSlug,
			Members:      d.orch.Members,
			Username:     username,
			AutoMessages: d.cfg.Council.AutoMessages,
		})
	},
}

func currentUsername() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	if v := os.Getenv("USER"); v != "" {
		return v
	}
	return "king"
}

func init() {
	chatCmd.Flags().StringVar(&chatBranchFlag, "branch", "", "branch to scope the chat thread to")
	chatCmd.Flags().StringVar(&chatThreadFlag, "thread", "", "thread slug (default: chat)")
	rootCmd.AddCommand(chatCmd)
}

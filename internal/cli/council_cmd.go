package cli

import (
	"context"
	"fmt"

	"github.com/kdorchestrator/kd/internal/slug"
	"github.com/spf13/cobra"
)

var (
	councilBranchFlag string
	councilThreadFlag string
)

var councilCmd = &cobra.Command{
	Use:   "council <prompt>",
	Short: "Fan a prompt out to the configured council members",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := buildDeps()
		if err != nil {
			return err
		}
		branchSlug := slug.Normalize(councilBranchFlag)
		threadSlug := councilThreadFlag
		if threadSlug == "" {
			threadSlug = "council"
		}

		if _, err := d.threads.ReadThreadMeta(branchSlug, threadSlug); err != nil {
			if err := d.threads.CreateThread(branchSlug, threadSlug, d.orch.Members, "council"); err != nil {
				return err
			}
		}

		results, err := d.orch.QueryToThread(context.Background(), branchSlug, threadSlug, args[0], nil)
		if err != nil {
			return err
		}
		for _, r := range results {
			if r.Err != nil {
				fmt.Printf("%s: error: %s\n", r.Name, r.Err)
				continue
			}
			fmt.Printf("%s: %s\n", r.Name, r.Response.Text)
		}
		return nil
	},
}

func init() {
	councilCmd.Flags().StringVar(&councilBranchFlag, "branch", "", "branch to scope the council thread to")
	councilCmd.Flags().StringVar(&councilThreadFlag, "thread", "", "thread slug (default: council)")
	rootCmd.AddCommand(councilCmd)
}

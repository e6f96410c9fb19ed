package main

import (
	"io"

	"github.com/aretw0/arbor/internal/cli"
	"github.com/aretw0/arbor/internal/presentation/tui"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/spf13/cobra"
)

var diffCmd = &cobra.Command{
	Use:   "diff <old> <new>",
	Short: "Print the patches that turn one map into another",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		oldTree, err := cli.LoadTree(args[0], cmd.InOrStdin())
		if err != nil {
			return err
		}
		newTree, err := cli.LoadTree(args[1], cmd.InOrStdin())
		if err != nil {
			return err
		}
		domain.FillIDs(oldTree)
		domain.FillIDs(newTree)

		patches := domain.Diff(oldTree, newTree)
		if asJSON {
			if patches == nil {
				patches = []domain.Patch{}
			}
			return writeJSON(cmd.OutOrStdout(), patches)
		}
		_, err = io.WriteString(cmd.OutOrStdout(), tui.DiffSummary(patches))
		return err
	},
}

func init() {
	rootCmd.AddCommand(diffCmd)
	diffCmd.Flags().Bool("json", false, "Print patches as JSON")
}

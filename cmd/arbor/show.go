package main

import (
	"github.com/aretw0/arbor/internal/cli"
	"github.com/spf13/cobra"
)

var showCmd = &cobra.Command{
	Use:   "show <file>",
	Short: "Print a map file as an outline",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		root, err := cli.LoadTree(args[0], cmd.InOrStdin())
		if err != nil {
			return err
		}
		return writeTree(cmd.OutOrStdout(), root, format)
	},
}

func init() {
	rootCmd.AddCommand(showCmd)
	showCmd.Flags().StringP("format", "f", formatOutline, "Output format: outline, mindmap, json or yaml")
}

package main

import (
	"github.com/aretw0/arbor/internal/cli"
	"github.com/aretw0/arbor/internal/validator"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Check a map file for empty names, duplicate IDs and oversized branches",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := cli.LoadTree(args[0], cmd.InOrStdin())
		if err != nil {
			return err
		}
		if err := validator.ValidateMap(root, limitsFromFlags(cmd)); err != nil {
			return err
		}
		cli.PrintSystemMessage(cmd.OutOrStdout(), "Map '%s' is valid (%d nodes).", args[0], root.Count())
		return nil
	},
}

func limitsFromFlags(cmd *cobra.Command) validator.Limits {
	limits := validator.DefaultLimits
	if v, err := cmd.Flags().GetInt("max-depth"); err == nil {
		limits.MaxDepth = v
	}
	if v, err := cmd.Flags().GetInt("max-fan-out"); err == nil {
		limits.MaxFanOut = v
	}
	if v, err := cmd.Flags().GetInt("max-nodes"); err == nil {
		limits.MaxNodes = v
	}
	return limits
}

func addLimitFlags(cmd *cobra.Command) {
	cmd.Flags().Int("max-depth", validator.DefaultLimits.MaxDepth, "Deepest allowed branch (0 disables)")
	cmd.Flags().Int("max-fan-out", validator.DefaultLimits.MaxFanOut, "Most children allowed under one node (0 disables)")
	cmd.Flags().Int("max-nodes", validator.DefaultLimits.MaxNodes, "Most nodes allowed in the map (0 disables)")
}

func init() {
	rootCmd.AddCommand(validateCmd)
	addLimitFlags(validateCmd)
}

package main

import (
	"fmt"
	"io"

	"github.com/aretw0/arbor"
	"github.com/aretw0/arbor/internal/cli"
	"github.com/aretw0/arbor/internal/presentation/graph"
	"github.com/spf13/cobra"
)

var layoutCmd = &cobra.Command{
	Use:   "layout <file>",
	Short: "Lay a map out and print its positioned graph",
	Long:  `Reads a JSON or YAML map ("-" for JSON on stdin) and prints the laid-out nodes and edges as JSON or as a Mermaid flowchart.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		root, err := cli.LoadTree(args[0], cmd.InOrStdin())
		if err != nil {
			return err
		}
		eng := arbor.New(cli.LayoutOptions(cfg.Layout)...)
		if err := eng.Load(root); err != nil {
			return err
		}
		snap := eng.Snapshot()

		switch format {
		case formatJSON:
			return writeJSON(cmd.OutOrStdout(), snap)
		case "mermaid":
			_, err := io.WriteString(cmd.OutOrStdout(), graph.GenerateMermaid(snap, nil))
			return err
		default:
			return fmt.Errorf("unknown format %q (want json or mermaid)", format)
		}
	},
}

func init() {
	rootCmd.AddCommand(layoutCmd)
	layoutCmd.Flags().StringP("format", "f", formatJSON, "Output format: json or mermaid")
}

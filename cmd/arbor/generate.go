package main

import (
	"github.com/aretw0/arbor/internal/cli"
	"github.com/aretw0/arbor/pkg/relay"
	"github.com/spf13/cobra"
)

var generateCmd = &cobra.Command{
	Use:   "generate [file...]",
	Short: "Generate a mind map from text",
	Long: `Reads text from the given files (or stdin) and prints the generated map.
With --save the map replaces the stored map named by --map-id.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		mapID, _ := cmd.Flags().GetString("map-id")
		save, _ := cmd.Flags().GetBool("save")

		history, err := cli.ReadInput(args, cmd.InOrStdin())
		if err != nil {
			return err
		}
		app, err := newApp(cmd, nil)
		if err != nil {
			return err
		}
		defer app.Close()

		gen, err := cli.NewGenerator(app.Config.Generator, app.Logger)
		if err != nil {
			return err
		}
		if gen == nil {
			return relay.ErrNoGenerator
		}

		if save {
			root, err := app.Relay.Generate(cmd.Context(), mapID, history)
			if err != nil {
				return err
			}
			return writeTree(cmd.OutOrStdout(), root, format)
		}
		root, err := gen.Generate(cmd.Context(), history)
		if err != nil {
			return err
		}
		return writeTree(cmd.OutOrStdout(), root, format)
	},
}

func init() {
	rootCmd.AddCommand(generateCmd)
	generateCmd.Flags().StringP("format", "f", formatJSON, "Output format: json, yaml, outline or mindmap")
	generateCmd.Flags().String("map-id", "default", "Map to replace when saving")
	generateCmd.Flags().Bool("save", false, "Store the generated map")
}

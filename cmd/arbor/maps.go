package main

import (
	"errors"
	"fmt"

	"github.com/aretw0/arbor/internal/cli"
	"github.com/aretw0/arbor/internal/validator"
	"github.com/spf13/cobra"
)

var mapsCmd = &cobra.Command{
	Use:   "maps",
	Short: "Manage stored maps",
	Long:  `List, inspect, import and remove maps in the configured store.`,
}

var mapsLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List stored maps",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp(cmd, nil)
		if err != nil {
			return err
		}
		defer app.Close()

		ids, err := app.Relay.List(cmd.Context())
		if err != nil {
			return fmt.Errorf("error listing maps: %w", err)
		}
		out := cmd.OutOrStdout()
		if len(ids) == 0 {
			fmt.Fprintln(out, "No maps found.")
			return nil
		}
		fmt.Fprintln(out, "Maps:")
		for _, id := range ids {
			fmt.Fprintln(out, "- "+id)
		}
		return nil
	},
}

var mapsInspectCmd = &cobra.Command{
	Use:   "inspect <map-id>",
	Short: "Print a stored map",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		app, err := newApp(cmd, nil)
		if err != nil {
			return err
		}
		defer app.Close()

		root, err := app.Relay.Get(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("error loading map '%s': %w", args[0], err)
		}
		return writeTree(cmd.OutOrStdout(), root, format)
	},
}

var mapsImportCmd = &cobra.Command{
	Use:   "import <map-id> <file>",
	Short: "Store a JSON or YAML map file under an ID",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := cli.LoadTree(args[1], cmd.InOrStdin())
		if err != nil {
			return err
		}
		if err := validator.ValidateMap(root, limitsFromFlags(cmd)); err != nil {
			return err
		}
		app, err := newApp(cmd, nil)
		if err != nil {
			return err
		}
		defer app.Close()

		if _, err := app.Relay.Replace(cmd.Context(), args[0], root); err != nil {
			return err
		}
		cli.PrintSystemMessage(cmd.OutOrStdout(), "Stored map '%s'.", args[0])
		return nil
	},
}

var mapsRmCmd = &cobra.Command{
	Use:   "rm <map-id>...",
	Short: "Remove one or more maps",
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")
		if !all && len(args) == 0 {
			return errors.New("give at least one map ID or --all")
		}

		app, err := newApp(cmd, nil)
		if err != nil {
			return err
		}
		defer app.Close()

		if all {
			if args, err = app.Relay.List(cmd.Context()); err != nil {
				return err
			}
		}

		var errs []error
		for _, id := range args {
			if err := app.Relay.Delete(cmd.Context(), id); err != nil {
				errs = append(errs, fmt.Errorf("error removing '%s': %w", id, err))
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed map '%s'\n", id)
		}
		return errors.Join(errs...)
	},
}

func init() {
	rootCmd.AddCommand(mapsCmd)
	mapsCmd.AddCommand(mapsLsCmd)
	mapsCmd.AddCommand(mapsInspectCmd)
	mapsCmd.AddCommand(mapsImportCmd)
	mapsCmd.AddCommand(mapsRmCmd)

	mapsInspectCmd.Flags().StringP("format", "f", formatJSON, "Output format: json, yaml, outline or mindmap")
	mapsRmCmd.Flags().Bool("all", false, "Remove every stored map")
	addLimitFlags(mapsImportCmd)
}

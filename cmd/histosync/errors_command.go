package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"histosync/internal/inventory"
)

func newErrorsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "errors",
		Short: "List images permanently excluded by the shrink tool",
		Long: "Prints the basenames recorded in the dataset error list, one per line.\n" +
			"Delete a line from the file to let the next run retry that image.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, ds, err := ctx.dataset()
			if err != nil {
				return err
			}
			list := inventory.NewErrorList(ds.ErrorListPath())
			names, err := list.Sorted()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(names) == 0 {
				fmt.Fprintf(out, "No excluded images (%s)\n", list.Path())
				return nil
			}
			for _, name := range names {
				fmt.Fprintln(out, name)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "%d excluded images in %s\n", len(names), list.Path())
			return nil
		},
	}
}

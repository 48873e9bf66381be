package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"phash-degrade/internal/algorithms"
)

func newStagesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stages",
		Short: "List the degradation stages and their parameters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			for i, name := range algorithms.Names() {
				stage, _ := algorithms.Get(name)
				if i > 0 {
					fmt.Fprintln(out)
				}
				fmt.Fprintf(out, "%s: %s\n", name, stage.Description())

				params, err := algorithms.GetParameterInfo(name)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				for _, p := range params {
					fmt.Fprintf(w, "  %s\t%s\tdefault %v\t%s\n", p.Name, p.Type, p.Default, p.Description)
				}
				w.Flush()
			}
			return nil
		},
	}
}

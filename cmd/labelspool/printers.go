package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/orrn/labelspool/internal/api/handlers"
)

func newPrintersCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "printers",
		Short: "List printers and show which one a print would use",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, root)
			if err != nil {
				return err
			}
			defer a.Close()

			printers, err := a.session.Printers(ctx)
			if err != nil {
				return err
			}
			resolved, err := a.session.ResolvePrinter(ctx)
			if err != nil {
				return err
			}

			reporter, _ := a.bridge.(handlers.StatusReporter)
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "\tPRINTER\tSTATUS")
			for _, name := range printers {
				marker := ""
				if name == resolved {
					marker = "*"
				}
				status := "-"
				if reporter != nil {
					if st, err := reporter.Status(ctx, name); st != nil {
						status = st.Summary()
						if err != nil {
							status += " (" + err.Error() + ")"
						}
					}
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\n", marker, name, status)
			}
			return tw.Flush()
		},
	}
}

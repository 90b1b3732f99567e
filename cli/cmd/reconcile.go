package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"dopahiyaa/cli/internal/client"
)

func newReconcileCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Work the ledger reconciliation queue (admin)",
	}
	cmd.AddCommand(newReconcileListCmd(opts))
	cmd.AddCommand(newReconcileResolveCmd(opts))
	return cmd
}

func newReconcileListCmd(opts *rootOptions) *cobra.Command {
	var status string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List reconciliation records, oldest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.requireToken(); err != nil {
				return err
			}
			recs, err := opts.client().ListReconciliations(cmd.Context(), status, limit)
			if err != nil {
				return err
			}
			if opts.resolved.Output == "json" {
				return printJSON(cmd.OutOrStdout(), recs)
			}
			printReconciliations(cmd.OutOrStdout(), recs)
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", "open", "open|resolved|all")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum records (server caps at 200)")
	return cmd
}

func newReconcileResolveCmd(opts *rootOptions) *cobra.Command {
	var note string
	cmd := &cobra.Command{
		Use:   "resolve <id>",
		Short: "Mark a reconciliation record resolved",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.requireToken(); err != nil {
				return err
			}
			rec, err := opts.client().ResolveReconciliation(cmd.Context(), args[0], note)
			if err != nil {
				return err
			}
			if opts.resolved.Output == "json" {
				return printJSON(cmd.OutOrStdout(), rec)
			}
			okColor.Fprintf(cmd.OutOrStdout(), "Resolved %s (dealer %s, %d credits)\n", rec.ID, rec.DealerID, rec.Amount)
			return nil
		},
	}
	cmd.Flags().StringVar(&note, "note", "", "what was done to fix the balance")
	_ = cmd.MarkFlagRequired("note")
	return cmd
}

func printReconciliations(w io.Writer, recs []client.Reconciliation) {
	if len(recs) == 0 {
		fmt.Fprintln(w, dimColor.Sprint("No reconciliation records"))
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDEALER\tAMOUNT\tREASON\tSTATUS\tCREATED")
	for _, r := range recs {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\n", r.ID, r.DealerID, r.Amount, r.Reason, r.Status, r.CreatedAt.Format("2006-01-02 15:04"))
	}
	_ = tw.Flush()
}

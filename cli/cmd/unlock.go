package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"dopahiyaa/cli/internal/client"
)

func newUnlockCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "unlock <leadId>",
		Short: "Unlock a lead as the configured dealer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.requireToken(); err != nil {
				return err
			}
			res, err := opts.client().Unlock(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if opts.resolved.Output == "json" {
				return printJSON(cmd.OutOrStdout(), res)
			}
			printUnlock(cmd.OutOrStdout(), res)
			return nil
		},
	}
}

func printUnlock(w io.Writer, res client.UnlockResult) {
	if res.AlreadyUnlocked {
		warnColor.Fprintf(w, "Lead %s was already unlocked, no credits charged\n", res.LeadID)
	} else {
		okColor.Fprintf(w, "Unlocked lead %s for %d credits\n", res.LeadID, res.Cost)
	}
	row(w, "Balance", "%d", res.CreditsRemaining)
	if c := res.Contact; c != nil {
		row(w, "Name", "%s", c.Name)
		if c.Phone != "" {
			row(w, "Phone", "%s", c.Phone)
		}
		if c.Email != "" {
			row(w, "Email", "%s", c.Email)
		}
	} else {
		fmt.Fprintln(w, dimColor.Sprint("Buyer contact unavailable"))
	}
}

package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"dopahiyaa/cli/internal/client"
)

type quoteFlags struct {
	city, region, brand, model, leadType string
	dateRange, startDate, endDate        string
	quantity                             float64
	noFilters                            bool
}

func newQuoteCmd(opts *rootOptions) *cobra.Command {
	var f quoteFlags

	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Price a filter pack",
		Example: `  leadctl quote --city Pune --brand Honda --quantity 20
  leadctl quote --no-filters --quantity 10 --output json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.requireToken(); err != nil {
				return err
			}
			req := buildQuoteRequest(f, cmd.Flags().Changed("quantity"))
			q, err := opts.client().Quote(cmd.Context(), req)
			if err != nil {
				return err
			}
			if opts.resolved.Output == "json" {
				return printJSON(cmd.OutOrStdout(), q)
			}
			printQuote(cmd.OutOrStdout(), q)
			return nil
		},
	}

	cmd.Flags().StringVar(&f.city, "city", "", "city filter")
	cmd.Flags().StringVar(&f.region, "region", "", "region filter")
	cmd.Flags().StringVar(&f.brand, "brand", "", "brand filter")
	cmd.Flags().StringVar(&f.model, "model", "", "model filter")
	cmd.Flags().StringVar(&f.leadType, "lead-type", "", "lead type filter")
	cmd.Flags().StringVar(&f.dateRange, "date-range", "", "named date range (today, last_7_days, ...)")
	cmd.Flags().StringVar(&f.startDate, "start-date", "", "window start (YYYY-MM-DD)")
	cmd.Flags().StringVar(&f.endDate, "end-date", "", "window end, inclusive (YYYY-MM-DD)")
	cmd.Flags().Float64Var(&f.quantity, "quantity", 0, "number of leads")
	cmd.Flags().BoolVar(&f.noFilters, "no-filters", false, "price an unfiltered pack")
	return cmd
}

func buildQuoteRequest(f quoteFlags, quantitySet bool) client.QuoteRequest {
	req := client.QuoteRequest{}
	if quantitySet {
		q := f.quantity
		req.Quantity = &q
	}
	if f.noFilters {
		off := false
		req.UseFilters = &off
		return req
	}
	req.City, req.Region, req.Brand, req.Model, req.LeadType = f.city, f.region, f.brand, f.model, f.leadType
	req.DateRange, req.StartDate, req.EndDate = f.dateRange, f.startDate, f.endDate
	return req
}

func printQuote(w io.Writer, q client.Quote) {
	row(w, "Quantity", "%d (minimum %d)", q.Quantity, q.MinQuantity)
	row(w, "Base price", "%s", q.BasePrice.String())
	if q.HasFilters {
		row(w, "Filtered", "yes")
	}
	for _, a := range q.Adjustments {
		sign := ""
		if a.Amount.IsPositive() {
			sign = "+"
		}
		row(w, "  "+a.RuleName, "%s%s", sign, a.Amount.String())
	}
	row(w, "Per lead", "%s", q.PerLeadPrice.String())
	row(w, "Subtotal", "%s", q.Subtotal.String())
	if !q.BulkDiscount.IsZero() {
		row(w, "Bulk discount", "-%s (tier %d)", q.BulkDiscount.String(), q.BulkTierID)
	}
	fmt.Fprintf(w, "%-18s %s\n", "Total:", okColor.Sprintf("%d credits", q.TotalPrice))
}

package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/adeilh/unimart/market"
)

func productCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "product",
		Short: "Read product listings",
	}
	cmd.AddCommand(productGetCmd(), productListCmd())
	return cmd
}

func productGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show one product",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			c, release, err := newClient(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer release()

			p, err := c.GetProduct(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), p)
		},
	}
}

func productListCmd() *cobra.Command {
	var (
		q      market.ProductQuery
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List products",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			c, release, err := newClient(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer release()

			page, err := c.ListProducts(cmd.Context(), q)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), page)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTITLE\tCATEGORY\tPRICE\tSTATUS\tVIEWS")
			for _, p := range page.Items {
				fmt.Fprintf(w, "%s\t%s\t%s\t%.2f\t%s\t%d\n", p.ID, truncate(p.Title, 40), p.Category, p.Price, p.Status, p.Views)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "page %d/%d, %d total\n", page.Page, page.Pages, page.Total)
			return nil
		},
	}

	cmd.Flags().StringVar(&q.Search, "search", "", "Full-text search in title and description")
	cmd.Flags().StringVar(&q.Category, "category", "", "Filter by category")
	cmd.Flags().Float64Var(&q.MinPrice, "min-price", 0, "Minimum price")
	cmd.Flags().Float64Var(&q.MaxPrice, "max-price", 0, "Maximum price")
	cmd.Flags().StringVar(&q.Sort, "sort", market.SortNewest, "newest, oldest, price_asc, price_desc or popular")
	cmd.Flags().IntVar(&q.Page, "page", 1, "Page number")
	cmd.Flags().IntVar(&q.Limit, "limit", market.DefaultLimit, "Page size")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the raw page as JSON")
	return cmd
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

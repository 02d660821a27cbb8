package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	apiclient "pricewatch/internal/api/client"
)

func productsCmd() *cobra.Command {
	productsRoot := &cobra.Command{
		Use:   "products",
		Short: "Manage tracked products",
		Long: "Manage the products pricewatch scrapes: add pages to track, adjust\n" +
			"cadence, and inspect the recorded price history.",
	}

	productsRoot.AddCommand(
		productsListCmd(),
		productsGetCmd(),
		productsAddCmd(),
		productsTrackCmd(),
		productsEnableCmd(),
		productsDisableCmd(),
		productsDeleteCmd(),
		productsCheckCmd(),
		productsHistoryCmd(),
		productsDailyCmd(),
	)

	return productsRoot
}

func productsListCmd() *cobra.Command {
	var (
		retailerID string
		enabled    bool
		stale      bool
		available  bool
		search     string
		limit      int
		offset     int
		orderBy    string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tracked products with optional filters",
		Example: `  # List all tracked products
  pwctl products list

  # Only enabled products from one retailer
  pwctl products list --retailer ret-1 --enabled

  # Products flagged stale, cheapest first
  pwctl products list --stale --order-by price

  # Title search with pagination
  pwctl products list --search "4K monitor" --limit 20 --offset 40`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			params := &apiclient.ListProductsParams{
				RetailerID: retailerID,
				Search:     search,
				Limit:      limit,
				Offset:     offset,
				OrderBy:    orderBy,
			}
			// Tri-state filters: only send what was set explicitly.
			if cmd.Flags().Changed("enabled") {
				params.Enabled = &enabled
			}
			if cmd.Flags().Changed("stale") {
				params.Stale = &stale
			}
			if cmd.Flags().Changed("available") {
				params.Available = &available
			}

			c := newClient()
			resp, err := c.ListProducts(context.Background(), params)
			if err != nil {
				return err
			}

			if jsonOutput() {
				return outputJSON(resp)
			}

			if len(resp.Products) == 0 {
				fmt.Println("No products found.")
				return nil
			}

			fmt.Printf("Showing %d of %d products\n\n", len(resp.Products), resp.Total)
			return printProductTable(resp.Products)
		},
	}
	cmd.Flags().StringVar(&retailerID, "retailer", "", "retailer ID filter")
	cmd.Flags().BoolVar(&enabled, "enabled", true, "filter by enabled flag")
	cmd.Flags().BoolVar(&stale, "stale", true, "filter by stale flag")
	cmd.Flags().BoolVar(&available, "available", true, "filter by availability")
	cmd.Flags().StringVar(&search, "search", "", "title substring filter")
	cmd.Flags().IntVar(&limit, "limit", 50, "number of results")
	cmd.Flags().IntVar(&offset, "offset", 0, "result offset")
	cmd.Flags().
		StringVar(&orderBy, "order-by", "", "sort order (price, last_checked_at, priority, created_at)")

	return cmd
}

func productsGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show product details",
		Example: `  pwctl products get 2f6c0cde
  pwctl products get 2f6c0cde --output json`,
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			c := newClient()
			p, err := c.GetProduct(context.Background(), args[0])
			if err != nil {
				return err
			}
			if jsonOutput() {
				return outputJSON(p)
			}
			return printProductDetail(p)
		},
	}
}

func productsAddCmd() *cobra.Command {
	var (
		retailerID string
		sourceURL  string
		title      string
		sku        string
		currency   string
		cadence    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Track a new product",
		Long: "Track a new product page. The retailer must exist; the first scrape\n" +
			"is scheduled on the next enqueue pass.",
		Example: `  # Track a product with the default 6h cadence
  pwctl products add --retailer ret-1 --url https://shop.example.com/p/42 --title "4K Monitor"

  # Hourly checks, explicit currency
  pwctl products add --retailer ret-1 --url https://shop.example.com/p/42 \
    --title "4K Monitor" --currency EUR --cadence 1h`,
		RunE: func(_ *cobra.Command, _ []string) error {
			if retailerID == "" || sourceURL == "" || title == "" {
				return fmt.Errorf("--retailer, --url and --title are required")
			}
			req := apiclient.CreateProductRequest{
				RetailerID: retailerID,
				SourceURL:  sourceURL,
				Title:      title,
				SKU:        sku,
				Currency:   currency,
			}
			if cadence > 0 {
				req.CadenceSeconds = int(cadence.Seconds())
			}
			c := newClient()
			created, err := c.CreateProduct(context.Background(), req)
			if err != nil {
				return err
			}
			if jsonOutput() {
				return outputJSON(created)
			}
			fmt.Printf("Product created: %s (%s)\n", created.Title, created.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&retailerID, "retailer", "", "retailer ID")
	cmd.Flags().StringVar(&sourceURL, "url", "", "product page URL")
	cmd.Flags().StringVar(&title, "title", "", "product title")
	cmd.Flags().StringVar(&sku, "sku", "", "retailer SKU")
	cmd.Flags().StringVar(&currency, "currency", "", "expected currency (default USD)")
	cmd.Flags().DurationVar(&cadence, "cadence", 0, "scrape cadence (default 6h)")

	return cmd
}

func productsTrackCmd() *cobra.Command {
	var cadence time.Duration

	cmd := &cobra.Command{
		Use:   "track <id>",
		Short: "Change a product's scrape cadence",
		Example: `  # Check every 15 minutes
  pwctl products track 2f6c0cde --cadence 15m`,
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if cadence <= 0 {
				return fmt.Errorf("--cadence is required")
			}
			c := newClient()
			// The tracking update carries both fields; fetch to keep
			// the current enabled flag.
			p, err := c.GetProduct(context.Background(), args[0])
			if err != nil {
				return err
			}
			updated, err := c.UpdateTracking(context.Background(), args[0], int(cadence.Seconds()), p.Enabled)
			if err != nil {
				return err
			}
			if jsonOutput() {
				return outputJSON(updated)
			}
			fmt.Printf("Product %s now checked every %s.\n", updated.ID, cadence)
			return nil
		},
	}
	cmd.Flags().DurationVar(&cadence, "cadence", 0, "scrape cadence (minimum 1m)")

	return cmd
}

func productsEnableCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "enable <id>",
		Short:   "Resume scraping a product",
		Example: `  pwctl products enable 2f6c0cde`,
		Args:    cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return runProductSetEnabled(args[0], true)
		},
	}
}

func productsDisableCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "disable <id>",
		Short:   "Pause scraping a product",
		Example: `  pwctl products disable 2f6c0cde`,
		Args:    cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return runProductSetEnabled(args[0], false)
		},
	}
}

func productsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "delete <id>",
		Short:   "Delete a product and its history",
		Example: `  pwctl products delete 2f6c0cde`,
		Args:    cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			c := newClient()
			if err := c.DeleteProduct(context.Background(), args[0]); err != nil {
				return err
			}
			fmt.Printf("Product %s deleted.\n", args[0])
			return nil
		},
	}
}

func productsCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "check <id>",
		Short:   "Enqueue an immediate scrape",
		Long:    "Enqueues a high-priority scrape for one product, ahead of its cadence.",
		Example: `  pwctl products check 2f6c0cde`,
		Args:    cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			c := newClient()
			if err := c.CheckNow(context.Background(), args[0]); err != nil {
				return err
			}
			fmt.Printf("Scrape enqueued for product %s.\n", args[0])
			return nil
		},
	}
}

func productsHistoryCmd() *cobra.Command {
	var (
		since time.Duration
		limit int
	)

	cmd := &cobra.Command{
		Use:   "history <id>",
		Short: "Show raw price observations",
		Example: `  # Last 90 days (default)
  pwctl products history 2f6c0cde

  # Last week only
  pwctl products history 2f6c0cde --since 168h --limit 100`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var from time.Time
			if cmd.Flags().Changed("since") {
				from = time.Now().Add(-since)
			}
			c := newClient()
			resp, err := c.PriceHistory(context.Background(), args[0], from, time.Time{}, limit)
			if err != nil {
				return err
			}
			if jsonOutput() {
				return outputJSON(resp)
			}
			if len(resp.Points) == 0 {
				fmt.Println("No price points found.")
				return nil
			}
			return printPricePointsTable(resp.Points)
		},
	}
	cmd.Flags().DurationVar(&since, "since", 0, "window length ending now (default 90 days)")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum points (default 500)")

	return cmd
}

func productsDailyCmd() *cobra.Command {
	var since time.Duration

	cmd := &cobra.Command{
		Use:   "daily <id>",
		Short: "Show per-day price rollups",
		Example: `  pwctl products daily 2f6c0cde
  pwctl products daily 2f6c0cde --since 720h --output json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var from time.Time
			if cmd.Flags().Changed("since") {
				from = time.Now().Add(-since)
			}
			c := newClient()
			resp, err := c.DailySummaries(context.Background(), args[0], from, time.Time{})
			if err != nil {
				return err
			}
			if jsonOutput() {
				return outputJSON(resp)
			}
			if len(resp.Days) == 0 {
				fmt.Println("No daily summaries found.")
				return nil
			}
			return printDailySummariesTable(resp.Days)
		},
	}
	cmd.Flags().DurationVar(&since, "since", 0, "window length ending now (default 90 days)")

	return cmd
}

func runProductSetEnabled(id string, enabled bool) error {
	c := newClient()
	p, err := c.GetProduct(context.Background(), id)
	if err != nil {
		return err
	}
	if _, err := c.UpdateTracking(context.Background(), id, p.CadenceSeconds, enabled); err != nil {
		return err
	}

	action := "enabled"
	if !enabled {
		action = "disabled"
	}
	fmt.Printf("Product %s %s.\n", id, action)
	return nil
}

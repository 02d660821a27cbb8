package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	apiclient "pricewatch/internal/api/client"
)

func retailersCmd() *cobra.Command {
	retailersRoot := &cobra.Command{
		Use:   "retailers",
		Short: "Manage retailers",
		Long: "Manage the retailers products are scraped from. Each retailer\n" +
			"carries its own politeness budget (requests per minute and burst).",
	}

	retailersRoot.AddCommand(
		retailersListCmd(),
		retailersGetCmd(),
		retailersAddCmd(),
	)

	return retailersRoot
}

func retailersListCmd() *cobra.Command {
	var activeOnly bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List retailers",
		Example: `  pwctl retailers list
  pwctl retailers list --active --output json`,
		RunE: func(_ *cobra.Command, _ []string) error {
			c := newClient()
			retailers, err := c.ListRetailers(context.Background(), activeOnly)
			if err != nil {
				return err
			}
			if jsonOutput() {
				return outputJSON(retailers)
			}
			if len(retailers) == 0 {
				fmt.Println("No retailers found.")
				return nil
			}
			return printRetailerTable(retailers)
		},
	}
	cmd.Flags().BoolVar(&activeOnly, "active", false, "only active retailers")

	return cmd
}

func retailersGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "get <id>",
		Short:   "Show retailer details",
		Example: `  pwctl retailers get ret-1`,
		Args:    cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			c := newClient()
			r, err := c.GetRetailer(context.Background(), args[0])
			if err != nil {
				return err
			}
			if jsonOutput() {
				return outputJSON(r)
			}
			return printRetailerDetail(r)
		},
	}
}

func retailersAddCmd() *cobra.Command {
	var (
		id      string
		name    string
		baseURL string
		rpm     int
		burst   int
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create or update a retailer",
		Long: "Create a retailer, or update an existing one when --id is given.\n" +
			"The politeness budget defaults to 30 requests per minute with a\n" +
			"burst of 5.",
		Example: `  # Register a new retailer
  pwctl retailers add --name "Example Shop" --base-url https://shop.example.com

  # Tighten an existing retailer's budget
  pwctl retailers add --id ret-1 --name "Example Shop" \
    --base-url https://shop.example.com --rpm 12 --burst 2`,
		RunE: func(_ *cobra.Command, _ []string) error {
			if name == "" || baseURL == "" {
				return fmt.Errorf("--name and --base-url are required")
			}
			req := apiclient.UpsertRetailerRequest{
				ID:                id,
				Name:              name,
				BaseURL:           baseURL,
				RequestsPerMinute: rpm,
				Burst:             burst,
			}
			c := newClient()
			saved, err := c.UpsertRetailer(context.Background(), req)
			if err != nil {
				return err
			}
			if jsonOutput() {
				return outputJSON(saved)
			}
			fmt.Printf("Retailer saved: %s (%s)\n", saved.Name, saved.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "retailer ID (update an existing retailer)")
	cmd.Flags().StringVar(&name, "name", "", "retailer name")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "retailer base URL")
	cmd.Flags().IntVar(&rpm, "rpm", 0, "requests per minute (default 30)")
	cmd.Flags().IntVar(&burst, "burst", 0, "burst size (default 5)")

	return cmd
}

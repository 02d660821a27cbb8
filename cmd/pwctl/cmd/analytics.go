package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func analyticsCmd() *cobra.Command {
	analyticsRoot := &cobra.Command{
		Use:   "analytics",
		Short: "Price history analytics",
		Long: "Read-only analytics computed from a product's price history:\n" +
			"daily volatility, trend movement, and percentile/seasonality insight.",
	}

	analyticsRoot.AddCommand(
		analyticsVolatilityCmd(),
		analyticsTrendCmd(),
		analyticsInsightCmd(),
	)

	return analyticsRoot
}

func analyticsVolatilityCmd() *cobra.Command {
	var since time.Duration

	cmd := &cobra.Command{
		Use:   "volatility <id>",
		Short: "Show daily price spread statistics",
		Example: `  # Last 90 days (default)
  pwctl analytics volatility 2f6c0cde

  # Last 30 days
  pwctl analytics volatility 2f6c0cde --since 720h`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient()
			s, err := c.Volatility(context.Background(), args[0], sinceWindow(cmd, since), time.Time{})
			if err != nil {
				return err
			}
			if jsonOutput() {
				return outputJSON(s)
			}
			if len(s.Days) == 0 {
				fmt.Println("No observations in window.")
				return nil
			}
			return printVolatilityTable(s)
		},
	}
	cmd.Flags().DurationVar(&since, "since", 0, "window length ending now (default 90 days)")

	return cmd
}

func analyticsTrendCmd() *cobra.Command {
	var since time.Duration

	cmd := &cobra.Command{
		Use:   "trend <id>",
		Short: "Show daily open/close movement",
		Example: `  pwctl analytics trend 2f6c0cde
  pwctl analytics trend 2f6c0cde --since 168h --output json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient()
			s, err := c.Trend(context.Background(), args[0], sinceWindow(cmd, since), time.Time{})
			if err != nil {
				return err
			}
			if jsonOutput() {
				return outputJSON(s)
			}
			if len(s.Days) == 0 {
				fmt.Println("No observations in window.")
				return nil
			}
			return printTrendTable(s)
		},
	}
	cmd.Flags().DurationVar(&since, "since", 0, "window length ending now (default 90 days)")

	return cmd
}

func analyticsInsightCmd() *cobra.Command {
	var since time.Duration

	cmd := &cobra.Command{
		Use:   "insight <id>",
		Short: "Show percentile bands and the best months to buy",
		Example: `  pwctl analytics insight 2f6c0cde`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient()
			s, err := c.Insight(context.Background(), args[0], sinceWindow(cmd, since), time.Time{})
			if err != nil {
				return err
			}
			if jsonOutput() {
				return outputJSON(s)
			}
			if s.SampleCount == 0 {
				fmt.Println("No observations in window.")
				return nil
			}
			return printInsightDetail(s)
		},
	}
	cmd.Flags().DurationVar(&since, "since", 0, "window length ending now (default 90 days)")

	return cmd
}

// sinceWindow converts a --since duration to an absolute from time,
// leaving the server default in place when the flag was not set.
func sinceWindow(cmd *cobra.Command, since time.Duration) time.Time {
	if !cmd.Flags().Changed("since") {
		return time.Time{}
	}
	return time.Now().Add(-since)
}

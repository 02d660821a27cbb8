package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	apiclient "pricewatch/internal/api/client"
)

func eventsCmd() *cobra.Command {
	eventsRoot := &cobra.Command{
		Use:   "events",
		Short: "Inspect fired alerts",
		Long: "Inspect alert events the evaluation pipeline has fired, including\n" +
			"their delivery state. Events whose delivery retries are exhausted\n" +
			"show up under 'events failed'.",
	}

	eventsRoot.AddCommand(
		eventsListCmd(),
		eventsGetCmd(),
		eventsReadCmd(),
		eventsFailedCmd(),
	)

	return eventsRoot
}

func eventsListCmd() *cobra.Command {
	var (
		productID string
		userID    string
		kind      string
		unread    bool
		since     time.Duration
		limit     int
		offset    int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List alert events",
		Example: `  # Recent events
  pwctl events list

  # Unread price drops for one user
  pwctl events list --user u1 --kind price_drop --unread

  # Events from the last day
  pwctl events list --since 24h`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			params := &apiclient.ListEventsParams{
				ProductID: productID,
				UserID:    userID,
				Kind:      kind,
				Limit:     limit,
				Offset:    offset,
			}
			if cmd.Flags().Changed("unread") {
				params.Unread = &unread
			}
			if since > 0 {
				params.Since = time.Now().Add(-since)
			}

			c := newClient()
			resp, err := c.ListEvents(context.Background(), params)
			if err != nil {
				return err
			}
			if jsonOutput() {
				return outputJSON(resp)
			}
			if len(resp.Events) == 0 {
				fmt.Println("No events found.")
				return nil
			}
			fmt.Printf("Showing %d of %d events\n\n", len(resp.Events), resp.Total)
			return printEventTable(resp.Events)
		},
	}
	cmd.Flags().StringVar(&productID, "product", "", "product ID filter")
	cmd.Flags().StringVar(&userID, "user", "", "user ID filter")
	cmd.Flags().
		StringVar(&kind, "kind", "", "alert kind filter (price_drop, target_reached, back_in_stock, lowest_ever)")
	cmd.Flags().BoolVar(&unread, "unread", true, "filter by read flag")
	cmd.Flags().DurationVar(&since, "since", 0, "only events newer than this")
	cmd.Flags().IntVar(&limit, "limit", 50, "number of results")
	cmd.Flags().IntVar(&offset, "offset", 0, "result offset")

	return cmd
}

func eventsGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "get <id>",
		Short:   "Show event details",
		Example: `  pwctl events get 9c41e7aa`,
		Args:    cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			c := newClient()
			ev, err := c.GetEvent(context.Background(), args[0])
			if err != nil {
				return err
			}
			if jsonOutput() {
				return outputJSON(ev)
			}
			return printEventDetail(ev)
		},
	}
}

func eventsReadCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "read <id>",
		Short:   "Mark an event as read",
		Example: `  pwctl events read 9c41e7aa`,
		Args:    cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			c := newClient()
			if _, err := c.MarkEventRead(context.Background(), args[0]); err != nil {
				return err
			}
			fmt.Printf("Event %s marked read.\n", args[0])
			return nil
		},
	}
}

func eventsFailedCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "failed",
		Short: "List events whose delivery gave up",
		Long: "List events whose delivery retries are exhausted. These need\n" +
			"operator attention; the dispatcher will not retry them again.",
		Example: `  pwctl events failed
  pwctl events failed --limit 10 --output json`,
		RunE: func(_ *cobra.Command, _ []string) error {
			c := newClient()
			events, err := c.ListDeliveryFailedEvents(context.Background(), limit)
			if err != nil {
				return err
			}
			if jsonOutput() {
				return outputJSON(events)
			}
			if len(events) == 0 {
				fmt.Println("No delivery failures found.")
				return nil
			}
			return printEventTable(events)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "number of results")

	return cmd
}

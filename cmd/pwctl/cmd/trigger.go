package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func triggerCmd() *cobra.Command {
	triggerRoot := &cobra.Command{
		Use:   "trigger",
		Short: "Trigger scheduler work manually",
		Long: "Run scheduler passes on demand instead of waiting for their next\n" +
			"beat. Useful after adding products or when catching up a stopped\n" +
			"instance.",
	}

	triggerRoot.AddCommand(
		triggerDueCmd(),
		triggerPrioritiesCmd(),
		triggerMaintenanceCmd(),
	)

	return triggerRoot
}

func triggerDueCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "due",
		Short:   "Enqueue scrapes for all due products",
		Long:    "Scans for enabled products whose cadence has elapsed and enqueues a scrape per product.",
		Example: `  pwctl trigger due`,
		RunE: func(_ *cobra.Command, _ []string) error {
			c := newClient()
			res, err := c.EnqueueDue(context.Background())
			if err != nil {
				return err
			}
			fmt.Printf("Enqueued %d scrape tasks.\n", res.Count)
			return nil
		},
	}
}

func triggerPrioritiesCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "priorities",
		Short:   "Rescore product priorities",
		Long:    "Recomputes the priority score for every enabled product from its recent price behavior.",
		Example: `  pwctl trigger priorities`,
		RunE: func(_ *cobra.Command, _ []string) error {
			c := newClient()
			res, err := c.RefreshPriorities(context.Background())
			if err != nil {
				return err
			}
			fmt.Printf("Rescored %d products.\n", res.Count)
			return nil
		},
	}
}

func triggerMaintenanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "maintenance",
		Short:   "Enqueue a retention sweep",
		Long:    "Enqueues the retention sweep as a maintenance task. A no-op when one is already pending.",
		Example: `  pwctl trigger maintenance`,
		RunE: func(_ *cobra.Command, _ []string) error {
			c := newClient()
			res, err := c.TriggerMaintenance(context.Background())
			if err != nil {
				return err
			}
			if res.Count == 0 {
				fmt.Println("Retention sweep already pending.")
				return nil
			}
			fmt.Println("Retention sweep enqueued.")
			return nil
		},
	}
}

package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func queueCmd() *cobra.Command {
	queueRoot := &cobra.Command{
		Use:   "queue",
		Short: "Inspect the task queue",
		Long: "Inspect the scrape task queue: per-class backlog depth and the\n" +
			"triage list of tasks that exhausted their retries.",
	}

	queueRoot.AddCommand(
		queueStatsCmd(),
		queueFailuresCmd(),
		queueAckCmd(),
	)

	return queueRoot
}

func queueStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show per-class backlog depth",
		Example: `  pwctl queue stats
  pwctl queue stats --output json`,
		RunE: func(_ *cobra.Command, _ []string) error {
			c := newClient()
			stats, err := c.QueueStats(context.Background())
			if err != nil {
				return err
			}
			if jsonOutput() {
				return outputJSON(stats)
			}
			if len(stats) == 0 {
				fmt.Println("Queue is empty.")
				return nil
			}
			return printQueueStatsTable(stats)
		},
	}
}

func queueFailuresCmd() *cobra.Command {
	var (
		all   bool
		limit int
	)

	cmd := &cobra.Command{
		Use:   "failures",
		Short: "List tasks that exhausted their retries",
		Example: `  # Unacknowledged failures (the triage list)
  pwctl queue failures

  # Everything, including acknowledged
  pwctl queue failures --all --limit 100`,
		RunE: func(_ *cobra.Command, _ []string) error {
			c := newClient()
			failures, err := c.ListTaskFailures(context.Background(), all, limit)
			if err != nil {
				return err
			}
			if jsonOutput() {
				return outputJSON(failures)
			}
			if len(failures) == 0 {
				fmt.Println("No task failures found.")
				return nil
			}
			return printFailureTable(failures)
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "include acknowledged failures")
	cmd.Flags().IntVar(&limit, "limit", 50, "number of results")

	return cmd
}

func queueAckCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "ack <id>",
		Short:   "Acknowledge a task failure",
		Example: `  pwctl queue ack 5b8f2c19`,
		Args:    cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			c := newClient()
			if err := c.AckTaskFailure(context.Background(), args[0]); err != nil {
				return err
			}
			fmt.Printf("Task failure %s acknowledged.\n", args[0])
			return nil
		},
	}
}

// Package cmd implements the pricewatchd commands.
package cmd

import (
	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "pricewatchd",
	Short: "Track product prices across retailers and send alerts",
	Long:  "A price-tracking service that scrapes retailer product pages on a per-product cadence, records price history, evaluates alert rules against each observation, and delivers notifications immediately or in per-user digests.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config.yaml", "config file path")
	rootCmd.AddCommand(versionCommand())
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// Package cmd implements the pwctl CLI commands.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	apiclient "pricewatch/internal/api/client"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "pwctl",
		Short: "CLI client for the pricewatch API",
		Long: "pwctl is a command-line client for the pricewatch API.\n" +
			"It lets you manage tracked products, retailers, and alert rules,\n" +
			"inspect fired alerts and the task queue, and trigger scheduler\n" +
			"work from the terminal.",
	}
)

// Root returns the root cobra command for documentation generation.
func Root() *cobra.Command {
	return rootCmd
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().
		StringVar(&cfgFile, "config", "", "config file (default $HOME/.pwctl.yaml)")
	rootCmd.PersistentFlags().
		String("server", "http://localhost:8080", "API server URL")
	rootCmd.PersistentFlags().
		String("output", "table", "output format (table, json)")

	cobra.CheckErr(viper.BindPFlag("server", rootCmd.PersistentFlags().Lookup("server")))
	cobra.CheckErr(viper.BindPFlag("output", rootCmd.PersistentFlags().Lookup("output")))

	rootCmd.AddCommand(productsCmd())
	rootCmd.AddCommand(retailersCmd())
	rootCmd.AddCommand(rulesCmd())
	rootCmd.AddCommand(eventsCmd())
	rootCmd.AddCommand(queueCmd())
	rootCmd.AddCommand(jobsCmd())
	rootCmd.AddCommand(analyticsCmd())
	rootCmd.AddCommand(triggerCmd())
	rootCmd.AddCommand(versionCmd())
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".pwctl")
	}

	viper.SetEnvPrefix("PW")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func newClient() *apiclient.Client {
	return apiclient.New(viper.GetString("server"))
}

func jsonOutput() bool {
	return viper.GetString("output") == "json"
}

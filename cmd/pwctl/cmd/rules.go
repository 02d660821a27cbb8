package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	apiclient "pricewatch/internal/api/client"
)

func rulesCmd() *cobra.Command {
	rulesRoot := &cobra.Command{
		Use:   "rules",
		Short: "Manage alert rules",
		Long: "Manage alert rules: standing requests to be told about a price\n" +
			"movement. Kinds: price_drop, target_reached (needs --threshold),\n" +
			"back_in_stock, lowest_ever.",
	}

	rulesRoot.AddCommand(
		rulesListCmd(),
		rulesGetCmd(),
		rulesCreateCmd(),
		rulesEnableCmd(),
		rulesDisableCmd(),
		rulesDeleteCmd(),
	)

	return rulesRoot
}

func rulesListCmd() *cobra.Command {
	var (
		productID   string
		userID      string
		enabledOnly bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List alert rules",
		Example: `  # All rules
  pwctl rules list

  # Enabled rules on one product
  pwctl rules list --product 2f6c0cde --enabled

  # One user's rules
  pwctl rules list --user u1 --output json`,
		RunE: func(_ *cobra.Command, _ []string) error {
			c := newClient()
			rules, err := c.ListRules(context.Background(), &apiclient.ListRulesParams{
				ProductID:   productID,
				UserID:      userID,
				EnabledOnly: enabledOnly,
			})
			if err != nil {
				return err
			}
			if jsonOutput() {
				return outputJSON(rules)
			}
			if len(rules) == 0 {
				fmt.Println("No rules found.")
				return nil
			}
			return printRuleTable(rules)
		},
	}
	cmd.Flags().StringVar(&productID, "product", "", "product ID filter")
	cmd.Flags().StringVar(&userID, "user", "", "user ID filter")
	cmd.Flags().BoolVar(&enabledOnly, "enabled", false, "only enabled rules")

	return cmd
}

func rulesGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "get <id>",
		Short:   "Show rule details",
		Example: `  pwctl rules get 7d1a9b32`,
		Args:    cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			c := newClient()
			r, err := c.GetRule(context.Background(), args[0])
			if err != nil {
				return err
			}
			if jsonOutput() {
				return outputJSON(r)
			}
			return printRuleDetail(r)
		},
	}
}

func rulesCreateCmd() *cobra.Command {
	var (
		userID    string
		productID string
		kind      string
		threshold string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an alert rule",
		Example: `  # Alert on any price drop
  pwctl rules create --user u1 --product 2f6c0cde --kind price_drop

  # Alert when the price reaches a target
  pwctl rules create --user u1 --product 2f6c0cde --kind target_reached --threshold 89.99`,
		RunE: func(_ *cobra.Command, _ []string) error {
			if userID == "" || productID == "" || kind == "" {
				return fmt.Errorf("--user, --product and --kind are required")
			}
			c := newClient()
			created, err := c.CreateRule(context.Background(), apiclient.CreateRuleRequest{
				UserID:    userID,
				ProductID: productID,
				Kind:      kind,
				Threshold: threshold,
			})
			if err != nil {
				return err
			}
			if jsonOutput() {
				return outputJSON(created)
			}
			fmt.Printf("Rule created: %s %s (%s)\n", created.Kind, created.ProductID, created.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user the alert belongs to")
	cmd.Flags().StringVar(&productID, "product", "", "product to watch")
	cmd.Flags().
		StringVar(&kind, "kind", "", "alert kind (price_drop, target_reached, back_in_stock, lowest_ever)")
	cmd.Flags().
		StringVar(&threshold, "threshold", "", "target price, decimal string (target_reached only)")

	return cmd
}

func rulesEnableCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "enable <id>",
		Short:   "Enable a rule",
		Example: `  pwctl rules enable 7d1a9b32`,
		Args:    cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return runRuleSetEnabled(args[0], true)
		},
	}
}

func rulesDisableCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "disable <id>",
		Short:   "Disable a rule",
		Example: `  pwctl rules disable 7d1a9b32`,
		Args:    cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return runRuleSetEnabled(args[0], false)
		},
	}
}

func rulesDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "delete <id>",
		Short:   "Delete a rule",
		Example: `  pwctl rules delete 7d1a9b32`,
		Args:    cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			c := newClient()
			if err := c.DeleteRule(context.Background(), args[0]); err != nil {
				return err
			}
			fmt.Printf("Rule %s deleted.\n", args[0])
			return nil
		},
	}
}

func runRuleSetEnabled(id string, enabled bool) error {
	c := newClient()
	if _, err := c.SetRuleEnabled(context.Background(), id, enabled); err != nil {
		return err
	}

	action := "enabled"
	if !enabled {
		action = "disabled"
	}
	fmt.Printf("Rule %s %s.\n", id, action)
	return nil
}

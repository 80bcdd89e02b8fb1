package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openhfr/facility-registry/pkg/webhook"
)

var systemsCmd = &cobra.Command{
	Use:   "systems",
	Short: "Manage webhook subscribers",
}

var systemsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List external systems",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var result struct {
			Systems []webhook.System `json:"systems"`
		}
		if err := newClient().getJSON(apiBase+"/systems", &result); err != nil {
			return fmt.Errorf("failed to list systems: %w", err)
		}
		return renderSystems(result.Systems, result)
	},
}

var systemsGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show an external system",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var sys webhook.System
		if err := newClient().getJSON(apiBase+"/systems/"+args[0], &sys); err != nil {
			return fmt.Errorf("failed to get system: %w", err)
		}
		return renderSystems([]webhook.System{sys}, sys)
	},
}

var (
	sysAPIKey   string
	sysInactive bool
)

var systemsCreateCmd = &cobra.Command{
	Use:   "create <name> <callback-url>",
	Short: "Register an external system; the secret is printed once",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		active := !sysInactive
		in := webhook.CreateSystemInput{Name: args[0], CallbackURL: args[1], APIKey: sysAPIKey, IsActive: &active}
		var sys webhook.SystemWithSecret
		if err := newClient().postJSON(apiBase+"/systems", in, &sys); err != nil {
			return fmt.Errorf("failed to create system: %w", err)
		}
		return printSecret(sys)
	},
}

var (
	updName   string
	updURL    string
	updActive bool
)

var systemsUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Change the name, callback url or active flag of a system",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var in webhook.UpdateSystemInput
		if cmd.Flags().Changed("name") {
			in.Name = &updName
		}
		if cmd.Flags().Changed("callback-url") {
			in.CallbackURL = &updURL
		}
		if cmd.Flags().Changed("active") {
			in.IsActive = &updActive
		}
		var sys webhook.System
		if err := newClient().patchJSON(apiBase+"/systems/"+args[0], in, &sys); err != nil {
			return fmt.Errorf("failed to update system: %w", err)
		}
		return renderSystems([]webhook.System{sys}, sys)
	},
}

var systemsRotateCmd = &cobra.Command{
	Use:   "rotate-secret <id>",
	Short: "Replace the shared secret of a system; the new secret is printed once",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var sys webhook.SystemWithSecret
		if err := newClient().postJSON(apiBase+"/systems/"+args[0]+"/rotate-secret", struct{}{}, &sys); err != nil {
			return fmt.Errorf("failed to rotate secret: %w", err)
		}
		return printSecret(sys)
	},
}

var systemsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete an external system",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := newClient().delete(apiBase + "/systems/" + args[0]); err != nil {
			return fmt.Errorf("failed to delete system: %w", err)
		}
		fmt.Fprintf(stdout, "system %s deleted\n", args[0])
		return nil
	},
}

var receiptsLimit int

var systemsReceiptsCmd = &cobra.Command{
	Use:   "receipts <id>",
	Short: "List inbound events received from a system",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var result struct {
			Receipts []webhook.ReceiptRecord `json:"receipts"`
		}
		path := fmt.Sprintf("%s/systems/%s/receipts?limit=%d", apiBase, args[0], receiptsLimit)
		if err := newClient().getJSON(path, &result); err != nil {
			return fmt.Errorf("failed to list receipts: %w", err)
		}
		return render(result, []string{"ID", "Event", "Timestamp", "Received"}, func() [][]string {
			rows := make([][]string, 0, len(result.Receipts))
			for _, r := range result.Receipts {
				rows = append(rows, []string{truncate(r.ID, 12), r.Event, r.Timestamp, r.ReceivedAt.Format("2006-01-02T15:04:05Z07:00")})
			}
			return rows
		})
	},
}

var testData string

var systemsBroadcastTestCmd = &cobra.Command{
	Use:   "broadcast-test <event>",
	Short: "Send a test event to every active system",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !json.Valid([]byte(testData)) {
			return fmt.Errorf("--data must be valid JSON")
		}
		body := map[string]any{"event": args[0], "data": json.RawMessage(testData)}
		var summary webhook.Summary
		if err := newClient().postJSON(apiBase+"/systems/broadcast-test", body, &summary); err != nil {
			return fmt.Errorf("failed to broadcast: %w", err)
		}
		if err := render(summary, []string{"System", "Success", "Status", "Error"}, func() [][]string {
			rows := make([][]string, 0, len(summary.Results))
			for _, r := range summary.Results {
				rows = append(rows, []string{r.SystemID, fmt.Sprint(r.Success), fmt.Sprint(r.StatusCode), r.Error})
			}
			return rows
		}); err != nil {
			return err
		}
		if !structured() {
			fmt.Fprintf(stdout, "Delivered: %d, failed: %d\n", summary.SuccessCount, summary.FailedCount)
		}
		return nil
	},
}

func printSecret(sys webhook.SystemWithSecret) error {
	if structured() {
		return printOutput(sys)
	}
	if err := renderSystems([]webhook.System{sys.System}, sys); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Secret: %s\n(store it now, it is not shown again)\n", sys.Secret)
	return nil
}

func renderSystems(systems []webhook.System, v any) error {
	return render(v, []string{"ID", "Name", "Callback URL", "API Key", "Active"}, func() [][]string {
		rows := make([][]string, 0, len(systems))
		for _, s := range systems {
			rows = append(rows, []string{s.ID, s.Name, s.CallbackURL, s.APIKey, fmt.Sprint(s.IsActive)})
		}
		return rows
	})
}

func init() {
	systemsCreateCmd.Flags().StringVar(&sysAPIKey, "api-key", "", "API key (generated when empty)")
	systemsCreateCmd.Flags().BoolVar(&sysInactive, "inactive", false, "Register the system without enabling deliveries")

	systemsUpdateCmd.Flags().StringVar(&updName, "name", "", "New name")
	systemsUpdateCmd.Flags().StringVar(&updURL, "callback-url", "", "New callback URL")
	systemsUpdateCmd.Flags().BoolVar(&updActive, "active", true, "Enable or disable deliveries")

	systemsReceiptsCmd.Flags().IntVar(&receiptsLimit, "limit", 50, "Maximum receipts to show")
	systemsBroadcastTestCmd.Flags().StringVar(&testData, "data", "{}", "JSON payload")

	systemsCmd.AddCommand(systemsListCmd, systemsGetCmd, systemsCreateCmd, systemsUpdateCmd,
		systemsRotateCmd, systemsDeleteCmd, systemsReceiptsCmd, systemsBroadcastTestCmd)
	rootCmd.AddCommand(systemsCmd)
}

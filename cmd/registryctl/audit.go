package main

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/openhfr/facility-registry/pkg/audit"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Review the API audit trail",
}

var (
	auditActor    string
	auditResource string
	auditOutcome  string
	auditSince    string
	auditPageSize int
)

var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "List audited API calls, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		q := url.Values{}
		for key, val := range map[string]string{
			"actor":        auditActor,
			"resourceType": auditResource,
			"outcome":      auditOutcome,
			"since":        auditSince,
		} {
			if val != "" {
				q.Set(key, val)
			}
		}
		if auditPageSize > 0 {
			q.Set("pageSize", fmt.Sprint(auditPageSize))
		}
		path := apiBase + "/audit/events"
		if len(q) > 0 {
			path += "?" + q.Encode()
		}

		var result audit.EventList
		if err := newClient().getJSON(path, &result); err != nil {
			return fmt.Errorf("failed to list audit events: %w", err)
		}
		if err := render(result, []string{"Time", "Actor", "Action", "Resource", "Outcome", "Status"}, func() [][]string {
			rows := make([][]string, 0, len(result.Events))
			for _, e := range result.Events {
				resource := e.ResourceType
				if e.ResourceID != "" {
					resource += "/" + e.ResourceID
				}
				rows = append(rows, []string{e.CreatedAt, e.Actor, e.Action, resource, e.Outcome, fmt.Sprint(e.StatusCode)})
			}
			return rows
		}); err != nil {
			return err
		}
		if !structured() {
			fmt.Fprintf(stdout, "Total: %d\n", result.TotalSize)
		}
		return nil
	},
}

func init() {
	auditListCmd.Flags().StringVar(&auditActor, "actor", "", "Filter by actor")
	auditListCmd.Flags().StringVar(&auditResource, "resource", "", "Filter by resource type (units, requests, ...)")
	auditListCmd.Flags().StringVar(&auditOutcome, "outcome", "", "Filter by outcome: success, denied, failure")
	auditListCmd.Flags().StringVar(&auditSince, "since", "", "Only events at or after this RFC3339 time")
	auditListCmd.Flags().IntVar(&auditPageSize, "page-size", 0, "Events per page (server default 20)")

	auditCmd.AddCommand(auditListCmd)
	rootCmd.AddCommand(auditCmd)
}

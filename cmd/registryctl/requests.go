package main

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"github.com/openhfr/facility-registry/pkg/workflow"
)

var requestsCmd = &cobra.Command{
	Use:     "requests",
	Aliases: []string{"req"},
	Short:   "Submit and review facility requests",
}

var (
	listStatus      string
	listType        string
	listSubmittedBy string
	listDistrict    string
	listPageToken   string
)

var requestsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List facility requests, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		q := url.Values{}
		for key, val := range map[string]string{
			"status":      listStatus,
			"type":        listType,
			"submittedBy": listSubmittedBy,
			"districtId":  listDistrict,
			"pageToken":   listPageToken,
		} {
			if val != "" {
				q.Set(key, val)
			}
		}
		path := apiBase + "/requests"
		if len(q) > 0 {
			path += "?" + q.Encode()
		}

		var result workflow.FacilityRequestList
		if err := newClient().getJSON(path, &result); err != nil {
			return fmt.Errorf("failed to list requests: %w", err)
		}
		if err := renderRequests(result.Requests, result); err != nil {
			return err
		}
		if !structured() {
			fmt.Fprintf(stdout, "Total: %d\n", result.TotalSize)
			if result.NextPageToken != "" {
				fmt.Fprintf(stdout, "Next page: --page-token %s\n", result.NextPageToken)
			}
		}
		return nil
	},
}

var requestsGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show a facility request",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var req workflow.FacilityRequest
		if err := newClient().getJSON(apiBase+"/requests/"+args[0], &req); err != nil {
			return fmt.Errorf("failed to get request: %w", err)
		}
		return renderRequests([]workflow.FacilityRequest{req}, req)
	},
}

var requestsHistoryCmd = &cobra.Command{
	Use:   "history <id>",
	Short: "Show the status history of a request, oldest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var result struct {
			History []workflow.StatusEntry `json:"history"`
		}
		if err := newClient().getJSON(apiBase+"/requests/"+args[0]+"/history", &result); err != nil {
			return fmt.Errorf("failed to get history: %w", err)
		}
		return render(result, []string{"Status", "By", "Comments", "At"}, func() [][]string {
			rows := make([][]string, 0, len(result.History))
			for _, h := range result.History {
				by := h.OwnerID
				switch {
				case h.ApprovedBy != nil:
					by = *h.ApprovedBy
				case h.RejectedBy != nil:
					by = *h.RejectedBy
				}
				rows = append(rows, []string{string(h.Status), by, truncate(h.Comments, 40), h.CreatedAt})
			}
			return rows
		})
	},
}

var (
	submitName      string
	submitType      string
	submitSubcounty uint
	submitFacility  uint
	submitReason    string
	submitFType     string
	submitOwnership string
	submitEmail     string
	submitPhone     string
	submitAddress   string
)

var requestsSubmitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit an addition, update or deactivation request",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := workflow.ParseRequestType(submitType)
		if err != nil {
			return err
		}
		in := workflow.SubmitInput{RequestType: rt, Reason: submitReason}
		in.Name = submitName
		in.FacilityType = submitFType
		in.Ownership = submitOwnership
		in.Email = submitEmail
		in.Phone = submitPhone
		in.Address = submitAddress
		if cmd.Flags().Changed("subcounty") {
			in.SubcountyID = &submitSubcounty
		}
		if cmd.Flags().Changed("facility") {
			in.FacilityID = &submitFacility
		}

		var req workflow.FacilityRequest
		if err := newClient().postJSON(apiBase+"/requests", in, &req); err != nil {
			return fmt.Errorf("failed to submit request: %w", err)
		}
		return renderRequests([]workflow.FacilityRequest{req}, req)
	},
}

var decisionComments string

// decisionCmd builds approve and reject.
func decisionCmd(verb, short string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   verb + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var req workflow.FacilityRequest
			body := map[string]string{"comments": decisionComments}
			if err := newClient().postJSON(apiBase+"/requests/"+args[0]+"/"+verb, body, &req); err != nil {
				return fmt.Errorf("failed to %s request: %w", verb, err)
			}
			return renderRequests([]workflow.FacilityRequest{req}, req)
		},
	}
	cmd.Flags().StringVar(&decisionComments, "comments", "", "Comments recorded in the request history")
	return cmd
}

var requestsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete an unpublished request and its history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := newClient().delete(apiBase + "/requests/" + args[0]); err != nil {
			return fmt.Errorf("failed to delete request: %w", err)
		}
		fmt.Fprintf(stdout, "request %s deleted\n", args[0])
		return nil
	},
}

func renderRequests(reqs []workflow.FacilityRequest, v any) error {
	return render(v, []string{"ID", "Type", "Status", "Name", "Subcounty", "Identifier", "Submitted By"}, func() [][]string {
		rows := make([][]string, 0, len(reqs))
		for _, r := range reqs {
			ident := r.RegistryIdentifier
			if ident == "" {
				ident = "-"
			}
			rows = append(rows, []string{
				truncate(r.ID, 12),
				string(r.RequestType),
				strings.ReplaceAll(string(r.Status), "_", " "),
				truncate(r.Name, 32),
				uintStr(r.SubcountyID),
				ident,
				r.SubmittedBy,
			})
		}
		return rows
	})
}

func init() {
	requestsListCmd.Flags().StringVar(&listStatus, "status", "", "Filter by status")
	requestsListCmd.Flags().StringVar(&listType, "type", "", "Filter by request type")
	requestsListCmd.Flags().StringVar(&listSubmittedBy, "submitted-by", "", "Filter by submitter")
	requestsListCmd.Flags().StringVar(&listDistrict, "district", "", "Filter by district unit id")
	requestsListCmd.Flags().StringVar(&listPageToken, "page-token", "", "Continue from a previous page")

	f := requestsSubmitCmd.Flags()
	f.StringVar(&submitType, "type", "addition", "Request type: addition, update, deactivation")
	f.StringVar(&submitName, "name", "", "Facility name")
	f.UintVar(&submitSubcounty, "subcounty", 0, "Subcounty unit id the facility belongs to")
	f.UintVar(&submitFacility, "facility", 0, "Facility unit id (update and deactivation)")
	f.StringVar(&submitReason, "reason", "", "Reason (required for deactivation)")
	f.StringVar(&submitFType, "facility-type", "", "Facility type")
	f.StringVar(&submitOwnership, "ownership", "", "Ownership")
	f.StringVar(&submitEmail, "email", "", "Contact email")
	f.StringVar(&submitPhone, "phone", "", "Contact phone")
	f.StringVar(&submitAddress, "address", "", "Physical address")

	requestsCmd.AddCommand(requestsListCmd, requestsGetCmd, requestsHistoryCmd, requestsSubmitCmd,
		decisionCmd("approve", "Advance a request to its next status"),
		decisionCmd("reject", "Reject a request"),
		requestsDeleteCmd)
	rootCmd.AddCommand(requestsCmd)
}

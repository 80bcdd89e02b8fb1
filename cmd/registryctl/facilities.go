package main

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/openhfr/facility-registry/pkg/registry"
)

var facilitiesCmd = &cobra.Command{
	Use:     "facilities",
	Aliases: []string{"fac"},
	Short:   "Browse published facilities",
}

var (
	facName      string
	facRegion    string
	facDistrict  string
	facSubcounty string
)

var facilitiesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List published facilities",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		q := url.Values{}
		for key, val := range map[string]string{
			"name":        facName,
			"regionId":    facRegion,
			"districtId":  facDistrict,
			"subcountyId": facSubcounty,
		} {
			if val != "" {
				q.Set(key, val)
			}
		}
		path := apiBase + "/facilities"
		if len(q) > 0 {
			path += "?" + q.Encode()
		}
		var result registry.FacilityList
		if err := newClient().getJSON(path, &result); err != nil {
			return fmt.Errorf("failed to list facilities: %w", err)
		}
		return renderFacilities(result.Facilities, result)
	},
}

var byUnit bool

var facilitiesGetCmd = &cobra.Command{
	Use:   "get <identifier>",
	Short: "Show a facility by registry identifier, or by unit id with --unit",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := apiBase + "/facilities/" + url.PathEscape(args[0])
		if byUnit {
			path = apiBase + "/facilities/by-unit/" + url.PathEscape(args[0])
		}
		var f registry.Facility
		if err := newClient().getJSON(path, &f); err != nil {
			return fmt.Errorf("failed to get facility: %w", err)
		}
		return renderFacilities([]registry.Facility{f}, f)
	},
}

func renderFacilities(facs []registry.Facility, v any) error {
	return render(v, []string{"Identifier", "Name", "Unit", "Region", "District", "Subcounty"}, func() [][]string {
		rows := make([][]string, 0, len(facs))
		for _, f := range facs {
			rows = append(rows, []string{
				f.Identifier,
				truncate(f.Name, 40),
				fmt.Sprint(f.FacilityID),
				uintStr(f.RegionID),
				uintStr(f.DistrictID),
				uintStr(f.SubcountyID),
			})
		}
		return rows
	})
}

func init() {
	facilitiesListCmd.Flags().StringVar(&facName, "name", "", "Filter by name")
	facilitiesListCmd.Flags().StringVar(&facRegion, "region", "", "Filter by region unit id")
	facilitiesListCmd.Flags().StringVar(&facDistrict, "district", "", "Filter by district unit id")
	facilitiesListCmd.Flags().StringVar(&facSubcounty, "subcounty", "", "Filter by subcounty unit id")
	facilitiesGetCmd.Flags().BoolVar(&byUnit, "unit", false, "Look up by facility unit id")

	facilitiesCmd.AddCommand(facilitiesListCmd, facilitiesGetCmd)
	rootCmd.AddCommand(facilitiesCmd)
}

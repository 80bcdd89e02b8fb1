package main

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/openhfr/facility-registry/pkg/hierarchy"
)

var unitsCmd = &cobra.Command{
	Use:   "units",
	Short: "Manage administrative units",
}

var (
	unitsLevel  string
	unitsParent string
	unitsName   string
	unitsRoots  bool
)

var unitsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List units",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		q := url.Values{}
		if unitsLevel != "" {
			q.Set("levelId", unitsLevel)
		}
		if unitsParent != "" {
			q.Set("parentId", unitsParent)
		}
		if unitsName != "" {
			q.Set("name", unitsName)
		}
		if unitsRoots {
			q.Set("roots", "true")
		}
		path := apiBase + "/units"
		if len(q) > 0 {
			path += "?" + q.Encode()
		}
		var result hierarchy.UnitList
		if err := newClient().getJSON(path, &result); err != nil {
			return fmt.Errorf("failed to list units: %w", err)
		}
		return renderUnits(result)
	},
}

var unitsGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show a unit",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var u hierarchy.Unit
		if err := newClient().getJSON(apiBase+"/units/"+args[0], &u); err != nil {
			return fmt.Errorf("failed to get unit: %w", err)
		}
		return renderUnits(hierarchy.UnitList{Units: []hierarchy.Unit{u}})
	},
}

// treeCmd builds the children, subtree and ancestors readers.
func treeCmd(relation, short string) *cobra.Command {
	return &cobra.Command{
		Use:   relation + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var result hierarchy.UnitList
			if err := newClient().getJSON(apiBase+"/units/"+args[0]+"/"+relation, &result); err != nil {
				return fmt.Errorf("failed to get %s: %w", relation, err)
			}
			return renderUnits(result)
		},
	}
}

var (
	createLevel  uint
	createParent uint
	createCode   string
)

var unitsCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a unit",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		in := hierarchy.CreateUnitInput{Name: args[0], LevelID: createLevel}
		if cmd.Flags().Changed("parent") {
			in.ParentID = &createParent
		}
		if createCode != "" {
			in.Code = &createCode
		}
		var u hierarchy.Unit
		if err := newClient().postJSON(apiBase+"/units", in, &u); err != nil {
			return fmt.Errorf("failed to create unit: %w", err)
		}
		return renderUnits(hierarchy.UnitList{Units: []hierarchy.Unit{u}})
	},
}

var moveToRoot bool

var unitsMoveCmd = &cobra.Command{
	Use:   "move <id> [new-parent-id]",
	Short: "Move a unit and its subtree under a new parent",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		body := map[string]*uint{"parentId": nil}
		switch {
		case len(args) == 2:
			ids, err := parseIDs(args[1:])
			if err != nil {
				return err
			}
			body["parentId"] = &ids[0]
		case !moveToRoot:
			return fmt.Errorf("give a new parent id or --root")
		}
		var u hierarchy.Unit
		if err := newClient().postJSON(apiBase+"/units/"+args[0]+"/move", body, &u); err != nil {
			return fmt.Errorf("failed to move unit: %w", err)
		}
		return renderUnits(hierarchy.UnitList{Units: []hierarchy.Unit{u}})
	},
}

var deleteCascade bool

var unitsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a unit",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := apiBase + "/units/" + args[0]
		if deleteCascade {
			path += "?cascade=true"
		}
		var result struct {
			Deleted int64 `json:"deleted"`
		}
		if err := newClient().do("DELETE", path, nil, &result); err != nil {
			return fmt.Errorf("failed to delete unit: %w", err)
		}
		fmt.Fprintf(stdout, "%d unit(s) deleted\n", result.Deleted)
		return nil
	},
}

var rebuildPathsCmd = &cobra.Command{
	Use:   "rebuild-paths",
	Short: "Recompute every materialized path from parent links",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var result struct {
			Changed int `json:"changed"`
		}
		if err := newClient().postJSON(apiBase+"/paths/rebuild", struct{}{}, &result); err != nil {
			return fmt.Errorf("failed to rebuild paths: %w", err)
		}
		fmt.Fprintf(stdout, "%d path(s) changed\n", result.Changed)
		return nil
	},
}

func renderUnits(result hierarchy.UnitList) error {
	return render(result, []string{"ID", "Name", "Level", "Parent", "Path"}, func() [][]string {
		rows := make([][]string, 0, len(result.Units))
		for _, u := range result.Units {
			rows = append(rows, []string{fmt.Sprint(u.ID), u.Name, fmt.Sprint(u.LevelID), uintStr(u.ParentID), u.MaterializedPath})
		}
		return rows
	})
}

func init() {
	unitsListCmd.Flags().StringVar(&unitsLevel, "level", "", "Filter by level id")
	unitsListCmd.Flags().StringVar(&unitsParent, "parent", "", "Filter by parent id")
	unitsListCmd.Flags().StringVar(&unitsName, "name", "", "Filter by name")
	unitsListCmd.Flags().BoolVar(&unitsRoots, "roots", false, "Only units without a parent")

	unitsCreateCmd.Flags().UintVar(&createLevel, "level", 0, "Level id (required)")
	unitsCreateCmd.Flags().UintVar(&createParent, "parent", 0, "Parent unit id")
	unitsCreateCmd.Flags().StringVar(&createCode, "code", "", "Optional unit code")
	_ = unitsCreateCmd.MarkFlagRequired("level")

	unitsMoveCmd.Flags().BoolVar(&moveToRoot, "root", false, "Move the unit to the top of the tree")
	unitsDeleteCmd.Flags().BoolVar(&deleteCascade, "cascade", false, "Also delete every descendant")

	unitsCmd.AddCommand(unitsListCmd, unitsGetCmd, unitsCreateCmd, unitsMoveCmd, unitsDeleteCmd,
		treeCmd("children", "List direct children of a unit"),
		treeCmd("subtree", "List a unit and all of its descendants"),
		treeCmd("ancestors", "List the ancestors of a unit, root first"),
		rebuildPathsCmd)
	rootCmd.AddCommand(unitsCmd)
}

package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/openhfr/facility-registry/pkg/hierarchy"
)

type levelList struct {
	Levels []hierarchy.Level `json:"levels"`
}

var levelsCmd = &cobra.Command{
	Use:   "levels",
	Short: "Manage administrative levels",
}

var levelsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List levels in sequence order",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var result levelList
		if err := newClient().getJSON(apiBase+"/levels", &result); err != nil {
			return fmt.Errorf("failed to list levels: %w", err)
		}
		return renderLevels(result)
	},
}

var levelsCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Append a level below the current lowest one",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var lvl hierarchy.Level
		if err := newClient().postJSON(apiBase+"/levels", map[string]string{"name": args[0]}, &lvl); err != nil {
			return fmt.Errorf("failed to create level: %w", err)
		}
		return renderLevels(levelList{Levels: []hierarchy.Level{lvl}})
	},
}

var levelsRenameCmd = &cobra.Command{
	Use:   "rename <id> <name>",
	Short: "Rename a level",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var lvl hierarchy.Level
		if err := newClient().patchJSON(apiBase+"/levels/"+args[0], map[string]string{"name": args[1]}, &lvl); err != nil {
			return fmt.Errorf("failed to rename level: %w", err)
		}
		return renderLevels(levelList{Levels: []hierarchy.Level{lvl}})
	},
}

var levelsReorderCmd = &cobra.Command{
	Use:   "reorder <id>...",
	Short: "Set the level order, top level first",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := parseIDs(args)
		if err != nil {
			return err
		}
		var result levelList
		if err := newClient().putJSON(apiBase+"/levels/order", map[string][]uint{"levelIds": ids}, &result); err != nil {
			return fmt.Errorf("failed to reorder levels: %w", err)
		}
		return renderLevels(result)
	},
}

var levelsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete an unused level",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := newClient().delete(apiBase + "/levels/" + args[0]); err != nil {
			return fmt.Errorf("failed to delete level: %w", err)
		}
		fmt.Fprintf(stdout, "level %s deleted\n", args[0])
		return nil
	},
}

func renderLevels(result levelList) error {
	return render(result, []string{"ID", "Sequence", "Name"}, func() [][]string {
		rows := make([][]string, 0, len(result.Levels))
		for _, l := range result.Levels {
			rows = append(rows, []string{fmt.Sprint(l.ID), strconv.Itoa(l.SequenceNumber), l.Name})
		}
		return rows
	})
}

func parseIDs(args []string) ([]uint, error) {
	ids := make([]uint, len(args))
	for i, a := range args {
		v, err := strconv.ParseUint(a, 10, 0)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q", a)
		}
		ids[i] = uint(v)
	}
	return ids, nil
}

func init() {
	levelsCmd.AddCommand(levelsListCmd, levelsCreateCmd, levelsRenameCmd, levelsReorderCmd, levelsDeleteCmd)
	rootCmd.AddCommand(levelsCmd)
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check server liveness and database readiness",
	Long: `health probes /healthz and /readyz and exits non-zero when either fails,
so it can serve as a container health check.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newClient()
		failed := 0
		for _, probe := range []string{"/healthz", "/readyz"} {
			status := "ok"
			if err := client.getJSON(probe, nil); err != nil {
				status = err.Error()
				failed++
			}
			fmt.Fprintf(stdout, "%-8s %s\n", probe, status)
		}
		if failed > 0 {
			return fmt.Errorf("%d of 2 health probes failed", failed)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}

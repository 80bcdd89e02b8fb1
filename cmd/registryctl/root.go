package main

import (
	"os"

	"github.com/spf13/cobra"
)

const apiBase = "/api/v1"

var (
	serverURL string
	outputFmt string
	asUser    string
	asRole    string
)

var rootCmd = &cobra.Command{
	Use:   "registryctl",
	Short: "CLI for the facility registry server",
	Long: `registryctl manages the administrative hierarchy, facility requests,
published facilities and webhook subscribers of a facility registry server.

The caller identity is sent in the X-Remote-User and X-Remote-Role headers,
so the server must sit behind a proxy that sets them or trust the CLI directly.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", envOrDefault("REGISTRY_SERVER", "http://localhost:8080"), "Registry server URL")
	rootCmd.PersistentFlags().StringVarP(&outputFmt, "output", "o", "table", "Output format: table, json, yaml")
	rootCmd.PersistentFlags().StringVar(&asUser, "user", os.Getenv("REGISTRY_USER"), "User to act as")
	rootCmd.PersistentFlags().StringVar(&asRole, "role", os.Getenv("REGISTRY_ROLE"), "Role to act as")
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

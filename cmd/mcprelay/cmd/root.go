// Package cmd provides the CLI commands for mcprelay.
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	destinationsPath string
	secretsPath      string
	auditDir         string
)

var rootCmd = &cobra.Command{
	Use:   "mcprelay",
	Short: "mcprelay - MCP reverse proxy",
	Long: `mcprelay fronts one or more Model Context Protocol servers behind a
single address, speaking the legacy SSE transport, the Streamable HTTP
transport, and a stdio subprocess bridge, with a structured audit log
and a pluggable content scanner shared across all three.

Quick start:
  1. Describe your upstream servers in destinations.yaml
  2. Run: mcprelay serve --destinations destinations.yaml

Commands:
  serve       Run the proxy
  version     Print version information`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&destinationsPath, "destinations", "destinations.yaml", "path to the destination registry YAML file")
	rootCmd.PersistentFlags().StringVar(&secretsPath, "secrets", "", "path to the optional per-destination secrets overlay YAML file")
	rootCmd.PersistentFlags().StringVar(&auditDir, "audit-dir", "./audit-logs", "directory the audit log is written to")

	// MCPRELAY_-prefixed environment variables override the flags above,
	// so a container deployment never has to bake paths into an image.
	viper.SetEnvPrefix("mcprelay")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	_ = viper.BindPFlag("destinations", rootCmd.PersistentFlags().Lookup("destinations"))
	_ = viper.BindPFlag("secrets", rootCmd.PersistentFlags().Lookup("secrets"))
	_ = viper.BindPFlag("audit-dir", rootCmd.PersistentFlags().Lookup("audit-dir"))

	cobra.OnInitialize(func() {
		destinationsPath = viper.GetString("destinations")
		secretsPath = viper.GetString("secrets")
		auditDir = viper.GetString("audit-dir")
	})
}

package main

import (
	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/Dashboard/backend/internal/infrastructure/config"
)

var cfgFile string

// rootCmd serves when called without a subcommand.
var rootCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Dashboard widget engine",
	Long: `Runs user-authored dashboard widgets in isolated script runtimes and
serves them over HTTP, together with the network bridge they fetch through.

Commands:
  dashboard serve                 Start the server (default)
  dashboard check <file>          Compile a widget source and report errors
  dashboard render <file>         Render a widget once and print its HTML`,
	SilenceUsage: true,
	RunE:         runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "TOML config file (default DASHBOARD_CONFIG)")
}

func loadConfig() (*config.Config, error) {
	return config.LoadFile(cfgFile)
}

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time via -ldflags "-X github.com/bashclaw/bashclaw/cmd.Version=v1.0.0"
var Version = "dev"

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "bashclaw",
	Short: "bashclaw — multi-agent conversational runtime",
	Long:  "bashclaw: a single-binary gateway that runs one or more LLM-backed agents over a session store, hook chain, cron scheduler, and chat channels, fronted by a small HTTP surface.",
	Run: func(cmd *cobra.Command, args []string) {
		runGateway()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: config.json or $BASHCLAW_CONFIG)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(gatewayCmd())
	rootCmd.AddCommand(toolCmd())
	rootCmd.AddCommand(hooksBridgeCmd())
	rootCmd.AddCommand(cronCmd())
	rootCmd.AddCommand(versionCmd())
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("bashclaw " + Version)
		},
	}
}

func resolveConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	if v := os.Getenv("BASHCLAW_CONFIG"); v != "" {
		return v
	}
	return "config.json"
}

func resolveStateDir() string {
	if v := os.Getenv("BASHCLAW_STATE_DIR"); v != "" {
		return v
	}
	return "state"
}

// Execute runs the root cobra command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// Package cli implements the waharvest command surface.
package cli

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	// version can be overridden at build time via:
	// go build -ldflags "-X github.com/waharvest/waharvest/internal/cli.version=1.2.3"
	version = "0.4.1"
	logo    = "\n" +
		"                 _                          _\n" +
		" __      ____ _ | |__   __ _ _ ____   _____| |_\n" +
		" \\ \\ /\\ / / _` || '_ \\ / _` | '__\\ \\ / / _ \\ __|\n" +
		"  \\ V  V / (_| || | | | (_| | |   \\ V /  __/ |_\n" +
		"   \\_/\\_/ \\__,_||_| |_|\\__,_|_|    \\_/ \\___|\\__|\n"
)

var rootCmd = &cobra.Command{
	Use:   "waharvest",
	Short: "waharvest - companion-account link harvester",
	Long:  color.CyanString(logo) + "\nAutomates companion chat accounts: link harvesting, group joins, auto-replies.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(accountCmd)
	rootCmd.AddCommand(pairCmd)
	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(queueCmd)
	rootCmd.AddCommand(linksCmd)
	rootCmd.AddCommand(replyCmd)
	rootCmd.AddCommand(sendCmd)
}

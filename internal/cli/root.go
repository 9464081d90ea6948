package cli

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	// version can be overridden at build time via:
	// go build -ldflags "-X github.com/KafClaw/rpcdash/internal/cli.version=1.2.3"
	version = "1.0.0"
	logo    = "\n" +
		"  _ __ _ __   ___ __| | __ _ ___| |__\n" +
		" | '__| '_ \\ / __/ _` |/ _` / __| '_ \\\n" +
		" | |  | |_) | (_| (_| | (_| \\__ \\ | | |\n" +
		" |_|  | .__/ \\___\\__,_|\\__,_|___/_| |_|\n" +
		"      |_|\n"
)

var rootCmd = &cobra.Command{
	Use:   "rpcdash",
	Short: "rpcdash - rich presence dashboard",
	Long:  color.CyanString(logo) + "\nA mobile-friendly dashboard that drives your account's rich presence.",
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
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(logsCmd)
}

func printHeader(cmd *cobra.Command, title string) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, color.MagentaString(title))
	fmt.Fprintln(out, strings.Repeat("─", 40))
}

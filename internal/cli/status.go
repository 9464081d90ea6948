package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/KafClaw/rpcdash/internal/config"
	"github.com/KafClaw/rpcdash/internal/timeline"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		printHeader(cmd, "🏷️ rpcdash Version")
		fmt.Fprintf(cmd.OutOrStdout(), "Version: %s\n", version)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show local setup and last session",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		printHeader(cmd, "📊 rpcdash Status")
		fmt.Fprintf(out, "Version:   %s\n", version)
		fmt.Fprintf(out, "Dashboard: http://%s\n", dashboardHost(cfg))

		if _, err := os.Stat(cfg.Paths.ConfigFile); err == nil {
			fmt.Fprintf(out, "Config:    ✓ Found (%s)\n", cfg.Paths.ConfigFile)
		} else {
			fmt.Fprintf(out, "Config:    ✗ Not found (%s, created on first serve)\n", cfg.Paths.ConfigFile)
		}
		if cfg.Discord.HasToken() {
			fmt.Fprintln(out, "Token:     ✓ Found")
		} else {
			fmt.Fprintln(out, "Token:     ✗ Not found (set DISCORD_TOKEN in .env)")
		}
		if cfg.Kafka.Enabled() {
			fmt.Fprintf(out, "Kafka:     ✓ %s → %s\n", cfg.Kafka.Brokers, cfg.Kafka.Topic)
		} else {
			fmt.Fprintln(out, "Kafka:     ✗ Disabled")
		}

		if _, err := os.Stat(cfg.Paths.TimelineDB); err != nil {
			fmt.Fprintln(out, "Session:   never started")
			return nil
		}
		tl, err := timeline.NewTimelineService(cfg.Paths.TimelineDB)
		if err != nil {
			return err
		}
		defer tl.Close()
		if who, err := tl.GetSetting(timeline.SettingLastIdentity); err == nil {
			fmt.Fprintf(out, "Last user: %s\n", who)
		} else {
			fmt.Fprintln(out, "Last user: none")
		}
		if at, err := tl.GetSetting(timeline.SettingLastSyncAt); err == nil {
			fmt.Fprintf(out, "Last sync: %s\n", at)
		}
		return nil
	},
}

func dashboardHost(cfg *config.Settings) string {
	host := cfg.Gateway.Host
	if host == "" || host == "0.0.0.0" {
		host = "localhost"
	}
	return fmt.Sprintf("%s:%d", host, cfg.Gateway.Port)
}

package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/KafClaw/rpcdash/internal/config"
	"github.com/KafClaw/rpcdash/internal/eventsink"
)

var sinkTimeout time.Duration

var sinkCmd = &cobra.Command{
	Use:   "sink",
	Short: "Inspect the Kafka event sink",
}

var sinkCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Check broker connectivity and topic visibility",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		printHeader(cmd, "🦈 Event Sink Check")
		if !cfg.Kafka.Enabled() {
			fmt.Fprintln(out, "Kafka: ✗ Disabled (set RPCDASH_KAFKA_BROKERS)")
			return nil
		}

		rows := eventsink.Check(context.Background(), cfg.Kafka.Brokers, cfg.Kafka.Topic, sinkTimeout)
		for _, r := range rows {
			status := r.Status
			switch r.Status {
			case eventsink.OK:
				status = color.GreenString(r.Status)
			case eventsink.WARN:
				status = color.YellowString(r.Status)
			case eventsink.FAIL:
				status = color.RedString(r.Status)
			}
			fmt.Fprintf(out, "%-4s %-24s %s\n", status, r.Target, r.Detail)
			if r.Hint != "" {
				fmt.Fprintf(out, "     ↳ %s\n", r.Hint)
			}
		}
		if !eventsink.Healthy(rows) {
			return fmt.Errorf("event sink check failed")
		}
		return nil
	},
}

func init() {
	sinkCheckCmd.Flags().DurationVar(&sinkTimeout, "timeout", 5*time.Second, "Per-broker timeout")
	sinkCmd.AddCommand(sinkCheckCmd)
	rootCmd.AddCommand(sinkCmd)
}

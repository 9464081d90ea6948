package cli

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/KafClaw/rpcdash/internal/config"
	"github.com/KafClaw/rpcdash/internal/timeline"
)

var (
	logsLimit int
	logsKind  string
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Print recent dashboard log lines",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if _, err := os.Stat(cfg.Paths.TimelineDB); err != nil {
			fmt.Fprintln(out, "No activity recorded yet.")
			return nil
		}
		tl, err := timeline.NewTimelineService(cfg.Paths.TimelineDB)
		if err != nil {
			return err
		}
		defer tl.Close()

		events, err := tl.GetEvents(timeline.FilterArgs{Kind: logsKind, Limit: logsLimit})
		if err != nil {
			return err
		}
		for i := len(events) - 1; i >= 0; i-- {
			e := events[i]
			line := fmt.Sprintf("[%s] %s", e.Timestamp.Local().Format("2006-01-02 15:04:05"), e.Message)
			switch e.Kind {
			case timeline.KindSuccess:
				line = color.GreenString(line)
			case timeline.KindError:
				line = color.RedString(line)
			}
			fmt.Fprintln(out, line)
		}
		return nil
	},
}

func init() {
	logsCmd.Flags().IntVar(&logsLimit, "limit", 20, "Number of lines to print")
	logsCmd.Flags().StringVar(&logsKind, "kind", "", "Only show info, success or error lines")
}

package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/skip2/go-qrcode"
	"github.com/spf13/cobra"

	"github.com/KafClaw/rpcdash/internal/bus"
	"github.com/KafClaw/rpcdash/internal/config"
	"github.com/KafClaw/rpcdash/internal/discord"
	"github.com/KafClaw/rpcdash/internal/eventsink"
	"github.com/KafClaw/rpcdash/internal/gateway"
	"github.com/KafClaw/rpcdash/internal/guard"
	"github.com/KafClaw/rpcdash/internal/rpcconfig"
	"github.com/KafClaw/rpcdash/internal/timeline"
)

// timelineRetention bounds how long dashboard log lines are kept.
const timelineRetention = 30 * 24 * time.Hour

var serveQR bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the dashboard server",
	RunE:  runServe,
}

var serveSignalNotify = signal.Notify
var serveSignalStop = signal.Stop

func init() {
	serveCmd.Flags().BoolVar(&serveQR, "qr", false, "Print a QR code of the dashboard URL")
}

func runServe(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	printHeader(cmd, "🎮 rpcdash Server")

	// 1. Settings and presence record
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	store, err := rpcconfig.Open(cfg.Paths.ConfigFile)
	if err != nil {
		return err
	}

	// 2. Activity log
	timeSvc, err := timeline.NewTimelineService(cfg.Paths.TimelineDB)
	if err != nil {
		return err
	}
	defer timeSvc.Close()

	// 3. Event sink
	var sink eventsink.Sink = eventsink.Nop{}
	if cfg.Kafka.Enabled() {
		sink = eventsink.NewKafka(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		fmt.Fprintf(out, "📡 Mirroring events to Kafka topic %s\n", cfg.Kafka.Topic)
	}
	defer sink.Close()

	// 4. Session and gateway
	msgBus := bus.NewMessageBus()
	client := discord.NewClient(gateway.HookSession(discord.Options{GatewayURL: cfg.Discord.GatewayURL}, msgBus))
	srv, err := gateway.New(gateway.Options{
		Store:    store,
		Session:  client,
		Guard:    guard.New(cfg.Gateway.Password),
		Bus:      msgBus,
		Timeline: timeSvc,
		Sink:     sink,
		Token:    cfg.Discord.Token,
		Version:  version,
		Console:  out,
	})
	if err != nil {
		return err
	}

	// 5. Start everything
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	serveSignalNotify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer serveSignalStop(sigChan)

	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		if err := srv.Run(ctx); err != nil {
			slog.Error("Dispatcher stopped", "error", err)
		}
	}()
	go pruneTimeline(ctx, timeSvc)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.ListenAndServe(ctx, cfg.Gateway.Addr())
	}()

	url := "http://" + dashboardHost(cfg)
	fmt.Fprintln(out, color.MagentaString("\n  ✨ Mobile RPC Dashboard running at %s\n", url))
	if serveQR {
		printQR(cmd, url)
	}

	if cfg.Discord.HasToken() {
		loginCtx, loginCancel := context.WithTimeout(ctx, 15*time.Second)
		if err := client.Login(loginCtx, cfg.Discord.Token); err != nil {
			fmt.Fprintf(out, "⚠️ Auto-login failed: %v\n", err)
		}
		loginCancel()
	} else {
		fmt.Fprintln(out, "⚠️ DISCORD_TOKEN not set, login disabled")
	}

	var result error
	select {
	case <-sigChan:
		fmt.Fprintln(out, "\nShutting down...")
		cancel()
		result = <-serveErr
	case result = <-serveErr:
		cancel()
	}
	<-runDone
	_ = client.Logout()
	return result
}

func printQR(cmd *cobra.Command, url string) {
	qr, err := qrcode.New(url, qrcode.Medium)
	if err != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "⚠️ QR code error: %v\n", err)
		return
	}
	fmt.Fprintln(cmd.OutOrStdout(), qr.ToSmallString(false))
}

// pruneTimeline drops old log lines once at startup and then daily.
func pruneTimeline(ctx context.Context, timeSvc *timeline.TimelineService) {
	prune := func() {
		n, err := timeSvc.Prune(time.Now().Add(-timelineRetention))
		if err != nil {
			slog.Warn("Timeline prune failed", "error", err)
			return
		}
		if n > 0 {
			slog.Info("Timeline pruned", "removed", n)
		}
	}
	prune()
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			prune()
		}
	}
}

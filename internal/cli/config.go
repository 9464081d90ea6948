package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/KafClaw/rpcdash/internal/config"
	"github.com/KafClaw/rpcdash/internal/rpcconfig"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the presence config",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the persisted presence config",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		store, err := rpcconfig.Open(cfg.Paths.ConfigFile)
		if err != nil {
			return err
		}
		data, err := json.MarshalIndent(store.Snapshot(), "", "    ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the presence config file path",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), cfg.Paths.ConfigFile)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configPathCmd)
}

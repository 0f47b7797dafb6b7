package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jackzampolin/epubaudio/internal/api"
	"github.com/jackzampolin/epubaudio/internal/config"
	"github.com/jackzampolin/epubaudio/internal/home"
	"github.com/jackzampolin/epubaudio/internal/ui"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the epubaudio config file",
}

var configInitForce bool

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config file",
	Long: `Write the default configuration to ~/.epubaudio/config.yaml, or to the
path given with --config.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := home.New(homeDir)
		if err != nil {
			return err
		}
		path := cfgFile
		if path == "" {
			if err := h.EnsureExists(); err != nil {
				return err
			}
			path = h.ConfigPath()
		}
		if _, err := os.Stat(path); err == nil && !configInitForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		if err := config.WriteDefault(path); err != nil {
			return err
		}
		ui.Success("Wrote %s", path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cm, _, err := loadConfig()
		if err != nil {
			return err
		}
		cfg := *cm.Get()
		cfg.TTS = make(map[string]config.TTSProviderCfg, len(cm.Get().TTS))
		for name, p := range cm.Get().TTS {
			p.APIKey = config.MaskSecret(p.APIKey)
			cfg.TTS[name] = p
		}
		return api.Output(cfg)
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file in use",
	RunE: func(cmd *cobra.Command, args []string) error {
		cm, _, err := loadConfig()
		if err != nil {
			return err
		}
		if path := cm.ConfigFileUsed(); path != "" {
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		}
		return fmt.Errorf("no config file found; run 'epubaudio config init'")
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print one config value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cm, _, err := loadConfig()
		if err != nil {
			return err
		}
		v, err := cm.Value(args[0])
		if err != nil {
			return err
		}
		if config.IsSecretKey(args[0]) {
			v = config.MaskSecret(fmt.Sprint(v))
		}
		return api.Output(v)
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Update a config value in the config file",
	Long: `Update a config value. The value is parsed as YAML, so numbers and
booleans keep their type: "epubaudio config set backend.workers 4".`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cm, _, err := loadConfig()
		if err != nil {
			return err
		}
		var value any
		if err := yaml.Unmarshal([]byte(args[1]), &value); err != nil || value == nil {
			value = args[1]
		}
		if err := cm.Set(args[0], value); err != nil {
			return err
		}
		ui.Success("%s = %v", args[0], value)
		return nil
	},
}

var configResetCmd = &cobra.Command{
	Use:   "reset <key>",
	Short: "Restore a config value to its default",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cm, _, err := loadConfig()
		if err != nil {
			return err
		}
		if err := cm.Reset(args[0]); err != nil {
			return err
		}
		v, _ := cm.Value(args[0])
		ui.Success("%s = %v", args[0], v)
		return nil
	},
}

var configKeysCmd = &cobra.Command{
	Use:   "keys",
	Short: "List documented config keys and their defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		return api.Output(config.DefaultEntries())
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "Overwrite an existing config file")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configResetCmd)
	configCmd.AddCommand(configKeysCmd)
	rootCmd.AddCommand(configCmd)
}

package cmd

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"mp4-mp3/infrastructure/config"

	"github.com/spf13/cobra"
)

// DefaultOutput is the default output writer for config commands
var DefaultOutput OutputWriter = os.Stdout

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View and change configuration values",
	Long: `View and change individual values in the configuration file.

Keys use dotted section names, for example audio.quality or server.address.

Examples:
  mp4-mp3 config list
  mp4-mp3 config get audio.quality
  mp4-mp3 config set audio.quality 192k
  mp4-mp3 config reset server.address`,
}

func init() {
	rootCmd.AddCommand(configCmd)

	configCmd.AddCommand(configListCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configResetCmd)
}

// --- LIST command ---

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all configuration values",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireConfig()
		if err != nil {
			return err
		}
		return RunConfigListWithDependencies(c, cfgFile, DefaultOutput)
	},
}

// RunConfigListWithDependencies runs the list command with injected dependencies
func RunConfigListWithDependencies(cfg *config.Config, configPath string, out OutputWriter) error {
	mgr := config.NewConfigManager(cfg, configPath)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tVALUE")
	fmt.Fprintln(w, "---\t-----")
	for _, s := range mgr.List() {
		value := s.Value
		if value == "" {
			value = "(not set)"
		}
		fmt.Fprintf(w, "%s\t%s\n", s.Key, value)
	}
	return w.Flush()
}

// --- GET command ---

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print one configuration value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireConfig()
		if err != nil {
			return err
		}
		return RunConfigGetWithDependencies(c, cfgFile, args[0], DefaultOutput)
	},
}

// RunConfigGetWithDependencies runs the get command with injected dependencies
func RunConfigGetWithDependencies(cfg *config.Config, configPath, key string, out OutputWriter) error {
	mgr := config.NewConfigManager(cfg, configPath)

	value, err := mgr.Get(key)
	if err != nil {
		return withKeyHint(err)
	}
	fmt.Fprintln(out, value)
	return nil
}

// --- SET command ---

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Change one configuration value",
	Long: `Change one configuration value and save the file.

Examples:
  mp4-mp3 config set audio.quality q0
  mp4-mp3 config set server.allowed_origins "http://localhost:3000,http://example.com"
  mp4-mp3 config set google.folder_id 1AbCdEfGh`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireConfig()
		if err != nil {
			return err
		}
		return RunConfigSetWithDependencies(c, cfgFile, args[0], args[1], DefaultOutput)
	},
}

// RunConfigSetWithDependencies runs the set command with injected dependencies
func RunConfigSetWithDependencies(cfg *config.Config, configPath, key, value string, out OutputWriter) error {
	mgr := config.NewConfigManager(cfg, configPath)

	if err := mgr.Set(key, value); err != nil {
		return withKeyHint(err)
	}
	fmt.Fprintf(out, "Set %s = %q\n", key, value)
	return nil
}

// --- RESET command ---

var configResetCmd = &cobra.Command{
	Use:   "reset <key>",
	Short: "Restore one configuration value to its default",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireConfig()
		if err != nil {
			return err
		}
		return RunConfigResetWithDependencies(c, cfgFile, args[0], DefaultOutput)
	},
}

// RunConfigResetWithDependencies runs the reset command with injected dependencies
func RunConfigResetWithDependencies(cfg *config.Config, configPath, key string, out OutputWriter) error {
	mgr := config.NewConfigManager(cfg, configPath)

	if err := mgr.Reset(key); err != nil {
		return withKeyHint(err)
	}
	value, _ := mgr.Get(key)
	fmt.Fprintf(out, "Reset %s to %q\n", key, value)
	return nil
}

// withKeyHint points at config list when the key is unknown
func withKeyHint(err error) error {
	if errors.Is(err, config.ErrUnknownKey) {
		return fmt.Errorf("%w. Run 'mp4-mp3 config list' to see available keys", err)
	}
	return err
}

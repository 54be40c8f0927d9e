package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/bryanchriswhite/SnipClip/internal/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage SnipClip configuration",
	Long:  `View and manage SnipClip configuration settings.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display the current SnipClip configuration.`,
	Example: `  # Show configuration as YAML (default)
  snipclip config show

  # Show configuration as JSON
  snipclip config show --format json`,
	RunE: runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set KEY VALUE",
	Short: "Set a configuration value",
	Long:  `Set a specific configuration value.`,
	Example: `  # Set server port
  snipclip config set server_port 9090

  # Set the capture backend
  snipclip config set capture.source x11

  # Keep PNG copies next to the clipboard delivery
  snipclip config set output.save_dir ~/Pictures/snips`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configGetCmd = &cobra.Command{
	Use:   "get KEY",
	Short: "Get a configuration value",
	Long:  `Get a specific configuration value.`,
	Example: `  # Get server port
  snipclip config get server_port

  # Get the minimum selection size
  snipclip config get selection.min_selection_px`,
	Args: cobra.ExactArgs(1),
	RunE: runConfigGet,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show configuration file path",
	Long:  `Display the path to the configuration file.`,
	RunE:  runConfigPath,
}

var formatFlag string

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configPathCmd)

	configShowCmd.Flags().StringVarP(&formatFlag, "format", "f", "yaml", "output format (yaml or json)")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	cfg := configMgr.Get()

	switch formatFlag {
	case "json":
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(cfg)
	case "yaml":
		encoder := yaml.NewEncoder(os.Stdout)
		encoder.SetIndent(2)
		return encoder.Encode(cfg)
	default:
		return fmt.Errorf("unsupported format: %s (use 'yaml' or 'json')", formatFlag)
	}
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key := args[0]
	value := args[1]

	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	cfg := configMgr.Get()
	if err := applyConfigKey(cfg, key, value); err != nil {
		return err
	}

	if err := configMgr.Update(cfg); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Printf("Configuration updated: %s = %s\n", key, value)
	return nil
}

func applyConfigKey(cfg *config.Config, key, value string) error {
	atoi := func() (int, error) {
		n, err := strconv.Atoi(value)
		if err != nil {
			return 0, fmt.Errorf("invalid number for %s: %s", key, value)
		}
		return n, nil
	}

	switch key {
	case "server_port":
		port, err := atoi()
		if err != nil {
			return err
		}
		if port <= 0 || port > 65535 {
			return fmt.Errorf("invalid port number: %s", value)
		}
		cfg.ServerPort = port
	case "log_level":
		validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
		if !validLevels[value] {
			return fmt.Errorf("invalid log level: %s (use: debug, info, warn, error)", value)
		}
		cfg.LogLevel = value
	case "capture.source":
		switch value {
		case "auto", "x11", "fallback":
			cfg.Capture.Source = value
		default:
			return fmt.Errorf("invalid capture source: %s (use: auto, x11, fallback)", value)
		}
	case "capture.frame_timeout_ms":
		n, err := atoi()
		if err != nil {
			return err
		}
		cfg.Capture.FrameTimeoutMS = n
	case "capture.grant_settle_ms":
		n, err := atoi()
		if err != nil {
			return err
		}
		cfg.Capture.GrantSettleMS = n
	case "capture.overlay_settle_ms":
		n, err := atoi()
		if err != nil {
			return err
		}
		cfg.Capture.OverlaySettleMS = n
	case "selection.min_selection_px":
		n, err := atoi()
		if err != nil {
			return err
		}
		cfg.Selection.MinSelectionPX = n
	case "output.clipboard_enabled":
		enabled, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %s (use: true or false)", value)
		}
		cfg.Output.ClipboardEnabled = enabled
	case "output.save_dir":
		cfg.Output.SaveDir = value
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	return nil
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	key := args[0]

	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	cfg := configMgr.Get()
	value, err := lookupConfigKey(cfg, key)
	if err != nil {
		return err
	}

	fmt.Println(value)
	return nil
}

func lookupConfigKey(cfg *config.Config, key string) (string, error) {
	switch key {
	case "server_port":
		return strconv.Itoa(cfg.ServerPort), nil
	case "log_level":
		return cfg.LogLevel, nil
	case "capture.source":
		return cfg.Capture.Source, nil
	case "capture.frame_timeout_ms":
		return strconv.Itoa(cfg.Capture.FrameTimeoutMS), nil
	case "capture.grant_settle_ms":
		return strconv.Itoa(cfg.Capture.GrantSettleMS), nil
	case "capture.overlay_settle_ms":
		return strconv.Itoa(cfg.Capture.OverlaySettleMS), nil
	case "selection.min_selection_px":
		return strconv.Itoa(cfg.Selection.MinSelectionPX), nil
	case "output.clipboard_enabled":
		return strconv.FormatBool(cfg.Output.ClipboardEnabled), nil
	case "output.save_dir":
		return cfg.Output.SaveDir, nil
	default:
		return "", fmt.Errorf("configuration key not found: %s", key)
	}
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	fmt.Println(configMgr.GetConfigPath())
	return nil
}

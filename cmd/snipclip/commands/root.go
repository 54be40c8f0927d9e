package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "snipclip",
		Short: "SnipClip - Screen region capture to clipboard",
		Long: `SnipClip captures the screen, lets you select a rectangular or circular
region in a browser overlay, and places the cropped PNG on the clipboard.

Features:
  • Portal-based capture authorization with session reuse
  • X11 frame source with automatic fallback
  • Rectangle and circle region selection
  • Clipboard delivery, optional PNG file output
  • Persistent configuration
  • REST API for integration`,
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/snipclip/config.yaml)")
	rootCmd.PersistentFlags().Int("port", 0, "server port (default is 8421)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")

	// Bind flags to viper
	viper.BindPFlag("server_port", rootCmd.PersistentFlags().Lookup("port"))
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// GetConfigFile returns the config file path
func GetConfigFile() string {
	return cfgFile
}

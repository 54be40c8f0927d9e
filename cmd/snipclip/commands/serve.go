package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bryanchriswhite/SnipClip/internal/api"
	"github.com/bryanchriswhite/SnipClip/internal/capture"
	"github.com/bryanchriswhite/SnipClip/internal/config"
	"github.com/bryanchriswhite/SnipClip/internal/display"
	"github.com/bryanchriswhite/SnipClip/internal/logger"
	"github.com/bryanchriswhite/SnipClip/internal/orchestrator"
	"github.com/bryanchriswhite/SnipClip/internal/output"
	"github.com/bryanchriswhite/SnipClip/internal/permission"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the SnipClip daemon",
	Long: `Start the SnipClip HTTP daemon.

The daemon exposes a REST API to trigger captures and serves the browser
selection overlay. Captured regions land on the system clipboard.`,
	Example: `  # Start daemon on default port (8421)
  snipclip serve

  # Start daemon on custom port
  snipclip serve --port 9090

  # Start with specific config file
  snipclip serve --config /path/to/config.yaml

  # Start with debug logging
  snipclip serve --log-level debug`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to initialize config manager: %w", err)
	}

	// Override port from flag if provided
	if viper.IsSet("server_port") {
		port := viper.GetInt("server_port")
		if port > 0 {
			configMgr.SetPort(port)
		}
	}

	// Override log level from flag if provided
	if viper.IsSet("log_level") {
		logLevel := viper.GetString("log_level")
		if logLevel != "" {
			configMgr.SetLogLevel(logLevel)
		}
	}

	cfg := configMgr.Get()
	logger.Init(cfg.LogLevel, true)
	log := logger.WithComponent("serve")
	log.Info().Str("path", configMgr.GetConfigPath()).Str("log_level", cfg.LogLevel).Msg("Configuration loaded")

	// Consent flow over the desktop portal
	portal, err := permission.NewPortalFlow()
	if err != nil {
		return fmt.Errorf("failed to connect to desktop portal: %w", err)
	}
	defer portal.Close()

	cache := permission.NewCache()

	// Frame acquisition
	router := capture.NewRouter(cfg.Capture.Source)
	metrics := display.NewProvider()
	engine := capture.NewEngine(router, metrics, portal, cfg.FrameTimeout())

	// Selection overlay bridge
	overlay := api.NewOverlaySelector()

	// Result delivery
	sink := output.NewSink(output.Config{
		ClipboardEnabled: cfg.Output.ClipboardEnabled,
		SaveDir:          cfg.Output.SaveDir,
	})

	orch, err := orchestrator.New(orchestrator.Options{
		Cache:         cache,
		Consent:       portal,
		Capturer:      engine,
		Selector:      overlay,
		Sink:          sink,
		MinSelection:  cfg.Selection.MinSelectionPX,
		GrantSettle:   cfg.GrantSettle(),
		OverlaySettle: cfg.OverlaySettle(),
	})
	if err != nil {
		return fmt.Errorf("failed to build capture pipeline: %w", err)
	}
	defer orch.Close()

	server := api.NewServer(orch, configMgr, cache, sink, overlay)

	go func() {
		if err := server.Start(cfg.ServerPort); err != nil {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	log.Info().
		Str("overlay", fmt.Sprintf("http://localhost:%d", cfg.ServerPort)).
		Str("api", fmt.Sprintf("http://localhost:%d/api", cfg.ServerPort)).
		Msg("SnipClip is running, press Ctrl+C to stop")

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("Shutting down gracefully")
	return nil
}

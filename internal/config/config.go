package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bryanchriswhite/SnipClip/internal/logger"
	"gopkg.in/yaml.v3"
)

// CaptureConfig holds frame-acquisition settings
type CaptureConfig struct {
	// FrameTimeoutMS bounds the wait for the authoritative frame
	FrameTimeoutMS int `json:"frame_timeout_ms" yaml:"frame_timeout_ms"`
	// GrantSettleMS is applied once after the consent dialog dismisses
	GrantSettleMS int `json:"grant_settle_ms" yaml:"grant_settle_ms"`
	// OverlaySettleMS lets the selection overlay clear before the crop is taken
	OverlaySettleMS int `json:"overlay_settle_ms" yaml:"overlay_settle_ms"`
	// Source selects the frame source backend: "auto", "x11" or "fallback"
	Source string `json:"source" yaml:"source"`
}

// SelectionConfig holds region-selection settings
type SelectionConfig struct {
	// MinSelectionPX rejects selections whose mapped bounds are narrower than this
	MinSelectionPX int `json:"min_selection_px" yaml:"min_selection_px"`
}

// OutputConfig holds result-delivery settings
type OutputConfig struct {
	ClipboardEnabled bool   `json:"clipboard_enabled" yaml:"clipboard_enabled"`
	SaveDir          string `json:"save_dir" yaml:"save_dir"`
}

// Config represents the application configuration
type Config struct {
	ServerPort int             `json:"server_port" yaml:"server_port"`
	LogLevel   string          `json:"log_level" yaml:"log_level"`
	Capture    CaptureConfig   `json:"capture" yaml:"capture"`
	Selection  SelectionConfig `json:"selection" yaml:"selection"`
	Output     OutputConfig    `json:"output" yaml:"output"`
}

// FrameTimeout returns the frame wait bound as a duration
func (c *Config) FrameTimeout() time.Duration {
	return time.Duration(c.Capture.FrameTimeoutMS) * time.Millisecond
}

// GrantSettle returns the post-consent settle delay as a duration
func (c *Config) GrantSettle() time.Duration {
	return time.Duration(c.Capture.GrantSettleMS) * time.Millisecond
}

// OverlaySettle returns the post-selection settle delay as a duration
func (c *Config) OverlaySettle() time.Duration {
	return time.Duration(c.Capture.OverlaySettleMS) * time.Millisecond
}

// Manager handles configuration
type Manager struct {
	configPath string
	config     *Config
	mu         sync.RWMutex
}

// NewManager creates a new configuration manager
func NewManager(configFile string) (*Manager, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}

	configDir := filepath.Join(homeDir, ".config", "snipclip")
	defaultConfigPath := filepath.Join(configDir, "config.yaml")

	actualConfigPath := defaultConfigPath
	if configFile != "" {
		actualConfigPath = configFile
	}

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	m := &Manager{
		configPath: actualConfigPath,
	}

	if err := m.load(); err != nil {
		if os.IsNotExist(err) {
			logger.WithComponent("config").Info().
				Str("path", m.configPath).
				Msg("Config file not found, creating new config")
			m.config = Defaults()
			if err := m.Save(); err != nil {
				return nil, fmt.Errorf("failed to create default config: %w", err)
			}
		} else {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	logger.WithComponent("config").Info().
		Str("path", m.configPath).
		Msg("Config loaded")

	return m, nil
}

// Defaults returns the default configuration
func Defaults() *Config {
	return &Config{
		ServerPort: 8421,
		LogLevel:   "info",
		Capture: CaptureConfig{
			FrameTimeoutMS:  4000,
			GrantSettleMS:   600,
			OverlaySettleMS: 120,
			Source:          "auto",
		},
		Selection: SelectionConfig{
			MinSelectionPX: 8,
		},
		Output: OutputConfig{
			ClipboardEnabled: true,
			SaveDir:          "",
		},
	}
}

// load reads the configuration from disk
func (m *Manager) load() error {
	data, err := os.ReadFile(m.configPath)
	if err != nil {
		return err
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}

	// Guard against hand-edited zero or negative values
	if cfg.Capture.FrameTimeoutMS <= 0 {
		cfg.Capture.FrameTimeoutMS = Defaults().Capture.FrameTimeoutMS
	}
	if cfg.Selection.MinSelectionPX <= 0 {
		cfg.Selection.MinSelectionPX = Defaults().Selection.MinSelectionPX
	}
	if cfg.Capture.GrantSettleMS < 0 {
		cfg.Capture.GrantSettleMS = 0
	}
	if cfg.Capture.OverlaySettleMS < 0 {
		cfg.Capture.OverlaySettleMS = 0
	}

	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()

	return nil
}

// Get returns a copy of the current configuration
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.config == nil {
		return Defaults()
	}

	cfg := *m.config
	return &cfg
}

// Save saves the current configuration to disk
func (m *Manager) Save() error {
	m.mu.RLock()
	cfg := m.config
	m.mu.RUnlock()

	if cfg == nil {
		cfg = Defaults()
	}

	configDir := filepath.Dir(m.configPath)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(m.configPath, data, 0644); err != nil {
		return err
	}

	logger.WithComponent("config").Debug().
		Str("path", m.configPath).
		Msg("Config saved")
	return nil
}

// Update updates the entire configuration
func (m *Manager) Update(cfg *Config) error {
	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()
	return m.Save()
}

// SetPort sets the server port
func (m *Manager) SetPort(port int) error {
	m.mu.Lock()
	m.config.ServerPort = port
	m.mu.Unlock()
	return m.Save()
}

// GetPort gets the server port
func (m *Manager) GetPort() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config.ServerPort
}

// SetLogLevel sets the log level
func (m *Manager) SetLogLevel(level string) error {
	m.mu.Lock()
	m.config.LogLevel = level
	m.mu.Unlock()
	return m.Save()
}

// GetLogLevel gets the log level
func (m *Manager) GetLogLevel() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config.LogLevel
}

// GetConfigPath returns the path to the config file
func (m *Manager) GetConfigPath() string {
	return m.configPath
}

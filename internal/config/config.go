// Package config provides YAML-based configuration for the nimbl backend.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/nimbl/backend/internal/camera"
	"github.com/nimbl/backend/internal/form"
	"github.com/nimbl/backend/internal/interaction"
)

// AppConfig is the root configuration document.
type AppConfig struct {
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	Session  SessionConfig  `yaml:"session"`
	Canvas   CanvasConfig   `yaml:"canvas"`
	Share    ShareConfig    `yaml:"share"`
	Advanced AdvancedConfig `yaml:"advanced"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port         int    `yaml:"port"`
	BindAddress  string `yaml:"bind_address"`
	EnableCORS   bool   `yaml:"enable_cors"`
	AllowOrigins string `yaml:"allow_origins"`
	ReadTimeout  int    `yaml:"read_timeout_seconds"`
	WriteTimeout int    `yaml:"write_timeout_seconds"`
	IdleTimeout  int    `yaml:"idle_timeout_seconds"`
	BodyLimit    string `yaml:"body_limit"`

	// EnableCompression gzips responses at CompressionLevel (1-9).
	EnableCompression bool `yaml:"enable_compression"`
	CompressionLevel  int  `yaml:"compression_level"`
}

// StorageConfig contains file storage settings
type StorageConfig struct {
	DataDirectory      string `yaml:"data_directory"`
	FormsDirectory     string `yaml:"forms_directory"`
	ResponsesDatabase  string `yaml:"responses_database"`
	TemplatesDirectory string `yaml:"templates_directory"`
}

// SessionConfig controls server-held editing sessions.
type SessionConfig struct {
	MaxSessions            int `yaml:"max_sessions"`
	SessionTimeoutMinutes  int `yaml:"session_timeout_minutes"`
	CleanupIntervalMinutes int `yaml:"cleanup_interval_minutes"`
	AutosaveDebounceMs     int `yaml:"autosave_debounce_ms"`
}

// CanvasConfig holds grid, field and camera defaults.
type CanvasConfig struct {
	Camera       camera.Limits `yaml:"camera"`
	GridColumns  int           `yaml:"grid_columns"`
	RowUnit      float64       `yaml:"row_unit"`
	FrameWidth   float64       `yaml:"frame_width"`
	FrameHeight  float64       `yaml:"frame_height"`
	FieldWidth   float64       `yaml:"field_width"`
	FieldHeight  float64       `yaml:"field_height"`
	TextareaRows float64       `yaml:"textarea_rows"`
	MinSpan      float64       `yaml:"min_resize_span"`
	Snapping     bool          `yaml:"snapping"`
	ShowGrid     bool          `yaml:"show_grid"`
	HistoryLimit int           `yaml:"history_limit"`
}

// ShareConfig controls public links to published forms.
type ShareConfig struct {
	PublicBaseURL string `yaml:"public_base_url"`
	QRSize        int    `yaml:"qr_size"`
}

// AdvancedConfig contains advanced/tuning options
type AdvancedConfig struct {
	LogLevel              string `yaml:"log_level"`
	EnableRequestLogging  bool   `yaml:"enable_request_logging"`
	DuckDBThreads         int    `yaml:"duckdb_threads"`
	DuckDBMemoryLimit     string `yaml:"duckdb_memory_limit"`
	WebSocketMaxMessageKB int    `yaml:"websocket_max_message_kb"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Port:         8089,
			BindAddress:  "0.0.0.0",
			EnableCORS:   true,
			AllowOrigins: "*",
			ReadTimeout:  30,
			WriteTimeout: 30,
			IdleTimeout:  120,
			BodyLimit:    "2M",

			EnableCompression: true,
			CompressionLevel:  5,
		},
		Storage: StorageConfig{
			DataDirectory:      "./data",
			FormsDirectory:     "./data/forms",
			ResponsesDatabase:  "./data/responses.duckdb",
			TemplatesDirectory: "",
		},
		Session: SessionConfig{
			MaxSessions:            100,
			SessionTimeoutMinutes:  30,
			CleanupIntervalMinutes: 5,
			AutosaveDebounceMs:     2000,
		},
		Canvas: CanvasConfig{
			Camera:       camera.DefaultLimits(),
			GridColumns:  20,
			RowUnit:      40,
			FrameWidth:   960,
			FrameHeight:  1200,
			FieldWidth:   6,
			FieldHeight:  2,
			TextareaRows: 4,
			MinSpan:      2,
			Snapping:     true,
			ShowGrid:     true,
			HistoryLimit: 50,
		},
		Share: ShareConfig{
			QRSize: 256,
		},
		Advanced: AdvancedConfig{
			LogLevel:              "info",
			EnableRequestLogging:  true,
			DuckDBThreads:         2,
			DuckDBMemoryLimit:     "256MB",
			WebSocketMaxMessageKB: 64,
		},
	}
}

// LoadConfig loads configuration from a YAML file, writing the defaults
// there first if it does not exist. A .env file next to the config is
// loaded before environment overrides are applied.
func LoadConfig(configPath string) (*AppConfig, error) {
	config := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := config.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	} else {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	configDir := filepath.Dir(configPath)

	// Missing .env files are fine.
	_ = godotenv.Load(filepath.Join(configDir, ".env"))

	config.applyEnvironmentOverrides()
	config.resolvePaths(configDir)

	return config, nil
}

// Save saves the configuration to a YAML file
func (c *AppConfig) Save(configPath string) error {
	output, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte("# nimbl backend configuration\n# This file is auto-generated on first run\n\n")
	content := append(header, output...)

	if dir := filepath.Dir(configPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := os.WriteFile(configPath, content, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// applyEnvironmentOverrides allows environment variables to override config values
func (c *AppConfig) applyEnvironmentOverrides() {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}

	if dataDir := os.Getenv("DATA_DIR"); dataDir != "" {
		c.Storage.DataDirectory = dataDir
		c.Storage.FormsDirectory = filepath.Join(dataDir, "forms")
		c.Storage.ResponsesDatabase = filepath.Join(dataDir, "responses.duckdb")
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Advanced.LogLevel = level
	}

	if base := os.Getenv("PUBLIC_BASE_URL"); base != "" {
		c.Share.PublicBaseURL = base
	}
}

// resolvePaths converts relative paths to absolute based on config file location
func (c *AppConfig) resolvePaths(configDir string) {
	resolve := func(p *string) {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(configDir, *p)
		}
	}
	resolve(&c.Storage.DataDirectory)
	resolve(&c.Storage.FormsDirectory)
	resolve(&c.Storage.ResponsesDatabase)
	resolve(&c.Storage.TemplatesDirectory)
}

// GetServerAddr returns the server bind address
func (c *AppConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.BindAddress, c.Server.Port)
}

// EnsureDirectories creates all necessary directories
func (c *AppConfig) EnsureDirectories() error {
	dirs := []string{
		c.Storage.DataDirectory,
		c.Storage.FormsDirectory,
		filepath.Dir(c.Storage.ResponsesDatabase),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}

// FormSettings returns the defaults for new frames and fields.
func (c *AppConfig) FormSettings() form.Settings {
	return form.Settings{
		Columns:     c.Canvas.GridColumns,
		RowUnit:     c.Canvas.RowUnit,
		FrameWidth:  c.Canvas.FrameWidth,
		FrameHeight: c.Canvas.FrameHeight,
		FieldW:      c.Canvas.FieldWidth,
		FieldH:      c.Canvas.FieldHeight,
		TextareaH:   c.Canvas.TextareaRows,
	}
}

// InteractionOptions returns the editing controller options.
func (c *AppConfig) InteractionOptions() interaction.Options {
	return interaction.Options{
		Limits:       c.Canvas.Camera,
		Snap:         c.Canvas.Snapping,
		MinSpan:      c.Canvas.MinSpan,
		HistoryLimit: c.Canvas.HistoryLimit,
		ShowGrid:     c.Canvas.ShowGrid,
	}
}

// SessionTimeout returns the idle timeout for editing sessions.
func (c *AppConfig) SessionTimeout() time.Duration {
	return time.Duration(c.Session.SessionTimeoutMinutes) * time.Minute
}

// CleanupInterval returns how often idle sessions are swept.
func (c *AppConfig) CleanupInterval() time.Duration {
	return time.Duration(c.Session.CleanupIntervalMinutes) * time.Minute
}

// AutosaveDebounce returns the delay between the last edit and a save.
func (c *AppConfig) AutosaveDebounce() time.Duration {
	return time.Duration(c.Session.AutosaveDebounceMs) * time.Millisecond
}

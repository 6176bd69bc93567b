// Package cli implements the nimbl server command-line interface.
package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/nimbl/backend/internal/config"
	"github.com/nimbl/backend/internal/logging"
)

// defaultConfigName is looked up next to the executable.
const defaultConfigName = "nimbl.yaml"

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

var (
	version   = "dev"
	buildTime = "unknown"
)

// SetVersion sets the version information displayed by --version and the
// health endpoint.
func SetVersion(v, built string) {
	version = v
	buildTime = built
}

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger
	out    io.Writer

	configPath string
	verbose    bool
}

// New creates a new CLI instance logging to w at level.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{
		Logger: log.NewWithOptions(w, log.Options{
			ReportTimestamp: true,
			TimeFormat:      "15:04:05.00",
			Level:           level,
		}),
		out: os.Stdout,
	}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// SetOutput redirects command output (not logs).
func (c *CLI) SetOutput(w io.Writer) { c.out = w }

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "server",
		Short:        "nimbl form builder backend",
		Long:         `Serves the nimbl form builder API: forms on a grid canvas, live editing sessions, published forms and their responses.`,
		Version:      version,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if c.verbose {
				c.SetLogLevel(LogDebug)
			}
			cmd.SetContext(logging.WithLogger(cmd.Context(), c.Logger))
		},
	}

	root.SetVersionTemplate(fmt.Sprintf("nimbl %s\nbuilt: %s\n", version, buildTime))
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "enable verbose logging")
	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "path to the YAML config (default: "+defaultConfigName+" next to the executable)")

	root.AddCommand(c.serveCommand())
	root.AddCommand(c.exportCommand())
	root.AddCommand(c.templatesCommand())

	return root
}

// loadConfig reads the config and applies its log level unless --verbose
// already forced debug.
func (c *CLI) loadConfig() (*config.AppConfig, string, error) {
	path := c.configPath
	if path == "" {
		exePath, err := os.Executable()
		if err != nil {
			return nil, "", fmt.Errorf("get executable path: %w", err)
		}
		path = filepath.Join(filepath.Dir(exePath), defaultConfigName)
	}

	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, "", err
	}
	if !c.verbose {
		c.SetLogLevel(logging.ParseLevel(cfg.Advanced.LogLevel))
	}
	return cfg, path, nil
}

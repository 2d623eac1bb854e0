// Package main is the bunsho CLI entry point.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hyperjump/bunsho/internal/config"
	"github.com/hyperjump/bunsho/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/bunsho/config.yaml"

var (
	configPath string
	debugMode  bool
)

var rootCmd = &cobra.Command{
	Use:   "bunsho",
	Short: "Semantic chunking and hybrid document search",
	Long: `bunsho splits documents into semantically coherent chunks, embeds them, and
serves hybrid keyword + vector search over documents and chunks.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath, "config file path")
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "enable debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig loads config from path. When path is the default, config.yaml in the
// current directory wins if present, and a missing default file yields built-in defaults.
// Returns the config and the path that was loaded ("" when running on defaults).
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, err := os.Getwd(); err == nil {
			local := filepath.Join(cwd, "config.yaml")
			if _, err := os.Stat(local); err == nil {
				path = local
			}
		}
		if _, err := os.Stat(path); os.IsNotExist(err) {
			cfg := config.Default()
			return cfg, "", cfg.Validate()
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// setup loads config and builds a logger. Server logs go to the JSON production
// logger; every other command logs to stderr so stdout carries only results.
func setup(server bool) (*config.Config, string, *zap.Logger, error) {
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		return nil, "", nil, fmt.Errorf("failed to load config: %w", err)
	}
	debug := cfg.Debug || debugMode
	var logger *zap.Logger
	if server {
		logger, err = utils.NewLogger(debug)
	} else {
		logger, err = utils.NewCLILogger(debug)
	}
	if err != nil {
		return nil, "", nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return cfg, resolved, logger, nil
}

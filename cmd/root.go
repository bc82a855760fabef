// Package cmd provides the command-line interface for docserve.
//
// Configuration is resolved from multiple sources with clear precedence:
//  1. Command-line flags (--port, --builder, etc.) - highest priority
//  2. Individual environment variables (DOCSERVE_SERVER_PORT, etc.)
//  3. Configuration file (.docserve.yml) - lowest priority
//
// A .env file in the working directory is loaded before anything else so
// DOCSERVE_* variables can live next to the project.
package cmd

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/docserve/internal/logging"
)

var (
	cfgFile  string
	logLevel string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "docserve",
	Short: "Build, serve and live-reload generated API documentation",
	Long: `docserve builds a project's generated API documentation, serves it on
a local HTTP endpoint, and rebuilds automatically when source files
change. Connected browser tabs refresh themselves over a live-update
channel, removing the edit/rebuild/reload cycle from documentation work.

Quick Start:
  docserve serve                  Build, watch and serve the docs
  docserve build                  Run the documentation builder once
  docserve serve -- --no-deps     Pass extra flags to the builder`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .docserve.yml)")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")
	mustBindFlag("log-level", rootCmd.PersistentFlags(), "log-level")
	mustBindFlag("log-format", rootCmd.PersistentFlags(), "log-format")
}

// initConfig initializes the configuration system.
func initConfig() {
	// A project-local .env keeps DOCSERVE_* variables out of the shell.
	_ = godotenv.Load()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv("DOCSERVE_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".docserve")
	}

	viper.SetEnvPrefix("DOCSERVE")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Missing or malformed config files fall back to defaults.
	if err := viper.ReadInConfig(); err == nil {
		rootCmd.PrintErrln("Using config file:", viper.ConfigFileUsed())
	}
}

// newLogger builds the process logger from persistent flags.
func newLogger() logging.Logger {
	return logging.NewLogger(&logging.LoggerConfig{
		Level:  logging.ParseLevel(viper.GetString("log-level")),
		Format: viper.GetString("log-format"),
		Output: os.Stderr,
	})
}

// Package config provides configuration management for docserve using
// Viper for flexible configuration loading from files, environment
// variables, and command-line flags.
//
// The configuration system supports YAML files and environment variable
// overrides with the DOCSERVE_ prefix. It manages server settings, the
// documentation builder invocation, and file watching options.
package config

import (
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server ServerConfig `yaml:"server"`
	Build  BuildConfig  `yaml:"build"`
	Watch  WatchConfig  `yaml:"watch"`
}

type ServerConfig struct {
	Port      int    `yaml:"port"`
	Host      string `yaml:"host"`
	Open      bool   `yaml:"open"`
	StartPage string `yaml:"start_page"`
}

type BuildConfig struct {
	// Command is the documentation builder binary.
	Command string `yaml:"command"`
	// Args are passed to the builder; extra args from the CLI are appended.
	Args []string `yaml:"args"`
	// Dir is the working directory for the builder and the watch root.
	Dir string `yaml:"dir"`
	// Output is the directory the builder writes generated docs into,
	// relative to Dir unless absolute. It is served over HTTP and always
	// excluded from watching.
	Output string `yaml:"output"`
}

type WatchConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Paths    []string      `yaml:"paths"`
	Exclude  []string      `yaml:"exclude"`
	Debounce time.Duration `yaml:"debounce"`
}

// DefaultDebounce is the quiet period used when none is configured.
const DefaultDebounce = 300 * time.Millisecond

func Load() (*Config, error) {
	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	// Handle values set via viper (workaround for viper slice/bool handling
	// when the struct uses yaml tags)
	if viper.IsSet("server.port") {
		config.Server.Port = viper.GetInt("server.port")
	}
	if viper.IsSet("server.host") {
		config.Server.Host = viper.GetString("server.host")
	}
	if viper.IsSet("server.open") {
		config.Server.Open = viper.GetBool("server.open")
	}
	if viper.IsSet("server.start_page") {
		config.Server.StartPage = viper.GetString("server.start_page")
	}
	if viper.IsSet("build.command") {
		config.Build.Command = viper.GetString("build.command")
	}
	if viper.IsSet("build.args") && len(config.Build.Args) == 0 {
		config.Build.Args = viper.GetStringSlice("build.args")
	}
	if viper.IsSet("build.dir") {
		config.Build.Dir = viper.GetString("build.dir")
	}
	if viper.IsSet("build.output") {
		config.Build.Output = viper.GetString("build.output")
	}
	if viper.IsSet("watch.enabled") {
		config.Watch.Enabled = viper.GetBool("watch.enabled")
	} else {
		config.Watch.Enabled = true
	}
	if viper.IsSet("watch.paths") && len(config.Watch.Paths) == 0 {
		config.Watch.Paths = viper.GetStringSlice("watch.paths")
	}
	if viper.IsSet("watch.exclude") && len(config.Watch.Exclude) == 0 {
		config.Watch.Exclude = viper.GetStringSlice("watch.exclude")
	}
	if viper.IsSet("watch.debounce") {
		config.Watch.Debounce = viper.GetDuration("watch.debounce")
	}

	config.ApplyDefaults()

	if err := Validate(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// ApplyDefaults fills in default values for anything left unset.
func (c *Config) ApplyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8000
	}
	if c.Server.Host == "" {
		c.Server.Host = "localhost"
	}
	if c.Build.Command == "" {
		c.Build.Command = "cargo"
	}
	if len(c.Build.Args) == 0 {
		c.Build.Args = []string{"doc"}
	}
	if c.Build.Dir == "" {
		c.Build.Dir = "."
	}
	if c.Build.Output == "" {
		c.Build.Output = filepath.Join("target", "doc")
	}
	if c.Watch.Debounce <= 0 {
		c.Watch.Debounce = DefaultDebounce
	}
	if len(c.Watch.Exclude) == 0 {
		c.Watch.Exclude = []string{".git", "vendor", "node_modules"}
	}

	// The build output directory must never be watched, otherwise every
	// build would trigger the next one.
	c.Watch.Exclude = appendUnique(c.Watch.Exclude, c.Build.Output)
	c.Watch.Exclude = appendUnique(c.Watch.Exclude, "target")
}

// OutputDir returns the absolute path of the generated docs directory.
func (c *Config) OutputDir() string {
	if filepath.IsAbs(c.Build.Output) {
		return c.Build.Output
	}
	return filepath.Join(c.Build.Dir, c.Build.Output)
}

// WatchRoots returns every directory tree that should be watched: the
// build directory plus any extra paths from configuration.
func (c *Config) WatchRoots() []string {
	roots := []string{c.Build.Dir}
	for _, p := range c.Watch.Paths {
		roots = appendUnique(roots, p)
	}
	return roots
}

func appendUnique(list []string, value string) []string {
	for _, v := range list {
		if v == value {
			return list
		}
	}
	return append(list, value)
}

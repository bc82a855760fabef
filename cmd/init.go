package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/docserve/internal/config"
)

var initCmd = &cobra.Command{
	Use:     "init [dir]",
	Aliases: []string{"i"},
	Short:   "Write a default .docserve.yml configuration file",
	Long: `Write a .docserve.yml with the default configuration into the given
directory, or the current directory if none is given. The file documents
every setting so it can be edited in place.

Examples:
  docserve init                   # Write .docserve.yml here
  docserve init ~/src/mylib       # Write it into another project
  docserve init --force           # Overwrite an existing file`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

var initForce bool

func init() {
	rootCmd.AddCommand(initCmd)

	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "Overwrite an existing configuration file")
}

func runInit(cmd *cobra.Command, args []string) error {
	dir := "."
	if len(args) == 1 {
		dir = args[0]
	}

	path := filepath.Join(dir, ".docserve.yml")
	if !initForce {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
	}

	cfg := &config.Config{}
	cfg.ApplyDefaults()
	cfg.Watch.Enabled = true

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding configuration: %w", err)
	}

	content := append([]byte(configFileHeader), data...)
	if err := os.WriteFile(path, content, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}

	fmt.Printf("Wrote %s\n", path)
	return nil
}

const configFileHeader = `# docserve configuration.
# Every setting can also be given as a flag or a DOCSERVE_* environment
# variable, which take precedence over this file.
`

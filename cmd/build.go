package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/docserve/internal/build"
	"github.com/conneroisu/docserve/internal/config"
	"github.com/conneroisu/docserve/internal/errors"
)

var buildCmd = &cobra.Command{
	Use:   "build [dir]",
	Short: "Run the documentation builder once, without serving",
	Long: `Run the documentation builder a single time and exit with its status.
No server is started and no files are watched.

Arguments after -- are passed through to the documentation builder.

Examples:
  docserve build                  # Build docs for the current directory
  docserve build ~/src/mylib      # Build docs for another project
  docserve build -- --no-deps     # Pass --no-deps to the builder`,
	Args: cobra.ArbitraryArgs,
	RunE: runBuild,
}

func init() {
	rootCmd.AddCommand(buildCmd)

	buildCmd.Flags().String("builder", "", "Documentation builder command")
	mustBindFlag("build.command", buildCmd.Flags(), "builder")
}

func runBuild(cmd *cobra.Command, args []string) error {
	dirArgs, passthrough := splitDashArgs(cmd, args)
	if len(dirArgs) > 1 {
		return fmt.Errorf("at most one project directory may be given, got %d", len(dirArgs))
	}
	if len(dirArgs) == 1 {
		viper.Set("build.dir", dirArgs[0])
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	log := newLogger()
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	executor := build.NewExecutor(build.Invocation{
		Command: cfg.Build.Command,
		Args:    append(append([]string{}, cfg.Build.Args...), passthrough...),
		Dir:     cfg.Build.Dir,
	}, log)

	result := executor.Run(ctx)
	os.Stdout.WriteString(result.Output)

	code, err := buildExitStatus(ctx.Err(), result)
	if err != nil {
		return err
	}
	if code != 0 {
		// Pass the builder's exit code through to the shell.
		os.Exit(code)
	}

	if result.OK() {
		log.Info(ctx, "build finished", "duration", result.Duration)
	}
	return nil
}

// buildExitStatus decides how the one-shot build terminates. An interrupt
// that killed the builder is a clean shutdown, a builder that ran and
// exited non-zero passes its code through, and a builder that never ran
// surfaces as an error.
func buildExitStatus(ctxErr error, result build.Result) (int, error) {
	if ctxErr != nil {
		return 0, nil
	}
	if result.OK() {
		return 0, nil
	}
	if result.Failure.Class == errors.ClassExit && result.ExitCode > 0 {
		return result.ExitCode, nil
	}
	return 0, fmt.Errorf("running builder: %w", result.Failure)
}

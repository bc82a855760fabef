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
	"github.com/conneroisu/docserve/internal/hub"
	"github.com/conneroisu/docserve/internal/metrics"
	"github.com/conneroisu/docserve/internal/server"
	"github.com/conneroisu/docserve/internal/watcher"
)

var serveCmd = &cobra.Command{
	Use:   "serve [dir]",
	Short: "Build the docs, serve them, and rebuild on change",
	Long: `Build the documentation, serve the output directory over HTTP, and
watch the source tree. Changes are debounced into a single rebuild, and
connected browsers refresh automatically when a new build lands.

Arguments after -- are passed through to the documentation builder.

Examples:
  docserve serve                       # Serve docs for the current directory
  docserve serve ~/src/mylib           # Serve docs for another project
  docserve serve -p 9000 --no-watch    # Serve once on port 9000, no watching
  docserve serve -- --no-deps          # Pass --no-deps to the builder`,
	Args: cobra.ArbitraryArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntP("port", "p", 8000, "Port to serve on")
	serveCmd.Flags().String("host", "localhost", "Host to bind to (0.0.0.0 for all interfaces)")
	serveCmd.Flags().Bool("open", false, "Open the browser after the first build")
	serveCmd.Flags().Bool("no-watch", false, "Build and serve once, without watching")
	serveCmd.Flags().String("builder", "", "Documentation builder command")
	serveCmd.Flags().String("output", "", "Directory the builder writes generated docs into")
	serveCmd.Flags().StringSlice("watch-extra", nil, "Extra file or directory to watch (repeatable)")
	serveCmd.Flags().Duration("debounce", config.DefaultDebounce, "Quiet period before a rebuild triggers")

	mustBindFlag("server.port", serveCmd.Flags(), "port")
	mustBindFlag("server.host", serveCmd.Flags(), "host")
	mustBindFlag("server.open", serveCmd.Flags(), "open")
	mustBindFlag("build.command", serveCmd.Flags(), "builder")
	mustBindFlag("build.output", serveCmd.Flags(), "output")
	mustBindFlag("watch.paths", serveCmd.Flags(), "watch-extra")
	mustBindFlag("watch.debounce", serveCmd.Flags(), "debounce")
}

func runServe(cmd *cobra.Command, args []string) error {
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

	noWatch, _ := cmd.Flags().GetBool("no-watch")
	watchEnabled := cfg.Watch.Enabled && !noWatch

	log := newLogger()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	recorder := metrics.NewRecorder()
	h := hub.New(recorder, log)

	executor := build.NewExecutor(build.Invocation{
		Command: cfg.Build.Command,
		Args:    append(append([]string{}, cfg.Build.Args...), passthrough...),
		Dir:     cfg.Build.Dir,
	}, log)

	orchestrator := build.NewOrchestrator(executor, recorder, log)
	orchestrator.OnComplete(func(s build.Snapshot) {
		h.Broadcast(hub.FromSnapshot(s))
	})
	orchestrator.Start(ctx)

	fatalWatch := make(chan error, 1)
	if watchEnabled {
		w, err := watcher.NewDocWatcher(cfg.Watch.Debounce, log)
		if err != nil {
			return fmt.Errorf("creating file watcher: %w", err)
		}
		defer w.Stop()

		w.AddFilter(watcher.NoHidden)
		for _, root := range cfg.WatchRoots() {
			w.AddFilter(watcher.ExcludeGlobs(root, cfg.Watch.Exclude))
			if err := w.AddRecursive(root); err != nil {
				return fmt.Errorf("watching %q: %w", root, err)
			}
		}
		w.Start(ctx)

		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case req := <-w.Requests():
					log.Info(ctx, "source changed, rebuilding", "events", req.Events)
					orchestrator.Request()
				case err := <-w.Fatal():
					fatalWatch <- err
					return
				}
			}
		}()
	}

	// Initial build so the server has something to serve.
	orchestrator.Request()

	srv := server.New(cfg, orchestrator, h, recorder, log)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Start(ctx)
	}()

	fmt.Printf("Serving documentation at http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	if watchEnabled {
		fmt.Printf("Watching %s for changes\n", cfg.Build.Dir)
	}

	select {
	case <-sigChan:
		// Clean shutdown: abandon the in-flight build if any, exit zero.
		cancel()
		_ = srv.Shutdown(context.Background())
		return nil
	case err := <-fatalWatch:
		cancel()
		_ = srv.Shutdown(context.Background())
		return fmt.Errorf("file watching failed: %w", err)
	case err := <-serveErr:
		cancel()
		return err
	}
}

// splitDashArgs separates positional arguments from the builder
// passthrough arguments after --.
func splitDashArgs(cmd *cobra.Command, args []string) (dirArgs, passthrough []string) {
	if n := cmd.ArgsLenAtDash(); n >= 0 {
		return args[:n], args[n:]
	}
	return args, nil
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/bizstore/cmd/bizstore/cli"
	"github.com/odyssey-erp/bizstore/internal/app"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCommand().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "bizstore",
		Short:        "Offline-first document sync API for small business records",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}
	root.AddCommand(serveCommand(), jobsCommand(), cacheCommand())
	return root
}

func serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}
}

func serve(ctx context.Context) error {
	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		return err
	}
	logger := app.NewLogger(cfg)

	container, err := app.Build(ctx, cfg, logger, app.Deps{})
	if err != nil {
		logger.Error("build services", slog.Any("error", err))
		return err
	}
	defer func() {
		if err := container.Close(); err != nil {
			logger.Warn("close services", slog.Any("error", err))
		}
	}()

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      container.Router(),
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("backend", cfg.RemoteBackend))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			logger.Error("http server", slog.Any("error", err))
			return err
		}
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
		return err
	}
	return nil
}

func jobsCommand() *cobra.Command {
	var redisAddr string
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect the audit sync queue",
	}
	cmd.PersistentFlags().StringVar(&redisAddr, "redis", envOr("REDIS_ADDR", "127.0.0.1:6379"), "redis address of the task queue")

	withJobs := func(fn func(context.Context, *cli.JobsCLI, *cobra.Command) error) func(*cobra.Command, []string) error {
		return func(c *cobra.Command, _ []string) error {
			jobsCLI, err := cli.NewJobsCLI(redisAddr)
			if err != nil {
				return err
			}
			defer jobsCLI.Close()
			return fn(c.Context(), jobsCLI, c)
		}
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Print queue counters",
		RunE: withJobs(func(ctx context.Context, j *cli.JobsCLI, c *cobra.Command) error {
			stats, err := j.InspectQueue(ctx)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(c.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(stats)
		}),
	})
	var limit int
	archived := &cobra.Command{
		Use:   "archived",
		Short: "List audit sync tasks that exhausted their retries",
		RunE: withJobs(func(ctx context.Context, j *cli.JobsCLI, c *cobra.Command) error {
			tasks, err := j.ListArchived(ctx, limit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(c.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tRETRIED\tLAST FAILED\tERROR")
			for _, t := range tasks {
				fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", t.ID, t.Retried, t.LastFailedAt.Format(time.RFC3339), t.LastErr)
			}
			return tw.Flush()
		}),
	}
	archived.Flags().IntVar(&limit, "limit", 20, "maximum tasks to list")
	cmd.AddCommand(archived)
	cmd.AddCommand(&cobra.Command{
		Use:   "retry",
		Short: "Requeue archived audit sync tasks",
		RunE: withJobs(func(ctx context.Context, j *cli.JobsCLI, c *cobra.Command) error {
			n, err := j.RetryArchived(ctx)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(c.OutOrStdout(), "requeued %d task(s)\n", n)
			return err
		}),
	})
	return cmd
}

func cacheCommand() *cobra.Command {
	opts := cli.CacheStatusOptions{}
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect the device cache",
	}
	status := &cobra.Command{
		Use:   "status",
		Short: "List cached documents and flag unreadable ones",
		RunE: func(c *cobra.Command, _ []string) error {
			opts.Stdout = c.OutOrStdout()
			opts.Stderr = c.ErrOrStderr()
			if code := cli.CacheStatusCommand(opts); code != 0 {
				return fmt.Errorf("cache status exited with %d", code)
			}
			return nil
		},
	}
	status.Flags().StringVar(&opts.Dir, "dir", envOr("CACHE_DIR", "./.bizstore-cache"), "cache directory")
	status.Flags().StringVar(&opts.Prefix, "prefix", envOr("CACHE_PREFIX", "bizstore_"), "cache file prefix")
	status.Flags().BoolVar(&opts.JSONOutput, "json", false, "print JSON")
	cmd.AddCommand(status)
	return cmd
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

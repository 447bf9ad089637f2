// Package app composes the store, engine services and HTTP server behind one cobra command.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"cafepos/pkg/config"
	"cafepos/pkg/logging"
	"cafepos/pkg/telemetry"
	"cafepos/pkg/version"
)

// flags captures CLI overrides for the configuration file.
type flags struct {
	configPath  string
	showVersion bool
	domain      string
	port        int
	dbType      string
	dbPath      string
	seedFile    string
	logLevel    string
}

// Run parses args and serves until ctx is cancelled.
func Run(ctx context.Context, args []string, out io.Writer) error {
	cmd := Command(out)
	cmd.SetArgs(args)
	return cmd.ExecuteContext(ctx)
}

// Command builds the root command so several entry points can share it.
func Command(out io.Writer) *cobra.Command {
	var f flags
	cmd := &cobra.Command{
		Use:           "cafepos",
		Short:         "Stock-aware café point of sale service",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if f.showVersion {
				fmt.Fprintf(cmd.OutOrStdout(), "cafepos version %s\n", version.Version())
				return nil
			}
			cfg, err := f.resolve(cmd)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
	if out != nil {
		cmd.SetOut(out)
	}

	fs := cmd.Flags()
	fs.StringVar(&f.configPath, "config", "", "Path to a YAML configuration file")
	fs.BoolVar(&f.showVersion, "version", false, "Show the application version")
	fs.StringVar(&f.domain, "domain", "", "Serve HTTPS on 443 with a redirect on 80 for this domain")
	fs.IntVar(&f.port, "port", 8765, "Port for the HTTP server when not using --domain")
	fs.StringVar(&f.dbType, "db-type", config.DriverBadger, "Store driver: badger or memory")
	fs.StringVar(&f.dbPath, "db-path", "", "Directory for badger data or file for memory snapshots")
	fs.StringVar(&f.seedFile, "seed", "", "YAML catalog seed applied at start")
	fs.StringVar(&f.logLevel, "log-level", "", "Log level: debug, info, warn or error")
	return cmd
}

// resolve loads the configuration file and applies the flags the caller set explicitly.
func (f flags) resolve(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return config.Config{}, err
	}
	changed := cmd.Flags().Changed
	if changed("domain") {
		cfg.HTTP.Domain = f.domain
	}
	if changed("port") {
		cfg.HTTP.Port = f.port
	}
	if changed("db-type") {
		cfg.Store.Driver = f.dbType
	}
	if changed("db-path") {
		cfg.Store.Path = f.dbPath
	}
	if changed("seed") {
		cfg.SeedFile = f.seedFile
	}
	if changed("log-level") {
		cfg.Log.Level = f.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// serve builds the engine and runs the HTTP servers until ctx is done.
func serve(ctx context.Context, cfg config.Config) error {
	cfg.Log.Service = "cafepos"
	logger, closer, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer closer.Close()

	cfg.Tracing.ServiceName = "cafepos"
	cfg.Tracing.ServiceVersion = version.Version()
	shutdownTracing, err := telemetry.InitTracing(ctx, cfg.Tracing)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer shutdownTracing(context.Background())

	gin.SetMode(gin.ReleaseMode)
	engine, err := Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer engine.Close()

	if cfg.HTTP.Domain != "" {
		logger.Info("starting HTTPS servers", slog.String("domain", cfg.HTTP.Domain))
		return runDomainServers(ctx, cfg, engine.Handler(), logger)
	}

	server := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.HTTP.Port),
		Handler:      engine.Handler(),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}
	logger.Info("cafepos is running", slog.String("addr", server.Addr), slog.String("version", version.Version()))
	return runServers(ctx, logger, listener{server: server})
}

// listener is one server of the process and how to start it.
type listener struct {
	server *http.Server
	tls    bool
}

// runServers serves every listener and shuts them all down when ctx ends or one fails.
func runServers(ctx context.Context, logger *slog.Logger, listeners ...listener) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, l := range listeners {
		l := l
		g.Go(func() error {
			var err error
			if l.tls {
				err = l.server.ListenAndServeTLS("", "")
			} else {
				err = l.server.ListenAndServe()
			}
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server %s stopped unexpectedly: %w", l.server.Addr, err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		for _, l := range listeners {
			if err := l.server.Shutdown(shutdownCtx); err != nil {
				logger.Warn("server shutdown failed", slog.String("addr", l.server.Addr), slog.String("error", err.Error()))
			}
		}
		return nil
	})
	return g.Wait()
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"replicator/internal/config"
	"replicator/internal/coordinator"
	"replicator/internal/replica"
	"replicator/internal/server"
)

const shutdownTimeout = 10 * time.Second

type serveFlags struct {
	configPath string
	listen     string
	metrics    string
	replicas   string
	mode       string
	logEnv     string
}

func newRootCommand() *cobra.Command {
	var flags serveFlags
	cmd := &cobra.Command{
		Use:          "replicatord",
		Short:        "Leader that replicates writes to followers under async, sync or semi-sync policies",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}

	f := cmd.Flags()
	f.StringVar(&flags.configPath, "config", "", "Path to a YAML config file")
	f.StringVar(&flags.listen, "listen", "", "gRPC listen address (overrides config)")
	f.StringVar(&flags.metrics, "metrics-listen", "", "Address serving Prometheus /metrics (overrides config)")
	f.StringVar(&flags.replicas, "replicas", "", "Comma-separated replica IDs (overrides config)")
	f.StringVar(&flags.mode, "mode", "", "Default replication mode: async, sync or semi-sync (overrides config)")
	f.StringVar(&flags.logEnv, "log-env", "", "Logging environment: prod, staging or dev (overrides config)")

	cmd.AddCommand(newSubmitCommand())
	return cmd
}

// loadConfig reads the config file, if any, and applies the flags that were
// set explicitly.
func loadConfig(cmd *cobra.Command, flags serveFlags) (*config.Config, error) {
	cfg := config.Default()
	if flags.configPath != "" {
		loaded, err := config.Load(flags.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	changed := cmd.Flags().Changed
	if changed("listen") {
		cfg.ListenAddr = flags.listen
	}
	if changed("metrics-listen") {
		cfg.MetricsAddr = flags.metrics
	}
	if changed("replicas") {
		ids, err := config.ParseReplicas(flags.replicas)
		if err != nil {
			return nil, fmt.Errorf("invalid --replicas: %w", err)
		}
		cfg.Replicas = ids
	}
	if changed("mode") {
		cfg.DefaultMode = flags.mode
	}
	if changed("log-env") {
		cfg.LogEnv = flags.logEnv
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger, err := cfg.Logger()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	replicas := cfg.BuildReplicas(nil, logger)
	coord := coordinator.New(replica.Set(replicas...), coordinator.WithLogger(logger))
	srv := server.New(coord, cfg.DefaultMode, logger)

	lis, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.ListenAddr, err)
	}

	logger.Info("Starting coordinator",
		zap.String("addr", lis.Addr().String()),
		zap.Strings("replicas", cfg.Replicas),
		zap.String("default_mode", cfg.DefaultMode))

	errCh := make(chan error, 2)
	go func() {
		errCh <- srv.Serve(lis)
	}()

	var metricsSrv *http.Server
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(coord.Metrics().Gatherer(), promhttp.HandlerOpts{}))
		metricsSrv = &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("metrics server: %w", err)
			}
		}()
		logger.Info("Serving metrics", zap.String("addr", cfg.MetricsAddr))
	}

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutting down")
	case runErr = <-errCh:
		logger.Error("Server stopped unexpectedly", zap.Error(runErr))
	}

	srv.Stop()
	closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(closeCtx)
	}
	if err := coord.Close(closeCtx); err != nil {
		if !errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		logger.Warn("Replica calls still outstanding at shutdown", zap.Error(err))
	}
	return runErr
}

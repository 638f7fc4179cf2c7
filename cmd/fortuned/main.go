package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/example/fortune/internal/config"
	"github.com/example/fortune/internal/platform/logging"
	"github.com/example/fortune/internal/platform/metrics"
	"github.com/example/fortune/internal/platform/telemetry"
	"github.com/example/fortune/internal/platform/tracing"
	"github.com/example/fortune/pkg/fortune/rotation"
)

const serviceName = "fortuned"

var version = "dev"

type flags struct {
	configPath string
	addr       string
	source     string
	slice      float64
	logLevel   string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", serviceName, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var f flags
	cmd := &cobra.Command{
		Use:           serviceName,
		Short:         "Serve a random fortune that rotates on a fixed time slice",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveConfig(cmd, f)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg)
		},
	}

	bindFlags(cmd, &f)
	return cmd
}

func bindFlags(cmd *cobra.Command, f *flags) {
	cmd.Flags().StringVarP(&f.configPath, "config", "c", os.Getenv("FORTUNE_CONFIG_PATH"), "Path to TOML config file")
	cmd.Flags().StringVar(&f.addr, "addr", "", "HTTP listen address")
	cmd.Flags().StringVar(&f.source, "source", "", "Path to the fortunes CSV file")
	cmd.Flags().Float64Var(&f.slice, "slice", 0, "Rotation time slice in seconds")
	cmd.Flags().StringVar(&f.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
}

// resolveConfig loads the file and env layers, then applies explicitly set flags.
func resolveConfig(cmd *cobra.Command, f flags) (*config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("addr") {
		cfg.Server.Address = f.addr
	}
	if cmd.Flags().Changed("source") {
		cfg.Source.Path = f.source
		cfg.Source.Vault.Path = ""
	}
	if cmd.Flags().Changed("slice") {
		cfg.Rotation.SliceSeconds = f.slice
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Logging.Level = f.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func run(ctx context.Context, cfg *config.Config) error {
	logger, cleanup, err := logging.Global(logging.Config{
		ServiceName:        serviceName,
		Environment:        cfg.Logging.Environment,
		Level:              cfg.Logging.Level,
		OutputPaths:        cfg.Logging.OutputPaths,
		ErrorOutput:        cfg.Logging.ErrorOutput,
		SamplingInitial:    cfg.Logging.SamplingInitial,
		SamplingThereafter: cfg.Logging.SamplingThereafter,
		RedactionRules:     logging.DefaultRedactions,
	})
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = cleanup(flushCtx)
	}()

	res, err := telemetry.Resource(telemetry.Service{
		Name:        serviceName,
		Version:     version,
		Environment: cfg.Logging.Environment,
		Attributes:  cfg.Telemetry.Attributes,
	})
	if err != nil {
		logger.Error("init telemetry resource", zap.Error(err))
		return err
	}
	userAgent := serviceName + "/" + version

	meterProvider, err := metrics.New(ctx, metrics.Config{
		Collector: telemetry.Collector{
			Endpoint:  cfg.Metrics.Endpoint,
			Insecure:  cfg.Metrics.Insecure,
			Timeout:   cfg.Metrics.Timeout,
			Headers:   cfg.Metrics.Headers,
			UserAgent: userAgent,
		},
		Resource: res,
		Interval: cfg.Metrics.Interval,
	})
	if err != nil {
		logger.Error("init metrics", zap.Error(err))
		return err
	}
	defer shutdown(logger, "metrics", meterProvider.Shutdown)

	tracerProvider, err := tracing.New(ctx, tracing.Config{
		Collector: telemetry.Collector{
			Endpoint:  cfg.Tracing.Endpoint,
			Insecure:  cfg.Tracing.Insecure,
			Timeout:   cfg.Tracing.Timeout,
			Headers:   cfg.Tracing.Headers,
			UserAgent: userAgent,
		},
		Resource:    res,
		SampleRatio: cfg.Tracing.SampleRatio,
	})
	if err != nil {
		logger.Error("init tracing", zap.Error(err))
		return err
	}
	defer shutdown(logger, "tracing", tracerProvider.Shutdown)

	store, err := loadStore(ctx, cfg.Source, cfg.Policy, logger)
	if err != nil {
		logger.Error("load fortunes", zap.Error(err))
		return err
	}
	logger.Info("fortune store ready", zap.Int("records", store.Len()))

	instruments, err := metrics.NewFortune(meterProvider.Meter(serviceName), store.Len)
	if err != nil {
		logger.Error("init fortune instruments", zap.Error(err))
		return err
	}
	defer instruments.Close()

	selector, err := rotation.New(store, cfg.Rotation.Slice(),
		rotation.WithObserver(func(r rotation.Reroll) {
			instruments.Reroll(context.Background())
			logger.Debug("fortune rerolled",
				zap.Int64("bucket", r.Bucket),
				zap.Int64("previous_bucket", r.Previous),
				zap.Int("index", r.Index),
			)
		}),
	)
	if err != nil {
		logger.Error("init selector", zap.Error(err))
		return err
	}

	srv, err := NewFortuneServer(ServerConfig{
		Address:      cfg.Server.Address,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		Logger:       logger,
		Metrics:      instruments,
		Tracer:       tracerProvider.Tracer(serviceName),
	}, selector)
	if err != nil {
		logger.Error("init server", zap.Error(err))
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	logger.Info("fortuned listening",
		zap.String("addr", cfg.Server.Address),
		zap.Duration("slice", selector.Interval()),
	)

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", zap.Error(err))
			serveErr = err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
	logger.Info("fortuned stopped")
	return serveErr
}

func shutdown(logger *zap.Logger, name string, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := fn(ctx); err != nil {
		logger.Warn("shutdown failed", zap.String("component", name), zap.Error(err))
	}
}

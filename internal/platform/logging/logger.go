package logging

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config captures logger bootstrap options. Paths accept anything zap.Open
// does: "stdout", "stderr" or a file path.
type Config struct {
	ServiceName        string
	Environment        string
	Level              string
	OutputPaths        []string
	ErrorOutput        []string
	SamplingInitial    int
	SamplingThereafter int
	RedactionRules     []RedactionRule
}

// ParseLevel validates a textual level. Empty means info.
func ParseLevel(text string) (zapcore.Level, error) {
	level := zap.InfoLevel
	if text == "" {
		return level, nil
	}
	if err := level.UnmarshalText([]byte(strings.ToLower(text))); err != nil {
		return level, fmt.Errorf("logging: invalid level %q: %w", text, err)
	}
	return level, nil
}

// Global builds the process logger. The returned cleanup flushes buffered
// entries and closes any files opened for output; call it once on shutdown.
func Global(cfg Config) (*zap.Logger, func(context.Context) error, error) {
	if cfg.ServiceName == "" {
		return nil, nil, errors.New("logging: service name must be provided")
	}
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}
	scrub, err := newRedactor(cfg.RedactionRules)
	if err != nil {
		return nil, nil, fmt.Errorf("logging: %w", err)
	}

	out, closeOut, err := zap.Open(orDefault(cfg.OutputPaths, "stdout")...)
	if err != nil {
		return nil, nil, fmt.Errorf("logging: open outputs: %w", err)
	}
	errOut, closeErrOut, err := zap.Open(orDefault(cfg.ErrorOutput, "stderr")...)
	if err != nil {
		closeOut()
		return nil, nil, fmt.Errorf("logging: open error outputs: %w", err)
	}

	var core zapcore.Core = zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig()), out, level)
	if cfg.SamplingInitial > 0 && cfg.SamplingThereafter > 0 {
		core = zapcore.NewSamplerWithOptions(core, time.Second, cfg.SamplingInitial, cfg.SamplingThereafter)
	}
	if len(scrub) > 0 {
		core = &redactingCore{Core: core, scrub: scrub}
	}

	logger := zap.New(core,
		zap.AddCaller(),
		zap.ErrorOutput(errOut),
		zap.Fields(
			zap.String("svc", cfg.ServiceName),
			zap.String("env", cfg.Environment),
		),
	)

	cleanup := func(ctx context.Context) error {
		done := make(chan error, 1)
		go func() {
			err := logger.Sync()
			closeOut()
			closeErrOut()
			done <- err
		}()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-done:
			return ignoreSyncOnTTY(err)
		}
	}
	return logger, cleanup, nil
}

func encoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeDuration = zapcore.MillisDurationEncoder
	return cfg
}

func orDefault(paths []string, fallback string) []string {
	if len(paths) == 0 {
		return []string{fallback}
	}
	return paths
}

// ignoreSyncOnTTY drops the EINVAL/ENOTTY errors fsync returns for terminals
// and pipes, which say nothing about lost entries.
func ignoreSyncOnTTY(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, syscall.EINVAL) || errors.Is(err, syscall.ENOTTY) {
		return nil
	}
	return err
}

type contextKey struct{}

// Inject attaches logger to context.
func Inject(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, logger)
}

// From extracts the request logger, or fallback when none was injected.
func From(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	if logger, ok := ctx.Value(contextKey{}).(*zap.Logger); ok {
		return logger
	}
	return fallback
}

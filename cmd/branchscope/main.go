package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/cam3ron2/branchscope/internal/app"
	"github.com/cam3ron2/branchscope/internal/config"
	"github.com/cam3ron2/branchscope/internal/output"
	"github.com/cam3ron2/branchscope/internal/telemetry"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	root := newRootCommand(os.Stdout, os.Stderr)
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "branchscope: %v\n", err)
		os.Exit(1)
	}
}

// rootOptions holds the persistent flags shared by every command.
type rootOptions struct {
	configPath string
	logLevel   string
	noColor    bool
	json       bool

	stdout io.Writer
	stderr io.Writer
}

// session is the wired state one command runs against.
type session struct {
	cfg       *config.Config
	logger    *zap.Logger
	services  *app.Services
	telemetry telemetry.Runtime
}

// open loads configuration, builds the logger and wires services. Commands
// other than serve log at warn unless --log-level says otherwise.
func (o *rootOptions) open(ctx context.Context, serving bool) (*session, error) {
	cfg, err := config.LoadFile(o.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	level := cfg.Server.LogLevel
	if !serving {
		level = "warn"
	}
	if strings.TrimSpace(o.logLevel) != "" {
		level = o.logLevel
	}
	logger, err := buildLogger(level)
	if err != nil {
		return nil, err
	}

	telemetryRuntime, err := telemetry.Setup(telemetry.Config{
		Enabled:          cfg.Telemetry.OTELEnabled,
		ServiceName:      "branchscope",
		ExporterEndpoint: cfg.Telemetry.OTELExporterEndpoint,
		TraceMode:        cfg.Telemetry.OTELTraceMode,
		TraceSampleRatio: cfg.Telemetry.OTELTraceSampleRatio,
	})
	if err != nil {
		syncLogger(logger)
		return nil, fmt.Errorf("setup telemetry: %w", err)
	}

	services, err := app.NewServices(ctx, cfg, logger)
	if err != nil {
		shutdownTelemetry(telemetryRuntime)
		syncLogger(logger)
		return nil, err
	}
	return &session{
		cfg:       cfg,
		logger:    logger,
		services:  services,
		telemetry: telemetryRuntime,
	}, nil
}

// Close releases services, flushes spans and syncs the logger.
func (s *session) Close() {
	if err := s.services.Close(); err != nil {
		s.logger.Warn("failed to close services", zap.Error(err))
	}
	shutdownTelemetry(s.telemetry)
	syncLogger(s.logger)
}

func (o *rootOptions) applyColor() {
	if f, ok := o.stdout.(*os.File); ok {
		output.AutoColor(o.noColor, f)
		return
	}
	output.SetNoColor(true)
}

func buildLogger(level string) (*zap.Logger, error) {
	loggerConfig := zap.NewProductionConfig()
	loggerConfig.Level = zap.NewAtomicLevelAt(logLevel(level))
	logger, err := loggerConfig.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, nil
}

func syncLogger(logger *zap.Logger) {
	if err := logger.Sync(); err != nil && !shouldIgnoreLoggerSyncError(err) {
		_, _ = fmt.Fprintf(os.Stderr, "branchscope: sync logger: %v\n", err)
	}
}

func shutdownTelemetry(runtime telemetry.Runtime) {
	if runtime.Shutdown == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = runtime.Shutdown(shutdownCtx)
}

func logLevel(raw string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// shouldIgnoreLoggerSyncError reports the errors stderr returns on Sync when it
// is a terminal or pipe.
func shouldIgnoreLoggerSyncError(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, syscall.EINVAL) || errors.Is(err, syscall.ENOTTY)
}

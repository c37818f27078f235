// Package logger wraps slog with sampling, run counters and optional
// OpenTelemetry export.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"sync/atomic"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Type alias for slog.Level for easier usage
type Level = slog.Level

const (
	LevelTrace   = slog.Level(-8)
	LevelDebug   = slog.LevelDebug // -4
	LevelInfo    = slog.LevelInfo  // 0
	LevelWarning = slog.LevelWarn  // 4
	LevelError   = slog.LevelError // 8
	LevelFatal   = slog.Level(12)  // 12
)

var (
	Logger          *slog.Logger
	errorSampleRate int32 = 1 // Log every error by default (configurable via ERROR_SAMPLE_RATE)
	programLevel          = new(slog.LevelVar)
	shutdownFunc    func(context.Context) error // Shutdown function for OTEL (nil if not using OTEL)
)

// Counters for the metrics endpoint (incremented regardless of sampling)
var (
	TotalErrors    atomic.Int64
	TotalWarnings  atomic.Int64
	Total5xxErrors atomic.Int64
	Total4xxErrors atomic.Int64
	Total400Errors atomic.Int64
	Total404Errors atomic.Int64
	SlowRequests   atomic.Int64

	// Transformation runs
	TotalRuns            atomic.Int64
	TotalRuleSetupErrors atomic.Int64
	TotalRowErrors       atomic.Int64
)

func init() {
	programLevel.Set(slog.LevelInfo)

	// Get log level from environment variable (default: INFO)
	levelStr := os.Getenv("LOG_LEVEL")
	if levelStr == "" {
		levelStr = "INFO"
	}

	level, err := ParseLevel(levelStr)
	if err != nil {
		level = slog.LevelInfo
	}
	programLevel.Set(level)

	// Get error sample rate (default: 1 = every error/warning logged)
	// Set ERROR_SAMPLE_RATE=100 to log 1%
	if sampleStr := os.Getenv("ERROR_SAMPLE_RATE"); sampleStr != "" {
		if rate, err := strconv.Atoi(sampleStr); err == nil && rate > 0 {
			atomic.StoreInt32(&errorSampleRate, int32(rate))
		}
	}

	// Check if OpenTelemetry is enabled
	otelEnabled := strings.ToLower(os.Getenv("OTEL_ENABLED")) == "true"

	if otelEnabled {
		// Use OpenTelemetry logging
		serviceName := os.Getenv("OTEL_SERVICE_NAME")
		if serviceName == "" {
			serviceName = "derive"
		}

		shutdown, err := setupOTELLogging(context.Background(), serviceName)
		if err != nil {
			// Fall back to JSON handler if OTEL setup fails
			fmt.Fprintf(os.Stderr, "Failed to setup OTEL logging, falling back to JSON: %v\n", err)
			setupJSONLogging()
		} else {
			shutdownFunc = shutdown
		}
	} else {
		setupJSONLogging()
	}
}

// setupJSONLogging configures JSON logging to stdout
func setupJSONLogging() {
	SetOutput(os.Stdout)
}

// SetOutput redirects JSON logging to w. It has no effect with OTEL enabled.
func SetOutput(w io.Writer) {
	if shutdownFunc != nil {
		return
	}
	Logger = slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: programLevel}))
	slog.SetDefault(Logger)
}

// setupOTELLogging configures OpenTelemetry logging
func setupOTELLogging(ctx context.Context, serviceName string) (func(context.Context) error, error) {
	// Resource = service identity
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	// OTLP log exporter (gRPC)
	exporter, err := otlploggrpc.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	// Log processor (batching is recommended)
	processor := sdklog.NewBatchProcessor(exporter)

	// LoggerProvider
	loggerProvider := sdklog.NewLoggerProvider(
		sdklog.WithResource(res),
		sdklog.WithProcessor(processor),
	)

	// Bridge slog → OTel
	otelHandler := otelslog.NewHandler(
		serviceName,
		otelslog.WithLoggerProvider(loggerProvider),
	)

	// Wrap with level filtering
	handler := &levelHandler{
		level:   programLevel,
		handler: otelHandler,
	}

	// Create and set logger
	Logger = slog.New(handler)
	slog.SetDefault(Logger)

	// Return shutdown hook
	return loggerProvider.Shutdown, nil
}

// levelHandler wraps a handler to filter by level
type levelHandler struct {
	level   slog.Leveler
	handler slog.Handler
}

func (h *levelHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *levelHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.handler.Handle(ctx, r)
}

func (h *levelHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &levelHandler{level: h.level, handler: h.handler.WithAttrs(attrs)}
}

func (h *levelHandler) WithGroup(name string) slog.Handler {
	return &levelHandler{level: h.level, handler: h.handler.WithGroup(name)}
}

// Shutdown gracefully shuts down the logger (only needed when using OTEL)
// Call this during application shutdown
func Shutdown(ctx context.Context) error {
	if shutdownFunc != nil {
		return shutdownFunc(ctx)
	}
	return nil
}

// SetLevel sets the minimum log level for the logger
func SetLevel(level slog.Level) {
	programLevel.Set(level)
}

// GetLevel returns the current minimum log level
func GetLevel() slog.Level {
	return programLevel.Level()
}

// ParseLevel converts a string level name to slog.Level
func ParseLevel(levelStr string) (slog.Level, error) {
	switch strings.ToUpper(levelStr) {
	case "TRACE":
		return LevelTrace, nil
	case "DEBUG":
		return LevelDebug, nil
	case "INFO":
		return LevelInfo, nil
	case "WARN", "WARNING":
		return LevelWarning, nil
	case "ERROR":
		return LevelError, nil
	case "FATAL":
		return LevelFatal, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level: %s (defaulting to INFO)", levelStr)
	}
}

// SetLevelFromEnv sets the log level from an environment variable
// If the environment variable is not set or invalid, defaultLevel is used
func SetLevelFromEnv(envVarName string, defaultLevel slog.Level) {
	levelStr := os.Getenv(envVarName)
	if levelStr == "" {
		programLevel.Set(defaultLevel)
		return
	}

	level, err := ParseLevel(levelStr)
	if err != nil {
		// Use default level if parsing fails
		programLevel.Set(defaultLevel)
		return
	}
	programLevel.Set(level)
}

// shouldSample returns true if we should log this message
// Uses sampling to reduce log volume (1 out of every N messages)
// This works with both JSON and OTEL logging modes
func shouldSample() bool {
	rate := atomic.LoadInt32(&errorSampleRate)
	if rate <= 1 {
		return true // Always log if rate is 1 or less
	}
	return rand.Intn(int(rate)) == 0
}

// Debug logs a debug-level message (always logged, never sampled)
func Debug(msg string, args ...any) {
	Logger.Debug(msg, args...)
}

// Info logs an info-level message (always logged, never sampled)
func Info(msg string, args ...any) {
	Logger.Info(msg, args...)
}

// Warn logs a sampled warning. The counter always moves.
func Warn(msg string, args ...any) {
	TotalWarnings.Add(1)
	if shouldSample() {
		Logger.Warn(msg, args...)
	}
}

// Error logs a sampled error. The counter always moves.
func Error(msg string, args ...any) {
	TotalErrors.Add(1)
	if shouldSample() {
		Logger.Error(msg, args...)
	}
}

// Fatal logs a fatal-level message and exits (always logged, never sampled)
func Fatal(msg string, args ...any) {
	slog.Log(context.Background(), LevelFatal, msg, args...)
	// Shutdown OTEL if enabled before exiting
	if shutdownFunc != nil {
		_ = shutdownFunc(context.Background())
	}
	os.Exit(1)
}

// ErrorHttp5xx counts a 5xx response
func ErrorHttp5xx() {
	Total5xxErrors.Add(1)
	TotalErrors.Add(1)
}

// WarnHttp4xx counts a 4xx response
func WarnHttp4xx(status int) {
	Total4xxErrors.Add(1)
	TotalWarnings.Add(1)

	// Track specific common 4xx codes
	switch status {
	case 400:
		Total400Errors.Add(1)
	case 404:
		Total404Errors.Add(1)
	}
}

// WarnSlowRequest counts a request over the slow threshold
func WarnSlowRequest() {
	SlowRequests.Add(1)
	TotalWarnings.Add(1)
}

// RecordRun counts a finished transformation run
func RecordRun(setupErrors, rowErrors int) {
	TotalRuns.Add(1)
	TotalRuleSetupErrors.Add(int64(setupErrors))
	TotalRowErrors.Add(int64(rowErrors))
}

// Counters returns a snapshot of every counter
func Counters() map[string]int64 {
	return map[string]int64{
		"errors":            TotalErrors.Load(),
		"warnings":          TotalWarnings.Load(),
		"http_5xx":          Total5xxErrors.Load(),
		"http_4xx":          Total4xxErrors.Load(),
		"http_400":          Total400Errors.Load(),
		"http_404":          Total404Errors.Load(),
		"slow_requests":     SlowRequests.Load(),
		"runs":              TotalRuns.Load(),
		"rule_setup_errors": TotalRuleSetupErrors.Load(),
		"row_errors":        TotalRowErrors.Load(),
	}
}

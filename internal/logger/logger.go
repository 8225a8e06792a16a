package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"time"

	"options-momentum-bot/internal/trace"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
)

var (
	// Global logger instance; usable before Init so tests and CLIs can log.
	globalLogger = slog.Default()
	// Log level controlled by environment variable
	logLevel slog.Level
	// Whether detailed logging is enabled
	detailedLogging bool
	// Paper or live marker attached to every record
	tradingMode string
)

// LogConfig holds logging configuration
type LogConfig struct {
	Level           string // DEBUG, INFO, WARN, ERROR
	Format          string // json or text
	DetailedLogging bool   // Enable detailed logs
	Mode            string // PAPER or LIVE, attached as "mode"
	Output          io.Writer
}

// Init initializes the global logger based on environment variables
func Init() error {
	config := LoadConfigFromEnv()
	return InitWithConfig(config)
}

// LoadConfigFromEnv loads logging configuration from environment variables
func LoadConfigFromEnv() LogConfig {
	return LogConfig{
		Level:           getEnvOrDefault("LOG_LEVEL", "INFO"),
		Format:          getEnvOrDefault("LOG_FORMAT", "json"),
		DetailedLogging: getEnvOrDefault("LOG_DETAILED", "false") == "true",
	}
}

// InitWithConfig initializes the logger with specific configuration
func InitWithConfig(config LogConfig) error {
	logLevel = parseLogLevel(config.Level)
	detailedLogging = config.DetailedLogging
	tradingMode = strings.ToUpper(config.Mode)

	// Source is added manually in logWithTrace to get the real caller
	opts := &slog.HandlerOptions{
		Level:     logLevel,
		AddSource: false,
	}

	out := config.Output
	if out == nil {
		out = os.Stdout
	}

	var handler slog.Handler
	if config.Format == "json" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}

	globalLogger = slog.New(handler)
	if tradingMode != "" {
		globalLogger = globalLogger.With("mode", tradingMode)
	}
	slog.SetDefault(globalLogger)
	return nil
}

// SetMode tags subsequent records with the trading mode.
func SetMode(mode string) {
	tradingMode = strings.ToUpper(mode)
	globalLogger = globalLogger.With("mode", tradingMode)
}

// parseLogLevel converts string log level to slog.Level
func parseLogLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getTraceAttrs extracts trace ID and span ID from context for logging
func getTraceAttrs(ctx context.Context) []any {
	traceID, spanID, ok := trace.GetTraceFields(ctx)
	if !ok {
		return nil
	}
	return []any{"trace_id", traceID, "span_id", spanID}
}

// Debug logs a debug message
func Debug(ctx context.Context, msg string, args ...any) {
	if !detailedLogging {
		return
	}
	logWithTrace(ctx, slog.LevelDebug, msg, 2, args...)
}

// Info logs an info message
func Info(ctx context.Context, msg string, args ...any) {
	logWithTrace(ctx, slog.LevelInfo, msg, 2, args...)
}

// Warn logs a warning message
func Warn(ctx context.Context, msg string, args ...any) {
	logWithTrace(ctx, slog.LevelWarn, msg, 2, args...)
}

// Error logs an error message
func Error(ctx context.Context, msg string, args ...any) {
	logWithTrace(ctx, slog.LevelError, msg, 2, args...)
}

// ErrorWithErr logs an error message with an error object
func ErrorWithErr(ctx context.Context, msg string, err error, args ...any) {
	recordSpanError(ctx, err)
	allArgs := append([]any{"error", err}, args...)
	logWithTrace(ctx, slog.LevelError, msg, 2, allArgs...)
}

// DebugSkip, InfoSkip and ErrorWithErrSkip are for middleware that wants the
// source of its caller rather than its own.
func DebugSkip(ctx context.Context, skip int, msg string, args ...any) {
	if !detailedLogging {
		return
	}
	logWithTrace(ctx, slog.LevelDebug, msg, 2+skip, args...)
}

func InfoSkip(ctx context.Context, skip int, msg string, args ...any) {
	logWithTrace(ctx, slog.LevelInfo, msg, 2+skip, args...)
}

func ErrorWithErrSkip(ctx context.Context, skip int, msg string, err error, args ...any) {
	recordSpanError(ctx, err)
	allArgs := append([]any{"error", err}, args...)
	logWithTrace(ctx, slog.LevelError, msg, 2+skip, allArgs...)
}

func recordSpanError(ctx context.Context, err error) {
	if !trace.Enabled() || err == nil {
		return
	}
	span := oteltrace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// logWithTrace logs a message with trace ID and span ID if available
// skip parameter indicates how many stack frames to skip to get the actual caller
func logWithTrace(ctx context.Context, level slog.Level, msg string, skip int, args ...any) {
	if traceAttrs := getTraceAttrs(ctx); traceAttrs != nil {
		args = append(traceAttrs, args...)
	}

	if detailedLogging {
		if pc, file, line, ok := runtime.Caller(skip); ok {
			if fn := runtime.FuncForPC(pc); fn != nil {
				args = append(args, "source", slog.GroupValue(
					slog.String("function", fn.Name()),
					slog.String("file", file),
					slog.Int("line", line),
				))
			}
		}
	}

	globalLogger.Log(ctx, level, msg, args...)
}

// OperationTimer times one operation under its own span. The span is ended
// exactly once, by End or EndWithError.
type OperationTimer struct {
	ctx    context.Context
	span   oteltrace.Span
	owned  bool
	start  time.Time
	fields []any
}

// StartOperation opens a span named operation and returns a timer whose
// context carries it.
func StartOperation(ctx context.Context, operation string, fields ...any) *OperationTimer {
	owned := trace.Enabled()
	ctx, span := trace.StartSpan(ctx, operation)
	if owned {
		span.SetAttributes(toAttributes(fields)...)
	}

	fields = append([]any{"operation", operation}, fields...)
	Debug(ctx, "Operation started", fields...)

	return &OperationTimer{
		ctx:    ctx,
		span:   span,
		owned:  owned,
		start:  time.Now(),
		fields: fields,
	}
}

func (ot *OperationTimer) with(extra ...any) []any {
	out := make([]any, 0, len(ot.fields)+len(extra)+2)
	out = append(out, ot.fields...)
	out = append(out, "duration_ms", time.Since(ot.start).Milliseconds())
	return append(out, extra...)
}

func (ot *OperationTimer) finish(err error, extra []any) {
	if !ot.owned {
		return
	}
	ot.span.SetAttributes(attribute.Int64("duration_ms", time.Since(ot.start).Milliseconds()))
	ot.span.SetAttributes(toAttributes(extra)...)
	if err != nil {
		ot.span.RecordError(err)
		ot.span.SetStatus(codes.Error, err.Error())
	} else {
		ot.span.SetStatus(codes.Ok, "completed")
	}
	ot.span.End()
}

// End completes the operation.
func (ot *OperationTimer) End(additionalFields ...any) {
	ot.finish(nil, additionalFields)
	Debug(ot.ctx, "Operation completed", ot.with(additionalFields...)...)
}

// EndWithError completes the operation and logs err at error level.
func (ot *OperationTimer) EndWithError(err error, additionalFields ...any) {
	ot.finish(err, additionalFields)
	logWithTrace(ot.ctx, slog.LevelError, "Operation failed", 2, ot.with(append([]any{"error", err}, additionalFields...)...)...)
}

// GetContext returns the context carrying the operation's span.
func (ot *OperationTimer) GetContext() context.Context {
	return ot.ctx
}

func toAttributes(fields []any) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(fields)/2)
	for i := 0; i+1 < len(fields); i += 2 {
		key, ok := fields[i].(string)
		if !ok {
			continue
		}
		switch v := fields[i+1].(type) {
		case string:
			attrs = append(attrs, attribute.String(key, v))
		case int:
			attrs = append(attrs, attribute.Int(key, v))
		case int64:
			attrs = append(attrs, attribute.Int64(key, v))
		case float64:
			attrs = append(attrs, attribute.Float64(key, v))
		case bool:
			attrs = append(attrs, attribute.Bool(key, v))
		}
	}
	return attrs
}

func addSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	if !trace.Enabled() {
		return
	}
	span := oteltrace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		span.AddEvent(name, oteltrace.WithAttributes(attrs...))
	}
}

// Decision logs a strategy decision (always logged regardless of level)
func Decision(ctx context.Context, leg, action string, ltp float64, reason string, fields ...any) {
	addSpanEvent(ctx, "strategy_decision",
		attribute.String("leg", leg),
		attribute.String("action", action),
		attribute.Float64("ltp", ltp),
		attribute.String("reason", reason),
	)

	allFields := append([]any{
		"type", "DECISION",
		"leg", leg,
		"action", action,
		"ltp", ltp,
		"reason", reason,
	}, fields...)
	logWithTrace(ctx, slog.LevelInfo, "Strategy decision", 2, allFields...)
}

// Trade logs a fill (always logged regardless of level)
func Trade(ctx context.Context, instrument, side string, qty int, price float64, orderID string, fields ...any) {
	addSpanEvent(ctx, "trade_executed",
		attribute.String("instrument", instrument),
		attribute.String("side", side),
		attribute.Int("quantity", qty),
		attribute.Float64("price", price),
		attribute.String("order_id", orderID),
	)

	allFields := append([]any{
		"type", "TRADE",
		"instrument", instrument,
		"side", side,
		"quantity", qty,
		"price", price,
		"order_id", orderID,
	}, fields...)
	logWithTrace(ctx, slog.LevelInfo, "Trade executed", 2, allFields...)
}

// Risk logs a risk management event
func Risk(ctx context.Context, instrument, eventType string, fields ...any) {
	addSpanEvent(ctx, "risk_event",
		attribute.String("instrument", instrument),
		attribute.String("event_type", eventType),
	)

	allFields := append([]any{
		"type", "RISK",
		"instrument", instrument,
		"event_type", eventType,
	}, fields...)
	logWithTrace(ctx, slog.LevelWarn, "Risk event", 2, allFields...)
}

package telemetry

import (
	"context"
	"os"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OTELHook adds trace and span IDs to every log entry
type OTELHook struct{}

func (h OTELHook) Run(e *zerolog.Event, level zerolog.Level, msg string) {
	ctx := e.GetCtx()
	if ctx == nil {
		return
	}

	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() {
		return
	}

	e.Str("trace_id", span.SpanContext().TraceID().String())
	e.Str("span_id", span.SpanContext().SpanID().String())

	if level == zerolog.ErrorLevel {
		span.SetStatus(codes.Error, msg)
	}
}

// Logger wraps zerolog with OTEL integration
type Logger struct {
	zerolog.Logger
}

// NewLogger creates a new logger with OTEL hooks
func NewLogger(service string) *Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs

	logger := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", service).
		Logger().
		Hook(OTELHook{})

	return &Logger{Logger: logger}
}

// WithContext returns a logger with context (for trace propagation)
func (l *Logger) WithContext(ctx context.Context) *zerolog.Logger {
	logger := l.Logger.With().Ctx(ctx).Logger()
	return &logger
}

// Convenience methods for enforcement operations

func (l *Logger) LogEnforcement(ctx context.Context, policyID string, ruleCount int, failed int) {
	l.WithContext(ctx).Info().
		Str("policy_id", policyID).
		Int("rules_evaluated", ruleCount).
		Int("rules_failed", failed).
		Str("operation", "enforce").
		Msg("policy enforced")
}

func (l *Logger) LogRuleFailure(ctx context.Context, policyID, ruleID string, err error) {
	l.WithContext(ctx).Error().
		Err(err).
		Str("policy_id", policyID).
		Str("rule_id", ruleID).
		Str("operation", "enforce_rule").
		Msg("rule enforcement failed")
}

func (l *Logger) LogAuditError(ctx context.Context, policyID string, err error) {
	l.WithContext(ctx).Error().
		Err(err).
		Str("policy_id", policyID).
		Str("operation", "audit_append").
		Msg("audit append failed")
}

func (l *Logger) LogPolicyLoaded(ctx context.Context, policyID, name string, ruleCount int) {
	l.WithContext(ctx).Info().
		Str("policy_id", policyID).
		Str("policy_name", name).
		Int("rules", ruleCount).
		Str("operation", "load_policy").
		Msg("policy loaded")
}

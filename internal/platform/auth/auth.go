// Package auth authenticates machine callers: Pub/Sub push deliveries carry
// Google-signed OIDC tokens, integrations sign webhook bodies with HMAC.
package auth

import (
	"context"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/hanko-field/configurator/internal/platform/httpx"
)

const metricNamespace = "github.com/hanko-field/configurator/internal/platform/auth"

// recorder counts verification outcomes by kind and reason.
type recorder struct {
	kind     string
	counter  metric.Int64Counter
	duration metric.Float64Histogram
	logger   *zap.Logger
}

func newRecorder(kind string, logger *zap.Logger) recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	meter := otel.GetMeterProvider().Meter(metricNamespace)
	counter, err := meter.Int64Counter("auth.verifications", metric.WithDescription("Machine caller verification outcomes"))
	if err != nil {
		logger.Warn("unable to register auth.verifications", zap.Error(err))
	}
	duration, err := meter.Float64Histogram("auth.verification.duration", metric.WithUnit("ms"))
	if err != nil {
		logger.Warn("unable to register auth.verification.duration", zap.Error(err))
	}
	return recorder{kind: kind, counter: counter, duration: duration, logger: logger}
}

func (r recorder) record(ctx context.Context, reason string, start time.Time) {
	attrs := metric.WithAttributes(
		attribute.String("kind", r.kind),
		attribute.String("reason", reason),
	)
	if r.counter != nil {
		r.counter.Add(ctx, 1, attrs)
	}
	if r.duration != nil {
		r.duration.Record(ctx, float64(time.Since(start).Microseconds())/1000, attrs)
	}
	if reason != "ok" {
		r.logger.Warn("caller verification failed", zap.String("kind", r.kind), zap.String("reason", reason))
	}
}

func reject(ctx context.Context, w http.ResponseWriter, status int, code, message string) {
	httpx.WriteError(ctx, w, httpx.NewError(code, message, status))
}

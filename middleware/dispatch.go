package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/mnehpets/onerpc/rpc"
)

// outcome labels a finished call: "ok", the rpc.Kind of a dispatch failure,
// or "handler_error".
func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if k, ok := rpc.KindOf(err); ok {
		return k.String()
	}
	return "handler_error"
}

// DispatchLogger logs every call at debug level and failed calls at warn
// level. It works for any caller of the router, not only the HTTP transport.
func DispatchLogger(logger *zap.Logger) rpc.Middleware {
	return func(method string, next rpc.Handler) rpc.Handler {
		return rpc.HandlerFunc(func(ctx context.Context, res rpc.Resources, params json.RawMessage) (json.RawMessage, error) {
			start := time.Now()
			out, err := next.Call(ctx, res, params)
			fields := []zap.Field{
				zap.String("method", method),
				zap.Duration("duration", time.Since(start)),
				zap.String("outcome", outcome(err)),
			}
			if err != nil {
				logger.Warn("rpc dispatch failed", append(fields, zap.Error(err))...)
			} else {
				logger.Debug("rpc dispatch", fields...)
			}
			return out, err
		})
	}
}

// Metrics holds the dispatch collectors.
type Metrics struct {
	calls    *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inflight *prometheus.GaugeVec
}

// NewMetrics creates the dispatch collectors and registers them with reg.
// Collectors already registered by an earlier call are reused.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		calls: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: "onerpc", Name: "calls_total", Help: "RPC calls by method and outcome."},
			[]string{"method", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{Namespace: "onerpc", Name: "call_duration_seconds", Help: "RPC call latency.", Buckets: prometheus.DefBuckets},
			[]string{"method"},
		),
		inflight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Namespace: "onerpc", Name: "calls_in_flight", Help: "RPC calls currently running."},
			[]string{"method"},
		),
	}
	var err error
	if m.calls, err = register(reg, m.calls); err != nil {
		return nil, err
	}
	if m.duration, err = register(reg, m.duration); err != nil {
		return nil, err
	}
	if m.inflight, err = register(reg, m.inflight); err != nil {
		return nil, err
	}
	return m, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// Middleware returns the rpc.Middleware recording each call.
func (m *Metrics) Middleware() rpc.Middleware {
	return func(method string, next rpc.Handler) rpc.Handler {
		return rpc.HandlerFunc(func(ctx context.Context, res rpc.Resources, params json.RawMessage) (json.RawMessage, error) {
			m.inflight.WithLabelValues(method).Inc()
			defer m.inflight.WithLabelValues(method).Dec()

			timer := prometheus.NewTimer(m.duration.WithLabelValues(method))
			out, err := next.Call(ctx, res, params)
			timer.ObserveDuration()
			m.calls.WithLabelValues(method, outcome(err)).Inc()
			return out, err
		})
	}
}

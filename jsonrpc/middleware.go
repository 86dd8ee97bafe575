package jsonrpc

import (
	"context"
	"time"
)

// CallHandler executes one already-parsed call and returns its response.
type CallHandler func(ctx context.Context, req Request) *Response

// CallMiddleware wraps a CallHandler so cross-cutting concerns (timing,
// logging) can be composed around the electrum dispatcher's per-call
// handler without touching the handler itself.
type CallMiddleware func(ctx context.Context, req Request, next CallHandler) *Response

// Chain composes middlewares around a base handler, outermost first.
func Chain(base CallHandler, middlewares ...CallMiddleware) CallHandler {
	handler := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		mw := middlewares[i]
		next := handler
		handler = func(ctx context.Context, req Request) *Response {
			return mw(ctx, req, next)
		}
	}
	return handler
}

// DurationReporter is the subset of metrics.Histogram the timing
// middleware needs, named for its label (the label value, not the
// metric name, since one histogram tracks every method).
type DurationReporter interface {
	Observe(labelValue string, seconds float64)
}

// MetricsMiddleware times every call and reports it under label.
func MetricsMiddleware(reporter DurationReporter, label func(req Request) string) CallMiddleware {
	return func(ctx context.Context, req Request, next CallHandler) *Response {
		start := time.Now()
		resp := next(ctx, req)
		reporter.Observe(label(req), time.Since(start).Seconds())
		return resp
	}
}

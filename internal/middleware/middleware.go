// Package middleware holds the HTTP middleware chain: tracing,
// structured logging, panic recovery, authentication, rate limiting,
// idempotent replay and metrics.
package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"go.opentelemetry.io/otel/trace"

	"licensehub/internal/domain"
	apierrors "licensehub/internal/errors"
	"licensehub/internal/infrastructure"
)

// Correlation assigns each request a trace ID and echoes the caller's
// correlation ID. Should be the first middleware in the chain. An
// active OpenTelemetry span wins over a generated trace ID.
func Correlation(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		traceID := infrastructure.GenerateTraceID()
		if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
			traceID = span.SpanContext().TraceID().String()
		}
		ctx = infrastructure.WithTraceID(ctx, traceID)
		w.Header().Set("X-Trace-ID", traceID)

		corrID := r.Header.Get("X-Correlation-ID")
		if corrID == "" {
			corrID = traceID
		}
		ctx = infrastructure.WithCorrelationID(ctx, corrID)
		w.Header().Set("X-Correlation-ID", corrID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// StructuredLogger logs one line per request with slog. Comes after
// Correlation so the trace ID is attached.
func StructuredLogger(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx := r.Context()

			reqLogger := logger
			if traceID := infrastructure.GetTraceID(ctx); traceID != "" {
				reqLogger = reqLogger.With("trace_id", traceID)
			}

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			reqLogger.InfoContext(ctx, "request completed",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start).String(),
				"remote_addr", r.RemoteAddr,
			)
		})
	}
}

// Recoverer converts panics into 500 responses with the standard error
// envelope.
func Recoverer(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.ErrorContext(r.Context(), "panic recovered",
						"panic", rvr,
						"path", r.URL.Path,
						"stack", string(debug.Stack()),
					)
					apiErr := apierrors.New(http.StatusInternalServerError,
						domain.CodeInternalError, "An internal error occurred")
					_ = render.Render(w, r, apierrors.Envelope(apiErr))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// RenderError writes any error as the standard envelope.
func RenderError(w http.ResponseWriter, r *http.Request, err error) {
	apiErr := apierrors.FromError(err)
	if apiErr.StatusCode >= http.StatusInternalServerError {
		infrastructure.LoggerWithContext(r.Context()).Error("request failed",
			"path", r.URL.Path, "error", err)
	}
	_ = render.Render(w, r, apierrors.Envelope(apiErr))
}

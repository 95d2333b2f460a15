package http

import (
	"context"
	"log/slog"

	"github.com/go-chi/chi/v5"
)

const serviceName = "identity-core"

func httpLogger() *slog.Logger {
	return slog.Default().With(
		"service", serviceName,
		"module", "http",
		"layer", "adapter",
	)
}

// requestFields is the shared prefix for every adapter log line. Query strings
// are left out because OAuth callbacks and reset links carry secrets there.
func requestFields(ctx context.Context, operation, outcome string) []any {
	fields := []any{
		"operation", operation,
		"outcome", outcome,
		"request_id", requestIDFromContext(ctx),
	}
	if rctx := chi.RouteContext(ctx); rctx != nil && rctx.RoutePattern() != "" {
		fields = append(fields, "route", rctx.RoutePattern())
	}
	return fields
}

// logHTTPOperationError records a rejected request. The underlying error is
// only attached for server faults; client errors may echo user input.
func logHTTPOperationError(ctx context.Context, operation string, statusCode int, code, message string, err error) {
	fields := append(requestFields(ctx, operation, "failure"),
		"status_code", statusCode,
		"error_code", code,
		"message", message,
	)
	if statusCode >= 500 {
		if err != nil {
			fields = append(fields, "error", err.Error())
		}
		httpLogger().ErrorContext(ctx, "http operation failed", fields...)
		return
	}
	httpLogger().WarnContext(ctx, "http operation failed", fields...)
}

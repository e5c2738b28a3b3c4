package middleware

import (
	"net/http"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// TracingMiddleware wraps handlers with OpenTelemetry tracing.
func TracingMiddleware(redactSensitive bool) func(http.Handler) http.Handler {
	tracer := otel.Tracer("swift-decryption-gateway")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			// Extract account, container and object from the storage path
			account, container, object := extractStoragePath(r.URL.Path)

			spanName := getSpanName(r.Method, container, object)
			ctx, span := tracer.Start(ctx, spanName,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					semconv.HTTPMethod(r.Method),
					semconv.HTTPScheme(r.URL.Scheme),
					semconv.HTTPTarget(r.URL.Path),
					semconv.HTTPURL(r.URL.String()),
					semconv.HTTPRoute(r.URL.Path),
					attribute.String("http.host", r.Host),
					attribute.String("http.user_agent", r.UserAgent()),
					attribute.String("http.remote_addr", getRemoteAddr(r)),
				),
			)

			if account != "" {
				span.SetAttributes(attribute.String("swift.account", account))
			}
			if container != "" {
				span.SetAttributes(attribute.String("swift.container", container))
			}
			if object != "" && !redactSensitive {
				span.SetAttributes(attribute.String("swift.object", object))
			}

			// Add query parameters (redacted if sensitive)
			if r.URL.RawQuery != "" {
				if redactSensitive {
					span.SetAttributes(attribute.String("http.query", "[REDACTED]"))
				} else {
					span.SetAttributes(attribute.String("http.query", r.URL.RawQuery))
				}
			}

			// Add headers (redact sensitive ones)
			addHeadersToSpan(span, r.Header, redactSensitive)

			// Wrap response writer to capture status code
			rw := &tracingResponseWriter{
				ResponseWriter: w,
				span:           span,
			}

			r = r.WithContext(ctx)

			defer func() {
				span.SetAttributes(
					semconv.HTTPStatusCode(rw.statusCode),
				)

				if rw.statusCode >= 400 {
					span.SetStatus(codes.Error, http.StatusText(rw.statusCode))
				} else {
					span.SetStatus(codes.Ok, "")
				}

				span.End()
			}()

			next.ServeHTTP(rw, r)
		})
	}
}

// extractStoragePath splits a /v1/account/container/object path.
func extractStoragePath(path string) (account, container, object string) {
	path = strings.TrimPrefix(path, "/")

	parts := strings.SplitN(path, "/", 4)
	if len(parts) < 2 || parts[0] != "v1" {
		return "", "", ""
	}
	account = parts[1]
	if len(parts) >= 3 {
		container = parts[2]
	}
	if len(parts) >= 4 {
		object = parts[3]
	}

	return account, container, object
}

// getSpanName generates a span name based on HTTP method and addressed resource.
func getSpanName(method, container, object string) string {
	if container == "" {
		return "HTTP " + method
	}

	switch method {
	case "GET":
		if object == "" {
			return "Swift ListContainer"
		}
		return "Swift GetObject"
	case "HEAD":
		if object == "" {
			return "Swift HeadContainer"
		}
		return "Swift HeadObject"
	case "PUT":
		return "Swift PutObject"
	case "DELETE":
		return "Swift DeleteObject"
	default:
		return "HTTP " + method
	}
}

// getRemoteAddr extracts the real remote address, handling X-Forwarded-For and X-Real-IP
func getRemoteAddr(r *http.Request) string {
	// Check X-Real-IP first (single IP, more trusted than X-Forwarded-For)
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	// Check X-Forwarded-For (may contain multiple IPs)
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx > 0 {
			return strings.TrimSpace(xff[:idx])
		}
		return xff
	}
	return r.RemoteAddr
}

// addHeadersToSpan adds relevant headers to the span, redacting sensitive ones
func addHeadersToSpan(span trace.Span, headers http.Header, redactSensitive bool) {
	// Headers to include (non-sensitive)
	safeHeaders := []string{
		"content-type",
		"content-length",
		"content-encoding",
		"accept",
		"accept-encoding",
		"cache-control",
		"if-match",
		"if-none-match",
		"if-modified-since",
		"if-unmodified-since",
		"range",
		"x-trans-id",
		"x-request-id",
	}

	// Headers to redact
	sensitiveHeaders := []string{
		"authorization",
		"x-auth-token",
		"x-storage-token",
		"cookie",
	}

	for _, header := range safeHeaders {
		if value := headers.Get(header); value != "" {
			span.SetAttributes(attribute.String("http.request.header."+header, value))
		}
	}

	if redactSensitive {
		for _, header := range sensitiveHeaders {
			if value := headers.Get(header); value != "" {
				span.SetAttributes(attribute.String("http.request.header."+header, "[REDACTED]"))
			}
		}
	} else {
		for _, header := range sensitiveHeaders {
			if value := headers.Get(header); value != "" {
				span.SetAttributes(attribute.String("http.request.header."+header, value))
			}
		}
	}
}

// tracingResponseWriter wraps http.ResponseWriter to capture status code for tracing
type tracingResponseWriter struct {
	http.ResponseWriter
	span       trace.Span
	statusCode int
}

func (w *tracingResponseWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *tracingResponseWriter) Write(b []byte) (int, error) {
	if w.statusCode == 0 {
		w.statusCode = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

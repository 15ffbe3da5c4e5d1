package telemetry

import (
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// WithHTTPRoute names the current span after the mux pattern that matches
// the request and tags it with http.route. otelhttp starts the span before
// routing, so the pattern is looked up here.
func WithHTTPRoute(mux *http.ServeMux) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, pattern := mux.Handler(r); pattern != "" {
			span := oteltrace.SpanFromContext(r.Context())
			span.SetName(pattern)
			span.SetAttributes(semconv.HTTPRoute(pattern))
		}
		mux.ServeHTTP(w, r)
	})
}

// ServerHandler instruments h for incoming requests. Spans start out named
// by method only; WithHTTPRoute renames them once the route is known.
func ServerHandler(h http.Handler, operation string, opts ...otelhttp.Option) http.Handler {
	opts = append([]otelhttp.Option{
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return "HTTP " + r.Method
		}),
	}, opts...)
	return otelhttp.NewHandler(h, operation, opts...)
}

// HTTPClient returns a client whose outgoing requests join the caller's trace.
func HTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

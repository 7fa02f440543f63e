package tracing

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var safeAttributeKeys = map[string]struct{}{
	"http.request.method":       {},
	"http.route":                {},
	"url.path":                  {},
	"http.response.status_code": {},
	"request.kind":              {},
	"request.audience":          {},
	"decision.outcome":          {},
}

// SafeAttributes keeps only attributes from the allowlist so spans never
// carry donor or organization identifiers.
func SafeAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := safeAttributeKeys[string(attr.Key)]; ok {
			filtered = append(filtered, attr)
		}
	}
	return filtered
}

// SafeError marks the span failed without recording the error message,
// which may embed caller-provided notes.
func SafeError(span trace.Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.SetStatus(codes.Error, "request failed")
	span.SetAttributes(attribute.Bool("error", true))
}

package otelhelper

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// SetError marks span as failed. code is the domain error code, empty when unknown.
func SetError(span trace.Span, err error, code string, attrs ...attribute.KeyValue) {
	if code != "" {
		attrs = append(attrs, attribute.String(ErrorCodeKey, code))
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.AddEvent("error_occurred", trace.WithAttributes(
		attrs...,
	))
}

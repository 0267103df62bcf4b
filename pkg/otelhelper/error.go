package otelhelper

import (
	"errors"

	"github.com/dukex/flowscribe/pkg/failures"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	FailureKindKey   = "flowscribe.failure.kind"
	FailureOpKey     = "flowscribe.failure.op"
	FailureStatusKey = "flowscribe.failure.status"
)

// SetError marks the span failed. The status carries the short summary only;
// upstream bodies stay out of traces. Classified failures add a "failure"
// event with their kind, operation and upstream status.
func SetError(span trace.Span, err error, attrs ...attribute.KeyValue) {
	span.RecordError(err)
	span.SetStatus(codes.Error, failures.SummaryOf(err))

	var failure *failures.Error
	if errors.As(err, &failure) {
		attrs = append(attrs,
			attribute.String(FailureKindKey, string(failure.Kind)),
			attribute.String(FailureOpKey, failure.Op),
		)

		if failure.Status != 0 {
			attrs = append(attrs, attribute.Int(FailureStatusKey, failure.Status))
		}

		span.SetAttributes(attribute.String(FailureKindKey, string(failure.Kind)))
	}

	span.AddEvent("failure", trace.WithAttributes(attrs...))
}

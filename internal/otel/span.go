// Package otel holds the span helpers and attribute keys shared by the sync
// pipeline and the HTTP handlers.
package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Attribute keys recorded on sync and webhook spans
const (
	AttrSyncID           = attribute.Key("sync.id")
	AttrSyncKind         = attribute.Key("sync.kind")
	AttrCommit           = attribute.Key("sync.commit")
	AttrArticlesRendered = attribute.Key("sync.articles.rendered")
	AttrArticlesFailed   = attribute.Key("sync.articles.failed")
	AttrArticlesDeleted  = attribute.Key("sync.articles.deleted")
	AttrWebhookEvent     = attribute.Key("webhook.event")
)

// failedStatus is the span status description for any error. Error text can
// carry bucket names or repository URLs, so it only goes into the exception event.
const failedStatus = "operation failed"

// StartSpan starts a span on tracer. Without a tracer it returns ctx unchanged
// and a no-op span, so ending it never ends a span owned by the caller.
func StartSpan(
	ctx context.Context,
	tracer trace.Tracer,
	name string,
	opts ...trace.SpanStartOption,
) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, noop.Span{}
	}
	return tracer.Start(ctx, name, opts...)
}

// RecordError marks span as failed with err. Nil spans and errors are ignored.
func RecordError(span trace.Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, failedStatus)
}

// EndSpan records err, if any, and ends span
func EndSpan(span trace.Span, err error) {
	if span == nil {
		return
	}
	RecordError(span, err)
	span.End()
}

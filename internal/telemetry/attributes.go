// SPDX-License-Identifier: MIT

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys used on restream spans.
const (
	// HTTP attributes
	HTTPMethodKey     = "http.method"
	HTTPStatusCodeKey = "http.status_code"
	HTTPRouteKey      = "http.route"

	// Session attributes
	SessionIDKey    = "session.id"
	SessionOwnerKey = "session.owner"
	SessionStateKey = "session.state"

	// Encode attributes
	EncodePlatformKey    = "encode.platform"
	EncodeQualityKey     = "encode.quality_tier"
	EncodeOrientationKey = "encode.orientation"
	EncodeLoopKey        = "encode.loop"
	EncodePIDKey         = "encode.pid"

	// Error attributes
	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// HTTPAttributes creates common HTTP span attributes.
func HTTPAttributes(method, route string, statusCode int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(HTTPMethodKey, method),
		attribute.String(HTTPRouteKey, route),
		attribute.Int(HTTPStatusCodeKey, statusCode),
	}
}

// SessionAttributes identifies a session. Empty values are omitted.
func SessionAttributes(id, owner, state string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 3)
	if id != "" {
		attrs = append(attrs, attribute.String(SessionIDKey, id))
	}
	if owner != "" {
		attrs = append(attrs, attribute.String(SessionOwnerKey, owner))
	}
	if state != "" {
		attrs = append(attrs, attribute.String(SessionStateKey, state))
	}
	return attrs
}

// EncodeAttributes describes the requested output of a session.
func EncodeAttributes(platform, quality, orientation string, loop bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(EncodePlatformKey, platform),
		attribute.String(EncodeQualityKey, quality),
		attribute.String(EncodeOrientationKey, orientation),
		attribute.Bool(EncodeLoopKey, loop),
	}
}

// ErrorAttributes creates error-related span attributes.
func ErrorAttributes(errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}

// RecordError marks span as failed with the given classification.
func RecordError(span trace.Span, err error, errorType string) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetAttributes(ErrorAttributes(errorType)...)
	span.SetStatus(codes.Error, errorType)
}

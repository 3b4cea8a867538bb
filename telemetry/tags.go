// Package telemetry provides request tagging and OpenTelemetry metrics for
// the documentation cache.
package telemetry

import (
	"context"
	"net/http"
)

type contextKey string

// requestTagsKey is the context key for the request tags holder.
const requestTagsKey contextKey = "request_tags"

// CacheKind identifies which cache a metric belongs to.
type CacheKind string

const (
	KindContent   CacheKind = "content"
	KindSettings  CacheKind = "settings"
	KindAggregate CacheKind = "aggregate"
	KindImage     CacheKind = "image"
)

// CacheResult represents the outcome of a cache lookup.
type CacheResult string

const (
	ResultHit      CacheResult = "hit"
	ResultMiss     CacheResult = "miss"
	ResultFallback CacheResult = "fallback"
	ResultBypass   CacheResult = "bypass"
)

// RequestTags holds mutable request metadata that handlers can set for
// logging and metrics.
type RequestTags struct {
	Endpoint    string
	CacheResult CacheResult
}

// InjectTags creates a new request with an empty RequestTags in context.
// Call this in middleware before handlers run.
func InjectTags(r *http.Request) *http.Request {
	tags := &RequestTags{CacheResult: ResultBypass}
	return r.WithContext(context.WithValue(r.Context(), requestTagsKey, tags))
}

// GetTags retrieves the request tags from context.
// Returns nil outside a request handled by the logging middleware.
func GetTags(r *http.Request) *RequestTags {
	if tags, ok := r.Context().Value(requestTagsKey).(*RequestTags); ok {
		return tags
	}
	return nil
}

// SetCacheResult sets the cache result for logging.
func SetCacheResult(r *http.Request, result CacheResult) {
	if tags := GetTags(r); tags != nil {
		tags.CacheResult = result
	}
}

// SetEndpoint sets the endpoint type for logging.
func SetEndpoint(r *http.Request, endpoint string) {
	if tags := GetTags(r); tags != nil {
		tags.Endpoint = endpoint
	}
}

// StatusClass returns the HTTP status class (2xx, 3xx, 4xx, 5xx).
func StatusClass(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "2xx"
	case status >= 300 && status < 400:
		return "3xx"
	case status >= 400 && status < 500:
		return "4xx"
	case status >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}

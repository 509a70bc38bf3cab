// Package transit defines domain types for the busbridge transit gateway.
// This package has no project imports -- it is the dependency root.
package transit

import (
	"context"
	"encoding/json"
	"time"
)

// Meta describes the provenance of a settled call. It is populated on every
// result, success or failure, so responses are self-describing.
type Meta struct {
	Endpoint        string            `json:"endpoint"`
	Params          map[string]string `json:"params,omitempty"`
	CacheKey        string            `json:"cache_key"`
	CacheTTLSeconds int               `json:"cache_ttl_s"`
	CacheExpiresAt  *time.Time        `json:"cache_expires_at,omitempty"`
	ServedFromCache bool              `json:"served_from_cache"`
	SourceTimestamp *time.Time        `json:"source_timestamp,omitempty"`
	Reason          string            `json:"reason,omitempty"`
	Status          int               `json:"status"` // caller-facing outcome, may differ from upstream status
}

// Result is a successful settlement: the upstream payload plus provenance.
type Result struct {
	Payload json.RawMessage `json:"payload"`
	Meta    Meta            `json:"meta"`
}

// UpstreamError is one opaque error object reported by the upstream service.
type UpstreamError struct {
	Code string `json:"code,omitempty"`
	Msg  string `json:"msg"`
}

// Error is the single failure type crossing the client boundary. Raw network
// and decode errors are classified into an Error at the fetch site; callers
// never see anything else.
type Error struct {
	Code        string          `json:"code"`
	Message     string          `json:"message"`
	HTTPStatus  int             `json:"-"`
	Reason      string          `json:"reason,omitempty"`
	RawUpstream []UpstreamError `json:"upstream_errors,omitempty"`
	Meta        Meta            `json:"-"`
}

func (e *Error) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return e.Code + ": " + e.Message
}

// ErrorDetail is the error half of the envelope.
type ErrorDetail struct {
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Details []UpstreamError `json:"details,omitempty"`
}

// Envelope is the uniform caller-facing response. Exactly one of Data and
// Error is non-nil; Meta is always populated.
type Envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *ErrorDetail    `json:"error"`
	Meta  Meta            `json:"meta"`
}

// Success builds the envelope for a settled successful result.
func Success(res *Result) Envelope {
	return Envelope{Data: res.Payload, Meta: res.Meta}
}

// Failure converts any error into an error envelope. Non-domain errors are
// wrapped as internal failures so the boundary never leaks raw errors.
func Failure(err error) Envelope {
	e, ok := err.(*Error)
	if !ok {
		e = &Error{
			Code:       CodeInternal,
			Message:    err.Error(),
			HTTPStatus: 500,
		}
	}
	meta := e.Meta
	if meta.Status == 0 {
		meta.Status = e.HTTPStatus
	}
	return Envelope{
		Error: &ErrorDetail{
			Code:    e.Code,
			Message: e.Message,
			Details: e.RawUpstream,
		},
		Meta: meta,
	}
}

// --- Context keys ---

type contextKey int

const ctxKeyRequestID contextKey = 0

// RequestIDFromContext extracts the request ID from context.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeyRequestID).(string)
	return id
}

// ContextWithRequestID returns a context carrying the given request ID.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestID, id)
}

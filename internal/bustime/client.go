// Package bustime implements a resilient client for BusTime-style real-time
// transit APIs. It shields callers from upstream instability: results are
// cached per endpoint with configurable TTLs, concurrent requests for the
// same resource are coalesced into a single upstream call, transient
// failures are retried within a bounded budget, and upstream "no data"
// conditions are surfaced as successful empty results rather than errors.
package bustime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/dnscache"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	transit "github.com/transitwatch/busbridge/internal"
	"github.com/transitwatch/busbridge/internal/cache"
	"github.com/transitwatch/busbridge/internal/config"
	"github.com/transitwatch/busbridge/internal/telemetry"
)

// maxBodySize bounds how much of an upstream response body is read.
const maxBodySize = 4 << 20

// errBodyTooLarge marks a response body exceeding maxBodySize. Truncating
// it would misparse downstream, so the attempt fails outright instead.
var errBodyTooLarge = errors.New("response body exceeds size limit")

// Client is the resilient transit API client. One instance owns the cache
// and in-flight registry for the whole process; construct it once and share
// it across callers.
type Client struct {
	cfg     config.UpstreamConfig
	http    *http.Client
	cache   cache.Store
	group   singleflight.Group
	metrics *telemetry.Metrics // nil = no metrics
	tracer  trace.Tracer
}

// New creates a Client. store may be nil to disable caching entirely;
// resolver may be nil to use the default DNS resolver; metrics may be nil.
func New(cfg config.UpstreamConfig, store cache.Store, resolver *dnscache.Resolver, metrics *telemetry.Metrics) *Client {
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Transport: NewTransport(resolver)},
		cache:   store,
		metrics: metrics,
		tracer:  telemetry.Tracer("bustime"),
	}
}

// Fetch settles one logical request: cache check, coalesce, fetch with
// bounded retries, classify, cache write. Every return is either a
// *transit.Result or a *transit.Error; raw network errors never escape.
func (c *Client) Fetch(ctx context.Context, d Descriptor) (*transit.Result, error) {
	d = d.normalize(c.cfg.Timeout, c.cfg.MaxRetries)
	key := d.Key()

	meta := transit.Meta{
		Endpoint:        d.Endpoint,
		Params:          d.Params,
		CacheKey:        key,
		CacheTTLSeconds: int(d.CacheTTL.Seconds()),
		Status:          http.StatusOK,
	}

	if c.cfg.APIKey == "" {
		return nil, fail(meta, &transit.Error{
			Code:       transit.CodeMissingAPIKey,
			Message:    "upstream API key is not configured",
			HTTPStatus: http.StatusInternalServerError,
		})
	}
	if missing := d.missingRequired(); len(missing) > 0 {
		return nil, fail(meta, &transit.Error{
			Code:       transit.CodeMissingParam,
			Message:    "missing required parameter(s): " + strings.Join(missing, ", "),
			HTTPStatus: http.StatusBadRequest,
		})
	}

	if c.cache != nil && d.CacheTTL > 0 {
		if e, ok := c.cache.Get(ctx, key); ok {
			if c.metrics != nil {
				c.metrics.CacheHits.Inc()
			}
			m := e.Meta
			m.ServedFromCache = true
			m.CacheExpiresAt = &e.ExpiresAt
			return &transit.Result{Payload: e.Payload, Meta: m}, nil
		}
		if c.metrics != nil {
			c.metrics.CacheMisses.Inc()
		}
	}

	// The in-flight fetch is shared by every caller that arrives before it
	// settles, so it must not die with the first caller's request context.
	flightCtx := context.WithoutCancel(ctx)

	v, err, shared := c.group.Do(key, func() (any, error) {
		return c.fetchUpstream(flightCtx, d, key, meta)
	})
	if shared && c.metrics != nil {
		c.metrics.CoalescedJoins.Inc()
	}
	if err != nil {
		return nil, err
	}
	return v.(*transit.Result), nil
}

// Invalidate removes all cached entries whose key starts with prefix.
// An empty prefix purges the whole cache.
func (c *Client) Invalidate(ctx context.Context, prefix string) {
	if c.cache == nil {
		return
	}
	if prefix == "" {
		c.cache.Purge(ctx)
		return
	}
	c.cache.InvalidateMatching(ctx, func(key string) bool {
		return strings.HasPrefix(key, prefix)
	})
}

// fetchUpstream is the leader path: it performs the bounded retry loop,
// classifies the settled body, and writes genuine successes to the cache.
func (c *Client) fetchUpstream(ctx context.Context, d Descriptor, key string, meta transit.Meta) (*transit.Result, error) {
	ctx, span := c.tracer.Start(ctx, "bustime.fetch",
		trace.WithAttributes(attribute.String("endpoint", d.Endpoint)))
	defer span.End()

	body, ferr := c.do(ctx, d, meta)
	if ferr != nil {
		span.RecordError(ferr)
		c.countError(d.Endpoint, ferr)
		return nil, ferr
	}

	cl, cerr := classify(body, c.cfg.ResponseKey)
	if cerr != nil {
		span.RecordError(cerr)
		c.countError(d.Endpoint, fail(meta, cerr))
		return nil, cerr
	}

	meta.Reason = cl.reason
	meta.SourceTimestamp = cl.sourceTime

	switch {
	case cl.reason != "":
		// Soft empty: a valid result, but never cached -- service may
		// resume before the TTL would lapse.
		if c.metrics != nil {
			c.metrics.SoftEmpties.WithLabelValues(d.Endpoint).Inc()
		}
	case c.cache != nil && d.CacheTTL > 0:
		expires := time.Now().Add(d.CacheTTL)
		meta.CacheExpiresAt = &expires
		c.cache.Set(ctx, key, cache.Entry{Payload: cl.payload, Meta: meta}, d.CacheTTL)
	}

	return &transit.Result{Payload: cl.payload, Meta: meta}, nil
}

// do runs the retry loop: at most MaxRetries+1 attempts, each bounded by the
// descriptor timeout. Only timeouts, network-level failures, and 5xx
// responses are retried; 4xx responses are fatal on first sight.
func (c *Client) do(ctx context.Context, d Descriptor, meta transit.Meta) ([]byte, *transit.Error) {
	u := c.buildURL(d)
	attempts := d.MaxRetries + 1

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if c.metrics != nil {
			c.metrics.UpstreamAttempts.WithLabelValues(d.Endpoint).Inc()
		}
		start := time.Now()
		body, status, err := c.attempt(ctx, u, d.Timeout)
		if c.metrics != nil {
			c.metrics.UpstreamDuration.WithLabelValues(d.Endpoint).Observe(time.Since(start).Seconds())
		}

		if err != nil {
			if errors.Is(err, errBodyTooLarge) {
				return nil, fail(meta, &transit.Error{
					Code:       transit.CodeUpstreamFailed,
					Message:    fmt.Sprintf("upstream response body exceeds %d bytes", maxBodySize),
					HTTPStatus: http.StatusBadGateway,
				})
			}
			// Timeout or network-level failure: transient.
			lastErr = err
			slog.LogAttrs(ctx, slog.LevelWarn, "upstream attempt failed",
				slog.String("endpoint", d.Endpoint),
				slog.Int("attempt", attempt+1),
				slog.String("error", err.Error()),
			)
			continue
		}

		switch {
		case status >= 500:
			lastErr = fmt.Errorf("upstream status %d", status)
			continue
		case status == http.StatusUnauthorized:
			return nil, fail(meta, &transit.Error{
				Code:       transit.CodeAuthRejected,
				Message:    "upstream rejected the API key",
				HTTPStatus: http.StatusUnauthorized,
			})
		case status == http.StatusTooManyRequests:
			return nil, fail(meta, &transit.Error{
				Code:       transit.CodeRateLimited,
				Message:    "upstream rate limit exceeded",
				HTTPStatus: http.StatusTooManyRequests,
			})
		case status >= 400:
			return nil, fail(meta, &transit.Error{
				Code:       transit.CodeUpstreamFailed,
				Message:    fmt.Sprintf("upstream returned status %d", status),
				HTTPStatus: http.StatusBadGateway,
			})
		}
		return body, nil
	}

	return nil, fail(meta, &transit.Error{
		Code:       transit.CodeUpstreamFailed,
		Message:    fmt.Sprintf("upstream request failed after %d attempt(s): %v", attempts, lastErr),
		HTTPStatus: http.StatusBadGateway,
	})
}

// attempt performs a single upstream GET bounded by timeout.
func (c *Client) attempt(ctx context.Context, u string, timeout time.Duration) ([]byte, int, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize+1))
	if err != nil {
		return nil, 0, fmt.Errorf("read response: %w", err)
	}
	if len(body) > maxBodySize {
		return nil, 0, errBodyTooLarge
	}
	return body, resp.StatusCode, nil
}

// buildURL assembles the upstream URL: the static credential, output format,
// and feed identifier are injected into every request unless the descriptor
// overrides them.
func (c *Client) buildURL(d Descriptor) string {
	q := url.Values{}
	q.Set("key", c.cfg.APIKey)
	if c.cfg.Format != "" {
		q.Set("format", c.cfg.Format)
	}
	if c.cfg.Feed != "" {
		q.Set("rtpidatafeed", c.cfg.Feed)
	}
	for k, v := range d.Params {
		q.Set(k, v)
	}
	return c.cfg.BaseURL + "/" + d.Endpoint + "?" + q.Encode()
}

// countError records a fatal upstream failure.
func (c *Client) countError(endpoint string, err *transit.Error) {
	if c.metrics != nil {
		c.metrics.UpstreamErrors.WithLabelValues(endpoint, err.Code).Inc()
	}
}

// fail attaches provenance to an error, mirroring the caller-facing status
// into the metadata.
func fail(meta transit.Meta, e *transit.Error) *transit.Error {
	meta.Status = e.HTTPStatus
	e.Meta = meta
	return e
}

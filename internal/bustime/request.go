package bustime

import (
	"net/url"
	"sort"
	"strings"
	"time"
)

// Descriptor describes one logical upstream call. It is built once per call
// and never mutated afterwards; normalization returns copies.
type Descriptor struct {
	// Endpoint is the upstream endpoint name, e.g. "getpredictions".
	Endpoint string
	// Params is the flat query parameter set. Empty values are dropped
	// during canonicalization.
	Params map[string]string
	// Required lists parameter keys that must be present after
	// canonicalization; a missing key is a fatal caller error raised
	// before any network activity.
	Required []string
	// CacheKey overrides the derived cache key when non-empty.
	CacheKey string
	// CacheTTL is how long a successful result may be served from cache.
	// Zero means never cache.
	CacheTTL time.Duration
	// Timeout bounds each upstream attempt. Zero means the client default.
	Timeout time.Duration
	// MaxRetries is the number of retries after the first attempt.
	// Zero means the client default; negative disables retries.
	MaxRetries int
}

// canonicalParams returns a copy of params with empty values dropped.
// Key order is irrelevant here; deterministic ordering happens in Key.
func canonicalParams(params map[string]string) map[string]string {
	out := make(map[string]string, len(params))
	for k, v := range params {
		if k == "" || v == "" {
			continue
		}
		out[k] = v
	}
	return out
}

// Key returns the cache key: the explicit override when set, otherwise
// "endpoint?k=v&..." with keys sorted so that insertion order never
// changes the derived key.
func (d Descriptor) Key() string {
	if d.CacheKey != "" {
		return d.CacheKey
	}
	keys := make([]string, 0, len(d.Params))
	for k := range d.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(d.Endpoint)
	for i, k := range keys {
		if i == 0 {
			b.WriteByte('?')
		} else {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(k))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(d.Params[k]))
	}
	return b.String()
}

// missingRequired returns the required parameter keys absent from the
// canonicalized parameter set, in stable order.
func (d Descriptor) missingRequired() []string {
	var missing []string
	for _, k := range d.Required {
		if _, ok := d.Params[k]; !ok {
			missing = append(missing, k)
		}
	}
	sort.Strings(missing)
	return missing
}

// normalize canonicalizes parameters and applies client defaults for the
// timeout and retry budget.
func (d Descriptor) normalize(defaultTimeout time.Duration, defaultRetries int) Descriptor {
	d.Params = canonicalParams(d.Params)
	if d.Timeout <= 0 {
		d.Timeout = defaultTimeout
	}
	switch {
	case d.MaxRetries == 0:
		d.MaxRetries = defaultRetries
	case d.MaxRetries < 0:
		d.MaxRetries = 0
	}
	return d
}

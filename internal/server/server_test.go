package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	transit "github.com/transitwatch/busbridge/internal"
	"github.com/transitwatch/busbridge/internal/bustime"
	"github.com/transitwatch/busbridge/internal/config"
)

// fakeClient records descriptors and returns canned results.
type fakeClient struct {
	lastDesc    bustime.Descriptor
	lastPrefix  string
	invalidated bool
	result      *transit.Result
	err         error
}

func (f *fakeClient) Fetch(_ context.Context, d bustime.Descriptor) (*transit.Result, error) {
	f.lastDesc = d
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return &transit.Result{
		Payload: json.RawMessage(`{"ok":true}`),
		Meta:    transit.Meta{Endpoint: d.Endpoint, CacheKey: d.Key(), Status: http.StatusOK},
	}, nil
}

func (f *fakeClient) Invalidate(_ context.Context, prefix string) {
	f.invalidated = true
	f.lastPrefix = prefix
}

func testCacheConfig() config.CacheConfig {
	return config.CacheConfig{
		Enabled:    true,
		DefaultTTL: 30 * time.Second,
		TTLs:       map[string]time.Duration{"getroutes": time.Hour},
	}
}

func newTestServer(fc *fakeClient) http.Handler {
	return New(Deps{Client: fc, Cache: testCacheConfig()})
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) transit.Envelope {
	t.Helper()
	var env transit.Envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v (body: %s)", err, rec.Body.String())
	}
	return env
}

func TestHandleTime(t *testing.T) {
	t.Parallel()

	fc := &fakeClient{}
	rec := get(t, newTestServer(fc), "/v1/time")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	env := decodeEnvelope(t, rec)
	if env.Error != nil {
		t.Errorf("error = %+v, want nil", env.Error)
	}
	if fc.lastDesc.Endpoint != "gettime" {
		t.Errorf("endpoint = %q, want gettime", fc.lastDesc.Endpoint)
	}
	if fc.lastDesc.CacheTTL != 30*time.Second {
		t.Errorf("ttl = %v, want default 30s", fc.lastDesc.CacheTTL)
	}
}

func TestHandleRoutes_UsesEndpointTTL(t *testing.T) {
	t.Parallel()

	fc := &fakeClient{}
	get(t, newTestServer(fc), "/v1/routes")

	if fc.lastDesc.Endpoint != "getroutes" {
		t.Errorf("endpoint = %q, want getroutes", fc.lastDesc.Endpoint)
	}
	if fc.lastDesc.CacheTTL != time.Hour {
		t.Errorf("ttl = %v, want per-endpoint override 1h", fc.lastDesc.CacheTTL)
	}
}

func TestHandleDirections_PathParam(t *testing.T) {
	t.Parallel()

	fc := &fakeClient{}
	get(t, newTestServer(fc), "/v1/routes/22/directions")

	if fc.lastDesc.Endpoint != "getdirections" {
		t.Errorf("endpoint = %q, want getdirections", fc.lastDesc.Endpoint)
	}
	if fc.lastDesc.Params["rt"] != "22" {
		t.Errorf("rt = %q, want 22", fc.lastDesc.Params["rt"])
	}
	if len(fc.lastDesc.Required) != 1 || fc.lastDesc.Required[0] != "rt" {
		t.Errorf("required = %v, want [rt]", fc.lastDesc.Required)
	}
}

func TestHandleVehicles_OneOfValidation(t *testing.T) {
	t.Parallel()

	fc := &fakeClient{}
	h := newTestServer(fc)

	rec := get(t, h, "/v1/vehicles")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 without rt or vid", rec.Code)
	}
	env := decodeEnvelope(t, rec)
	if env.Error == nil || env.Error.Code != transit.CodeMissingParam {
		t.Errorf("error = %+v, want MISSING_PARAM", env.Error)
	}

	rec = get(t, h, "/v1/vehicles?rt=22")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 with rt", rec.Code)
	}
	if fc.lastDesc.Params["rt"] != "22" {
		t.Errorf("rt = %q, want forwarded", fc.lastDesc.Params["rt"])
	}
}

func TestHandlePredictions_OneOfValidation(t *testing.T) {
	t.Parallel()

	fc := &fakeClient{}
	h := newTestServer(fc)

	if rec := get(t, h, "/v1/predictions"); rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 without stpid or vid", rec.Code)
	}
	if rec := get(t, h, "/v1/predictions?stpid=456"); rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 with stpid", rec.Code)
	}
}

func TestClientErrorStatusPropagates(t *testing.T) {
	t.Parallel()

	fc := &fakeClient{err: &transit.Error{
		Code:       transit.CodeUpstreamFailed,
		Message:    "upstream request failed after 3 attempt(s)",
		HTTPStatus: http.StatusBadGateway,
		Meta:       transit.Meta{Endpoint: "gettime", Status: http.StatusBadGateway},
	}}
	rec := get(t, newTestServer(fc), "/v1/time")

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
	env := decodeEnvelope(t, rec)
	if env.Data != nil && string(env.Data) != "null" {
		t.Errorf("data = %s, want null", env.Data)
	}
	if env.Error == nil || env.Error.Code != transit.CodeUpstreamFailed {
		t.Errorf("error = %+v", env.Error)
	}
	if env.Meta.Status != http.StatusBadGateway {
		t.Errorf("meta status = %d, want 502", env.Meta.Status)
	}
}

func TestHandleInvalidate(t *testing.T) {
	t.Parallel()

	fc := &fakeClient{}
	h := newTestServer(fc)

	req := httptest.NewRequest(http.MethodPost, "/admin/cache/invalidate",
		strings.NewReader(`{"prefix":"getvehicles"}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !fc.invalidated || fc.lastPrefix != "getvehicles" {
		t.Errorf("invalidate not forwarded: %+v", fc)
	}

	// Malformed body.
	req = httptest.NewRequest(http.MethodPost, "/admin/cache/invalidate", strings.NewReader("{"))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for malformed body", rec.Code)
	}
}

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()

	h := New(Deps{Client: &fakeClient{}, Cache: testCacheConfig(),
		ReadyCheck: func(context.Context) error { return nil }})

	if rec := get(t, h, "/healthz"); rec.Code != http.StatusOK {
		t.Errorf("healthz = %d, want 200", rec.Code)
	}
	if rec := get(t, h, "/readyz"); rec.Code != http.StatusOK {
		t.Errorf("readyz = %d, want 200", rec.Code)
	}

	h = New(Deps{Client: &fakeClient{}, Cache: testCacheConfig(),
		ReadyCheck: func(context.Context) error { return context.DeadlineExceeded }})
	if rec := get(t, h, "/readyz"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("readyz = %d, want 503 when not ready", rec.Code)
	}
}

func TestRequestIDHeader(t *testing.T) {
	t.Parallel()

	rec := get(t, newTestServer(&fakeClient{}), "/healthz")
	if rec.Header().Get("X-Request-Id") == "" {
		t.Error("response should carry a request ID")
	}
}

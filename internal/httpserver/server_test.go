package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/MrSnakeDoc/urldammit/internal/cache"
	"github.com/MrSnakeDoc/urldammit/internal/domain"
	"github.com/MrSnakeDoc/urldammit/internal/httpserver/deps"
	"github.com/MrSnakeDoc/urldammit/internal/logger"
	"github.com/MrSnakeDoc/urldammit/internal/manager"
	"github.com/MrSnakeDoc/urldammit/internal/metrics"
	"github.com/MrSnakeDoc/urldammit/internal/store/memory"
)

const (
	trustedIP   = "10.0.0.7:4000"
	untrustedIP = "192.0.2.1:1234"
)

var testNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func newTestHandler(t *testing.T, mod func(*deps.Deps)) http.Handler {
	t.Helper()

	known, err := cache.NewLRU[*domain.Resource](16)
	if err != nil {
		t.Fatalf("NewLRU() error = %v", err)
	}
	unknown, err := cache.NewLRU[cache.Absent](16)
	if err != nil {
		t.Fatalf("NewLRU() error = %v", err)
	}
	m := manager.New(memory.New(), known, unknown, manager.WithClock(func() time.Time { return testNow }))

	d := deps.Deps{
		Logger:    logger.NewNop(),
		StartTime: testNow.Add(-time.Minute),
		TimeNow:   func() time.Time { return testNow },
		Version:   "test",
		Resources: m,
	}
	if mod != nil {
		mod(&d)
	}
	return NewHandler(d.Logger, d)
}

func do(h http.Handler, method, target string, form url.Values, remote string) *httptest.ResponseRecorder {
	var req *http.Request
	if form != nil {
		req = httptest.NewRequest(method, target, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if remote != "" {
		req.RemoteAddr = remote
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) domain.Response {
	t.Helper()
	var got domain.Response
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return got
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var got map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return got
}

func TestIndex(t *testing.T) {
	h := newTestHandler(t, nil)
	rec := do(h, http.MethodGet, "/", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Body.String(); got != "where's my url dammit?" {
		t.Errorf("body = %q", got)
	}
}

func TestRegisterAndGet(t *testing.T) {
	h := newTestHandler(t, nil)
	id := domain.Hash("http://example.com/page")

	rec := do(h, http.MethodPost, "/", url.Values{
		"uri":    {"http://example.com/page?utm=1#top"},
		"status": {"200"},
		"tags":   {`["news", 1, {"x": 1}, true]`},
		"pairs":  {`{"lang": "en%20GB", "nested": [1]}`},
	}, "")
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("POST status = %d, want 303 (body %s)", rec.Code, rec.Body.String())
	}
	if got, want := rec.Header().Get("Location"), "http://example.com/"+id; got != want {
		t.Errorf("Location = %q, want %q", got, want)
	}

	rec = do(h, http.MethodGet, "/"+id, nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET status = %d, want 200", rec.Code)
	}
	if got, want := rec.Header().Get("Last-Modified"), "Wed, 01 May 2024 12:00:00 GMT"; got != want {
		t.Errorf("Last-Modified = %q, want %q", got, want)
	}
	want := domain.Response{
		URI:     "http://example.com/page",
		Status:  200,
		Created: "2024-05-01T12:00:00Z",
		Updated: "2024-05-01T12:00:00Z",
		Tags:    []string{"1", "news", "true"},
		Pairs:   map[string]string{"lang": "en GB"},
	}
	if diff := cmp.Diff(want, decodeResponse(t, rec)); diff != "" {
		t.Errorf("GET body mismatch (-want +got):\n%s", diff)
	}

	rec = do(h, http.MethodHead, "/"+id, nil, "")
	if rec.Code != http.StatusOK {
		t.Errorf("HEAD status = %d, want 200", rec.Code)
	}
	if rec.Header().Get("Last-Modified") == "" {
		t.Error("HEAD should carry Last-Modified")
	}
}

func TestGetUnknown(t *testing.T) {
	h := newTestHandler(t, nil)
	rec := do(h, http.MethodGet, "/"+domain.Hash("http://nowhere.example/"), nil, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}

	for _, method := range []string{http.MethodGet, http.MethodPut, http.MethodDelete} {
		rec = do(h, method, "/not-a-hash", url.Values{"uri": {"http://example.com/"}, "status": {"200"}}, trustedIP)
		if rec.Code != http.StatusNotFound {
			t.Errorf("%s /not-a-hash status = %d, want 404", method, rec.Code)
		}
		if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
			t.Errorf("%s /not-a-hash Content-Type = %q, want application/json", method, ct)
		}
	}
}

func TestRegisterBadRequests(t *testing.T) {
	h := newTestHandler(t, nil)

	tests := []struct {
		name      string
		form      url.Values
		wantCode  string
		wantField string
	}{
		{"missing uri", url.Values{"status": {"200"}}, "VALIDATION_ERROR", "uri"},
		{"missing status", url.Values{"uri": {"http://example.com/"}}, "VALIDATION_ERROR", "status"},
		{"bad status", url.Values{"uri": {"http://example.com/"}, "status": {"500"}}, "VALIDATION_ERROR", "status"},
		{"unknown uri at 404", url.Values{"uri": {"http://example.com/"}, "status": {"404"}}, "NO_EXISTING_RECORD", "status"},
		{"redirect without location", url.Values{"uri": {"http://example.com/"}, "status": {"301"}}, "VALIDATION_ERROR", "location"},
		{"bad tag", url.Values{"uri": {"http://example.com/"}, "status": {"200"}, "tags": {`["not a tag"]`}}, "VALIDATION_ERROR", "not a tag"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(h, http.MethodPost, "/", tt.form, "")
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400 (body %s)", rec.Code, rec.Body.String())
			}
			got := decodeError(t, rec)
			if got["code"] != tt.wantCode || got["field"] != tt.wantField {
				t.Errorf("error = %v, want code %s field %s", got, tt.wantCode, tt.wantField)
			}
		})
	}
}

func TestRedirectedResource(t *testing.T) {
	h := newTestHandler(t, nil)
	uri := "http://example.com/old"
	id := domain.Hash(uri)

	for _, form := range []url.Values{
		{"uri": {uri}, "status": {"200"}},
		{"uri": {uri}, "status": {"301"}, "location": {"http://example.com/new"}},
		// Ignored: redirects are final.
		{"uri": {uri}, "status": {"200"}, "tags": {`["late"]`}},
	} {
		if rec := do(h, http.MethodPost, "/", form, ""); rec.Code != http.StatusSeeOther {
			t.Fatalf("POST %v status = %d, want 303 (body %s)", form, rec.Code, rec.Body.String())
		}
	}

	rec := do(h, http.MethodGet, "/"+id, nil, "")
	if rec.Code != http.StatusMovedPermanently {
		t.Fatalf("status = %d, want 301", rec.Code)
	}
	if got, want := rec.Header().Get("Location"), "http://example.com/"+domain.Hash("http://example.com/new"); got != want {
		t.Errorf("Location = %q, want %q", got, want)
	}
	body := decodeResponse(t, rec)
	if body.Status != 301 || body.Location != "http://example.com/new" || len(body.Tags) != 0 {
		t.Errorf("body = %+v", body)
	}
}

func TestUntrustedClient(t *testing.T) {
	h := newTestHandler(t, func(d *deps.Deps) {
		d.TrustedCIDRS = []string{"10.0.0.0/8"}
	})
	uri := "http://example.com/guarded"
	id := domain.Hash(uri)

	if rec := do(h, http.MethodPost, "/", url.Values{"uri": {uri}, "status": {"200"}}, untrustedIP); rec.Code != http.StatusSeeOther {
		t.Fatalf("untrusted 200 status = %d, want 303", rec.Code)
	}

	tests := []struct {
		name     string
		method   string
		target   string
		form     url.Values
		want     int
		wantCode string
	}{
		{"404", http.MethodPost, "/", url.Values{"uri": {uri}, "status": {"404"}}, http.StatusBadRequest, "UNSUPPORTED_STATUS"},
		{"301", http.MethodPost, "/", url.Values{"uri": {uri}, "status": {"301"}, "location": {"http://x.example/"}}, http.StatusBadRequest, "UNSUPPORTED_STATUS"},
		{"location", http.MethodPost, "/", url.Values{"uri": {uri}, "status": {"200"}, "location": {"http://x.example/"}}, http.StatusBadRequest, "INVALID_FIELD_STATE"},
		{"delete param", http.MethodPost, "/", url.Values{"uri": {uri}, "delete": {"true"}}, http.StatusForbidden, ""},
		{"delete", http.MethodDelete, "/" + id, nil, http.StatusForbidden, ""},
		{"put", http.MethodPut, "/" + id, url.Values{"uri": {uri}, "status": {"200"}}, http.StatusForbidden, ""},
		{"purge", http.MethodPost, "/purge", nil, http.StatusForbidden, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(h, tt.method, tt.target, tt.form, untrustedIP)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.want, rec.Body.String())
			}
			if tt.wantCode != "" {
				if got := decodeError(t, rec)["code"]; got != tt.wantCode {
					t.Errorf("code = %q, want %q", got, tt.wantCode)
				}
			}
		})
	}

	// The record survived every refused request.
	rec := do(h, http.MethodGet, "/"+id, nil, untrustedIP)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET status = %d, want 200", rec.Code)
	}

	// A trusted client may mark it not found.
	if rec := do(h, http.MethodPost, "/", url.Values{"uri": {uri}, "status": {"404"}}, trustedIP); rec.Code != http.StatusSeeOther {
		t.Errorf("trusted 404 status = %d, want 303 (body %s)", rec.Code, rec.Body.String())
	}
}

func TestDelete(t *testing.T) {
	h := newTestHandler(t, nil)
	uri := "http://example.com/gone"
	id := domain.Hash(uri)

	do(h, http.MethodPost, "/", url.Values{"uri": {uri}, "status": {"200"}}, "")
	if rec := do(h, http.MethodDelete, "/"+id, nil, ""); rec.Code != http.StatusNoContent {
		t.Fatalf("DELETE status = %d, want 204", rec.Code)
	}
	if rec := do(h, http.MethodGet, "/"+id, nil, ""); rec.Code != http.StatusNotFound {
		t.Errorf("GET after delete status = %d, want 404", rec.Code)
	}

	do(h, http.MethodPost, "/", url.Values{"uri": {uri}, "status": {"200"}}, "")
	if rec := do(h, http.MethodPost, "/", url.Values{"uri": {uri}, "delete": {"true"}}, ""); rec.Code != http.StatusNoContent {
		t.Fatalf("delete=true status = %d, want 204", rec.Code)
	}
	if rec := do(h, http.MethodGet, "/"+id, nil, ""); rec.Code != http.StatusNotFound {
		t.Errorf("GET after delete=true status = %d, want 404", rec.Code)
	}
}

func TestPutReplacesRecord(t *testing.T) {
	h := newTestHandler(t, nil)
	uri := "http://example.com/replace"
	id := domain.Hash(uri)

	do(h, http.MethodPost, "/", url.Values{"uri": {uri}, "status": {"200"}, "tags": {`["old"]`}}, "")
	rec := do(h, http.MethodPut, "/"+id, url.Values{"uri": {uri}, "status": {"200"}, "pairs": {`{"k": "v"}`}}, "")
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("PUT status = %d, want 303 (body %s)", rec.Code, rec.Body.String())
	}

	got := decodeResponse(t, do(h, http.MethodGet, "/"+id, nil, ""))
	if len(got.Tags) != 0 {
		t.Errorf("tags = %v, want none after PUT", got.Tags)
	}
	if diff := cmp.Diff(map[string]string{"k": "v"}, got.Pairs); diff != "" {
		t.Errorf("pairs mismatch (-want +got):\n%s", diff)
	}
}

func TestFind(t *testing.T) {
	h := newTestHandler(t, nil)

	tests := []struct {
		name   string
		target string
		uri    string
	}{
		{"encoded and reduced", "/find/http%3A%2F%2Fexample.com%2Fpage%3Fq%3D1", "http://example.com/page"},
		{"encoded kept whole", "/find/http%3A%2F%2Fexample.com%2Fpage%3Fq%3D1?reduceurl=false", "http://example.com/page?q=1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(h, http.MethodGet, tt.target, nil, "")
			if rec.Code != http.StatusSeeOther {
				t.Fatalf("status = %d, want 303", rec.Code)
			}
			if got, want := rec.Header().Get("Location"), "http://example.com/"+domain.Hash(tt.uri); got != want {
				t.Errorf("Location = %q, want %q", got, want)
			}
		})
	}
}

func TestBaseURL(t *testing.T) {
	uri := "http://example.com/base"
	form := url.Values{"uri": {uri}, "status": {"200"}}

	h := newTestHandler(t, func(d *deps.Deps) { d.BaseURL = "https://u.example.org" })
	rec := do(h, http.MethodPost, "/", form, "")
	if got, want := rec.Header().Get("Location"), "https://u.example.org/"+domain.Hash(uri); got != want {
		t.Errorf("configured Location = %q, want %q", got, want)
	}

	h = newTestHandler(t, func(d *deps.Deps) { d.TrustProxy = true })
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Forwarded-Proto", "https")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got, want := rec.Header().Get("Location"), "https://example.com/"+domain.Hash(uri); got != want {
		t.Errorf("proxied Location = %q, want %q", got, want)
	}
}

func TestRateLimitOnWrites(t *testing.T) {
	h := newTestHandler(t, func(d *deps.Deps) {
		d.RateLimitBurst = 1
		d.RateLimitPerMin = 1
	})
	form := url.Values{"uri": {"http://example.com/limited"}, "status": {"200"}}

	if rec := do(h, http.MethodPost, "/", form, ""); rec.Code != http.StatusSeeOther {
		t.Fatalf("first POST status = %d, want 303", rec.Code)
	}
	rec := do(h, http.MethodPost, "/", form, "")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second POST status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("Retry-After header missing")
	}

	// Reads are not limited.
	if rec := do(h, http.MethodGet, "/"+domain.Hash("http://example.com/limited"), nil, ""); rec.Code != http.StatusOK {
		t.Errorf("GET status = %d, want 200", rec.Code)
	}
}

func TestPurgeTrigger(t *testing.T) {
	trigger := make(chan struct{}, 1)
	h := newTestHandler(t, func(d *deps.Deps) { d.PurgeTrigger = trigger })

	if rec := do(h, http.MethodPost, "/purge", nil, ""); rec.Code != http.StatusAccepted {
		t.Fatalf("first purge status = %d, want 202", rec.Code)
	}
	if rec := do(h, http.MethodPost, "/purge", nil, ""); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second purge status = %d, want 429", rec.Code)
	}
	<-trigger

	h = newTestHandler(t, nil)
	if rec := do(h, http.MethodPost, "/purge", nil, ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("disabled purge status = %d, want 503", rec.Code)
	}
}

func TestReloadTrigger(t *testing.T) {
	trigger := make(chan struct{}, 1)
	h := newTestHandler(t, func(d *deps.Deps) {
		d.SeedTrigger = trigger
		d.TrustedCIDRS = []string{"10.0.0.0/8"}
	})

	if rec := do(h, http.MethodPost, "/reload", nil, untrustedIP); rec.Code != http.StatusForbidden {
		t.Fatalf("untrusted reload status = %d, want 403", rec.Code)
	}
	if rec := do(h, http.MethodPost, "/reload", nil, trustedIP); rec.Code != http.StatusAccepted {
		t.Fatalf("reload status = %d, want 202", rec.Code)
	}
	select {
	case <-trigger:
	default:
		t.Error("reload did not signal the seed reloader")
	}
}

func TestHealthz(t *testing.T) {
	h := newTestHandler(t, nil)
	rec := do(h, http.MethodGet, "/healthz", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var got struct {
		Status        string  `json:"status"`
		UptimeSeconds float64 `json:"uptime_seconds"`
		Version       string  `json:"version"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Status != "ok" || got.UptimeSeconds != 60 || got.Version != "test" {
		t.Errorf("healthz = %+v", got)
	}
}

func TestReadyz(t *testing.T) {
	tests := []struct {
		name    string
		pingers map[string]deps.Pinger
		want    int
	}{
		{"no backends", nil, http.StatusOK},
		{"all up", map[string]deps.Pinger{"store": pingFunc(func(context.Context) error { return nil })}, http.StatusOK},
		{
			"cache down",
			map[string]deps.Pinger{
				"store": pingFunc(func(context.Context) error { return nil }),
				"cache": pingFunc(func(context.Context) error { return errors.New("connection refused") }),
			},
			http.StatusServiceUnavailable,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(t, func(d *deps.Deps) { d.Pingers = tt.pingers })
			rec := do(h, http.MethodGet, "/readyz", nil, "")
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	if rec := do(newTestHandler(t, nil), http.MethodGet, "/metrics", nil, ""); rec.Code != http.StatusNotFound {
		t.Errorf("status without collectors = %d, want 404", rec.Code)
	}

	h := newTestHandler(t, func(d *deps.Deps) {
		d.Metrics = metrics.New()
		d.TrustedCIDRS = []string{"10.0.0.0/8"}
	})
	do(h, http.MethodGet, "/", nil, trustedIP)

	if rec := do(h, http.MethodGet, "/metrics", nil, untrustedIP); rec.Code != http.StatusForbidden {
		t.Errorf("untrusted status = %d, want 403", rec.Code)
	}
	rec := do(h, http.MethodGet, "/metrics", nil, trustedIP)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	want := `urldammit_http_requests_total{code="200",method="GET",route="/"} 1`
	if !strings.Contains(rec.Body.String(), want) {
		t.Errorf("metrics output missing %q", want)
	}
}

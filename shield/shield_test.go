package shield

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/docswap/kit"
)

func TestSecurityHeaders(t *testing.T) {
	// WHAT: responses carry the security headers and a trace ID.
	// WHY: without the stack, downloads could be sniffed or framed.
	r := chi.NewRouter()
	for _, mw := range DefaultStack(Config{}) {
		r.Use(mw)
	}
	r.Get("/test", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
	})

	w := serve(r, "GET", "/test")
	checks := map[string]string{
		"X-Frame-Options":         "DENY",
		"X-Content-Type-Options":  "nosniff",
		"Content-Security-Policy": "default-src 'none'; frame-ancestors 'none'",
	}
	for header, expected := range checks {
		if got := w.Header().Get(header); got != expected {
			t.Errorf("%s: got %q, want %q", header, got, expected)
		}
	}

	// UUID v7: 36 chars, version nibble 7.
	traceID := w.Header().Get("X-Trace-ID")
	if len(traceID) != 36 || traceID[14] != '7' {
		t.Errorf("X-Trace-ID: got %q, want a UUID v7", traceID)
	}
}

func TestTraceID_Context(t *testing.T) {
	var gotTrace, gotAddr string
	var gotLogger bool
	h := TraceID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTrace = kit.GetTraceID(r.Context())
		gotAddr = kit.GetRemoteAddr(r.Context())
		gotLogger = r.Context().Value(LoggerKey) != nil
	}))

	req := httptest.NewRequest("GET", "/x", nil)
	req.RemoteAddr = "10.0.0.7:5555"
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if gotTrace == "" || gotTrace != w.Header().Get("X-Trace-ID") {
		t.Errorf("context trace %q vs header %q", gotTrace, w.Header().Get("X-Trace-ID"))
	}
	if gotAddr != "10.0.0.7" {
		t.Errorf("remote addr = %q", gotAddr)
	}
	if !gotLogger {
		t.Error("per-request logger missing")
	}
	if GetLogger(context.Background()) == nil {
		t.Error("GetLogger without request logger returned nil")
	}
}

func TestTraceID_LogsCompletion(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	h := TraceID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"File not found"}`))
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/download/x.pdf", nil))

	out := buf.String()
	for _, want := range []string{"status=404", "bytes=26", "transport=http", "path=/api/download/x.pdf", "trace_id="} {
		if !strings.Contains(out, want) {
			t.Errorf("log missing %q:\n%s", want, out)
		}
	}
}

func TestSiteHeaders(t *testing.T) {
	r := chi.NewRouter()
	for _, mw := range DefaultStack(Config{Headers: SiteHeaders()}) {
		r.Use(mw)
	}
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {})

	w := serve(r, "GET", "/")
	if csp := w.Header().Get("Content-Security-Policy"); !strings.Contains(csp, "default-src 'self'") {
		t.Errorf("CSP = %q", csp)
	}
	if w.Header().Get("X-Frame-Options") != "DENY" {
		t.Error("site headers must still deny framing")
	}
}

func TestHeadToGet(t *testing.T) {
	r := chi.NewRouter()
	r.Use(HeadToGet)
	var head []bool
	r.Get("/api/download/{filename}", func(w http.ResponseWriter, r *http.Request) {
		head = append(head, IsHead(r))
		w.WriteHeader(http.StatusOK)
	})
	if w := serve(r, "HEAD", "/api/download/x.pdf"); w.Code != http.StatusOK {
		t.Errorf("HEAD: got %d, want 200", w.Code)
	}
	if w := serve(r, "GET", "/api/download/x.pdf"); w.Code != http.StatusOK {
		t.Errorf("GET: got %d, want 200", w.Code)
	}
	// WHAT: the GET handler can still tell the HEAD apart.
	// WHY: download links delete the file on a real GET only.
	if len(head) != 2 || !head[0] || head[1] {
		t.Errorf("IsHead per request = %v, want [true false]", head)
	}
}

func TestMaxUploadBody(t *testing.T) {
	var readErr error
	h := MaxUploadBody(10)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, readErr = io.ReadAll(r.Body)
	}))

	big := strings.Repeat("x", 10+UploadOverhead+1)

	req := httptest.NewRequest("POST", "/api/convert", strings.NewReader(big))
	req.Header.Set("Content-Type", "multipart/form-data; boundary=abc")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if readErr == nil {
		t.Error("multipart body over the cap should fail to read")
	}

	req = httptest.NewRequest("POST", "/other", strings.NewReader(big))
	req.Header.Set("Content-Type", "application/json")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if readErr != nil {
		t.Errorf("non-multipart body should pass through, got %v", readErr)
	}
}

func TestCORS_Preflight(t *testing.T) {
	h := CORS([]string{"https://app.example.com"})(okHandler())

	req := httptest.NewRequest("OPTIONS", "/api/convert", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Errorf("Allow-Origin = %q", got)
	}

	req = httptest.NewRequest("GET", "/api/formats", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("foreign origin allowed: %q", got)
	}
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(map[string]RateLimitConfig{
		"POST /api/convert": {MaxRequests: 2, Window: time.Minute, Enabled: true},
	}, "/health")
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	h := rl.Middleware(okHandler())

	post := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest("POST", "/api/convert", nil)
		req.RemoteAddr = ip + ":1234"
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w
	}

	for i := 0; i < 2; i++ {
		if w := post("1.2.3.4"); w.Code != http.StatusOK {
			t.Fatalf("request %d: got %d", i+1, w.Code)
		}
	}
	w := post("1.2.3.4")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("third request: got %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") != "60" {
		t.Errorf("Retry-After = %q", w.Header().Get("Retry-After"))
	}
	if !strings.Contains(w.Body.String(), `"error"`) {
		t.Errorf("body = %q", w.Body.String())
	}

	// Other clients and other endpoints are unaffected.
	if w := post("5.6.7.8"); w.Code != http.StatusOK {
		t.Errorf("other ip: got %d", w.Code)
	}
	if w := serve(h, "GET", "/api/formats"); w.Code != http.StatusOK {
		t.Errorf("unlimited endpoint: got %d", w.Code)
	}

	// The window resets.
	now = now.Add(61 * time.Second)
	if w := post("1.2.3.4"); w.Code != http.StatusOK {
		t.Errorf("after window: got %d", w.Code)
	}

	rl.gc()
	now = now.Add(2 * time.Minute)
	rl.gc()
	n := 0
	rl.buckets.Range(func(_, _ any) bool { n++; return true })
	if n != 0 {
		t.Errorf("gc left %d buckets", n)
	}
}

func TestExtractIP(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	if got := ExtractIP(req); got != "203.0.113.9" {
		t.Errorf("xff: got %q", got)
	}
	req = httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "192.0.2.1:4000"
	if got := ExtractIP(req); got != "192.0.2.1" {
		t.Errorf("remote: got %q", got)
	}
}

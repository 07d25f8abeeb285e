package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/hazyhaar/docswap/convert"
	"github.com/hazyhaar/docswap/docpipe"
	"github.com/hazyhaar/docswap/render"
	"github.com/hazyhaar/docswap/shield"
)

func newTestServer(t *testing.T, mutate func(*convert.Config), opts Options) (*httptest.Server, *convert.Service) {
	t.Helper()
	cfg := convert.Config{
		StagingDir: t.TempDir(),
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	svc, err := convert.New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	h := New(svc, opts)
	srv := httptest.NewServer(h.Router(shield.DefaultStack(shield.Config{
		MaxUploadBytes: svc.MaxUploadBytes(),
		RateLimiter:    shield.NewRateLimiter(shield.DefaultRateLimits(), "/health"),
	})))
	t.Cleanup(srv.Close)
	return srv, svc
}

func sections() []docpipe.Section {
	return []docpipe.Section{
		{Heading: "OVERVIEW", Content: []docpipe.Block{
			docpipe.Paragraph("Quarterly numbers went up across the board."),
			docpipe.List([]string{"- revenue", "- margin"}),
		}},
	}
}

func pdfFixture(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := (render.NativeRenderer{}).RenderPDF(context.Background(), &buf, sections(), render.Meta{}); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func docxFixture(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := render.WriteDocx(&buf, sections(), render.DocxOptions{}); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// upload posts data as the multipart field "field" named filename.
func upload(t *testing.T, url, field, filename string, data []byte) *http.Response {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile(field, filename)
	if err != nil {
		t.Fatal(err)
	}
	fw.Write(data)
	mw.Close()

	resp, err := http.Post(url+"/api/convert", mw.FormDataContentType(), &body)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return m
}

var linkRe = regexp.MustCompile(`^/api/download/\d+_.*\.docx$`)

func TestConvert_PDF(t *testing.T) {
	srv, _ := newTestServer(t, nil, Options{})

	resp := upload(t, srv.URL, "file", "report.pdf", pdfFixture(t))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	body := decode(t, resp)
	if body["success"] != true || body["message"] != "File converted successfully" {
		t.Errorf("body = %v", body)
	}
	link, _ := body["downloadLink"].(string)
	if !linkRe.MatchString(link) {
		t.Fatalf("downloadLink = %q", link)
	}

	dl, err := http.Get(srv.URL + link)
	if err != nil {
		t.Fatal(err)
	}
	defer dl.Body.Close()
	if dl.StatusCode != http.StatusOK {
		t.Fatalf("download status = %d", dl.StatusCode)
	}
	if cd := dl.Header.Get("Content-Disposition"); cd != `attachment; filename=report.docx` {
		t.Errorf("Content-Disposition = %q", cd)
	}
	data, _ := io.ReadAll(dl.Body)
	html, err := docpipe.DocxToHTML(data)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(html, "OVERVIEW") {
		t.Errorf("converted docx lost the heading:\n%s", html)
	}
}

func TestConvert_DocxToPDFFlow(t *testing.T) {
	srv, _ := newTestServer(t, nil, Options{})

	resp := upload(t, srv.URL, "file", "minutes.docx", docxFixture(t))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	link := decode(t, resp)["downloadLink"].(string)
	if !strings.HasSuffix(link, "_minutes.pdf") {
		t.Fatalf("link = %q", link)
	}

	dl, err := http.Get(srv.URL + link)
	if err != nil {
		t.Fatal(err)
	}
	defer dl.Body.Close()
	if ct := dl.Header.Get("Content-Type"); ct != "application/pdf" {
		t.Errorf("Content-Type = %q", ct)
	}
	data, _ := io.ReadAll(dl.Body)
	if err := render.ValidatePDF(data); err != nil {
		t.Errorf("downloaded pdf invalid: %v", err)
	}
}

func TestConvert_Rejections(t *testing.T) {
	srv, _ := newTestServer(t, nil, Options{})

	cases := []struct {
		name     string
		field    string
		filename string
		want     string
	}{
		{"unsupported extension", "file", "notes.txt", "Only .pdf and .docx files are supported"},
		{"wrong field", "document", "a.pdf", "No file was uploaded"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := upload(t, srv.URL, tc.field, tc.filename, []byte("hello"))
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", resp.StatusCode)
			}
			if got := decode(t, resp)["error"]; got != tc.want {
				t.Errorf("error = %q, want %q", got, tc.want)
			}
		})
	}

	t.Run("not multipart", func(t *testing.T) {
		resp, err := http.Post(srv.URL+"/api/convert", "application/json", strings.NewReader("{}"))
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", resp.StatusCode)
		}
	})
}

func TestConvert_TooLarge(t *testing.T) {
	srv, svc := newTestServer(t, func(c *convert.Config) { c.MaxUploadBytes = 64 }, Options{})

	resp := upload(t, srv.URL, "file", "big.pdf", bytes.Repeat([]byte("x"), 128))
	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", resp.StatusCode)
	}
	entries, _ := os.ReadDir(svc.StagingDir())
	if len(entries) != 0 {
		t.Errorf("oversized upload staged: %d files", len(entries))
	}
}

func TestConvert_Failure(t *testing.T) {
	// WHAT: a corrupt PDF yields 500 with the generic error and details.
	// WHY: clients distinguish bad requests from failed conversions by status.
	srv, _ := newTestServer(t, nil, Options{})

	resp := upload(t, srv.URL, "file", "broken.pdf", []byte("%PDF-1.4 garbage"))
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", resp.StatusCode)
	}
	body := decode(t, resp)
	if body["error"] != "File conversion failed" {
		t.Errorf("error = %v", body["error"])
	}
	if d, _ := body["details"].(string); d == "" {
		t.Error("details missing")
	}
}

// lockedBuffer collects log output written from server goroutines.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestConvert_FailureLoggedOnce(t *testing.T) {
	// WHAT: a failed conversion produces one failure record.
	// WHY: the orchestrator owns failure logging; the handler only maps
	// errors to statuses.
	var logs lockedBuffer
	logger := slog.New(slog.NewJSONHandler(&logs, nil))
	prev := slog.Default()
	slog.SetDefault(logger)
	t.Cleanup(func() { slog.SetDefault(prev) })

	srv, _ := newTestServer(t, func(c *convert.Config) { c.Logger = logger }, Options{})
	resp := upload(t, srv.URL, "file", "broken.pdf", []byte("%PDF-1.4 garbage"))
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", resp.StatusCode)
	}

	out := logs.String()
	if n := strings.Count(out, `"msg":"convert: failed"`); n != 1 {
		t.Errorf("failure records = %d, want 1:\n%s", n, out)
	}
	if strings.Contains(out, "convert rejected") {
		t.Errorf("handler logged the failure again at info or above:\n%s", out)
	}
}

func TestConvert_DotsInName(t *testing.T) {
	// WHAT: a name with consecutive dots converts and its link downloads.
	// WHY: ".." inside a file name is not a path element.
	srv, _ := newTestServer(t, nil, Options{})

	resp := upload(t, srv.URL, "file", "report..v2.pdf", pdfFixture(t))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	link, _ := decode(t, resp)["downloadLink"].(string)
	if !strings.HasSuffix(link, "_report..v2.docx") {
		t.Fatalf("downloadLink = %q", link)
	}

	dl, err := http.Get(srv.URL + link)
	if err != nil {
		t.Fatal(err)
	}
	io.Copy(io.Discard, dl.Body)
	dl.Body.Close()
	if dl.StatusCode != http.StatusOK {
		t.Fatalf("download status = %d, want 200", dl.StatusCode)
	}
	if cd := dl.Header.Get("Content-Disposition"); cd != `attachment; filename=report..v2.docx` {
		t.Errorf("Content-Disposition = %q", cd)
	}
}

func TestDownload_NotFound(t *testing.T) {
	srv, svc := newTestServer(t, nil, Options{})
	secret := filepath.Join(filepath.Dir(svc.StagingDir()), "secret.txt")
	os.WriteFile(secret, []byte("top secret"), 0o644)

	for _, path := range []string{
		"/api/download/1234_missing.pdf",
		"/api/download/..%2Fsecret.txt",
		"/api/download/%2E%2E%2Fsecret.txt",
	} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		body := decode(t, resp)
		resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("%s: status = %d, want 404", path, resp.StatusCode)
		}
		if body["error"] != "File not found" {
			t.Errorf("%s: error = %v", path, body["error"])
		}
	}
}

func TestDownload_DeleteAfterDownload(t *testing.T) {
	srv, svc := newTestServer(t, func(c *convert.Config) { c.DeleteAfterDownload = true }, Options{})
	name := "1700000000000_x.pdf"
	os.WriteFile(filepath.Join(svc.StagingDir(), name), []byte("%PDF-1.4"), 0o644)

	resp, err := http.Get(srv.URL + "/api/download/" + name)
	if err != nil {
		t.Fatal(err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if _, err := os.Stat(filepath.Join(svc.StagingDir(), name)); !os.IsNotExist(err) {
		t.Errorf("file still staged after download: %v", err)
	}

	resp, err = http.Get(srv.URL + "/api/download/" + name)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("second download: status = %d, want 404", resp.StatusCode)
	}
}

func TestDownload_HeadKeepsFile(t *testing.T) {
	// WHAT: HEAD on a download link reports headers without consuming it.
	// WHY: link checkers and prefetchers must not delete the output.
	srv, svc := newTestServer(t, func(c *convert.Config) { c.DeleteAfterDownload = true }, Options{})
	name := "1700000000000_x.pdf"
	path := filepath.Join(svc.StagingDir(), name)
	os.WriteFile(path, []byte("%PDF-1.4"), 0o644)

	req, _ := http.NewRequest(http.MethodHead, srv.URL+"/api/download/"+name, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("HEAD status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/pdf" {
		t.Errorf("HEAD Content-Type = %q", ct)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("HEAD removed the staged file: %v", err)
	}

	resp, err = http.Get(srv.URL + "/api/download/" + name)
	if err != nil {
		t.Fatal(err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET after HEAD status = %d, want 200", resp.StatusCode)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("file still staged after GET: %v", err)
	}
}

func TestHealthAndFormats(t *testing.T) {
	srv, _ := newTestServer(t, nil, Options{})

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	if decode(t, resp)["status"] != "ok" {
		t.Error("health not ok")
	}
	resp.Body.Close()

	resp, err = http.Get(srv.URL + "/api/formats")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var f struct {
		Conversions map[string]string `json:"conversions"`
	}
	json.NewDecoder(resp.Body).Decode(&f)
	if f.Conversions["pdf"] != "docx" || f.Conversions["docx"] != "pdf" {
		t.Errorf("conversions = %v", f.Conversions)
	}
}

func TestRateLimit(t *testing.T) {
	srv, _ := newTestServer(t, nil, Options{})

	var last int
	for i := 0; i < 31; i++ {
		resp := upload(t, srv.URL, "file", "notes.txt", []byte("x"))
		last = resp.StatusCode
	}
	if last != http.StatusTooManyRequests {
		t.Errorf("31st upload: status = %d, want 429", last)
	}
}

func TestStatic_SPAFallback(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>app</html>"), 0o644)
	os.WriteFile(filepath.Join(dir, "app.js"), []byte("console.log(1)"), 0o644)
	srv, _ := newTestServer(t, nil, Options{StaticDir: dir})

	for path, want := range map[string]string{
		"/app.js":     "console.log(1)",
		"/some/route": "<html>app</html>",
		"/":           "<html>app</html>",
	} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		b, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if string(b) != want {
			t.Errorf("%s: body = %q, want %q", path, b, want)
		}
	}

	// API routes still win over the fallback.
	resp, err := http.Get(srv.URL + "/api/download/nope.pdf")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("api route shadowed: %d", resp.StatusCode)
	}
}

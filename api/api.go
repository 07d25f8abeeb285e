// Package api exposes the conversion service over HTTP:
//
//	POST /api/convert              multipart field "file" → download link
//	GET  /api/download/{filename}  staged output as an attachment
//	GET  /api/formats              supported conversions
//	GET  /health                   liveness
//
// Handlers answer JSON errors of the form {"error": "..."}.
package api

import (
	"errors"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/docswap/convert"
	"github.com/hazyhaar/docswap/docpipe"
	"github.com/hazyhaar/docswap/horosafe"
	"github.com/hazyhaar/docswap/shield"
)

// Client-facing messages.
const (
	msgNoFile      = "No file was uploaded"
	msgUnsupported = "Only .pdf and .docx files are supported"
	msgTooLarge    = "File exceeds the upload size limit"
	msgFailed      = "File conversion failed"
	msgConverted   = "File converted successfully"
	msgNotFound    = "File not found"
)

// multipartMemory is how much of a multipart body is kept in memory before
// spilling to temporary files.
const multipartMemory = 8 << 20

// Options configures the routes mounted by Routes.
type Options struct {
	// MCP, when set, is mounted at /mcp.
	MCP http.Handler

	// StaticDir, when set, serves a single-page front end: existing files
	// are served as-is and every other GET falls back to index.html.
	StaticDir string
}

// Handler serves the conversion API.
type Handler struct {
	svc  *convert.Service
	opts Options
}

// New creates a Handler backed by svc.
func New(svc *convert.Service, opts Options) *Handler {
	return &Handler{svc: svc, opts: opts}
}

// Routes registers all endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/convert", h.handleConvert)
		r.Get("/download/{filename}", h.handleDownload)
		r.Get("/formats", h.handleFormats)
	})

	if h.opts.MCP != nil {
		r.Handle("/mcp", h.opts.MCP)
		r.Handle("/mcp/*", h.opts.MCP)
	}
	if h.opts.StaticDir != "" {
		r.Get("/*", h.handleStatic)
	}
}

// Router returns a chi router with the shield stack and all routes.
func (h *Handler) Router(stack []func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	for _, mw := range stack {
		r.Use(mw)
	}
	h.Routes(r)
	return r
}

type convertResponse struct {
	Success      bool   `json:"success"`
	Message      string `json:"message"`
	DownloadLink string `json:"downloadLink"`
}

func (h *Handler) handleConvert(w http.ResponseWriter, r *http.Request) {
	logger := shield.GetLogger(r.Context())

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": msgTooLarge})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": msgNoFile})
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": msgNoFile})
		return
	}
	defer file.Close()

	if _, err := docpipe.Detect(header.Filename); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": msgUnsupported})
		return
	}
	if header.Size > h.svc.MaxUploadBytes() {
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": msgTooLarge})
		return
	}

	job, err := h.svc.Convert(r.Context(), header.Filename, file)
	if err != nil {
		switch {
		case errors.Is(err, horosafe.ErrTooLarge):
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": msgTooLarge})
		case errors.Is(err, docpipe.ErrUnsupported):
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": msgUnsupported})
		case errors.Is(err, convert.ErrValidation):
			writeError(w, http.StatusBadRequest, err)
		default:
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error":   msgFailed,
				"details": err.Error(),
			})
		}
		logger.Debug("convert rejected", "job_id", job.ID, "file", header.Filename, "error", err)
		return
	}

	logger.Info("converted", "job_id", job.ID, "output", job.OutputName)
	writeJSON(w, http.StatusOK, convertResponse{
		Success:      true,
		Message:      msgConverted,
		DownloadLink: job.DownloadLink(),
	})
}

func (h *Handler) handleDownload(w http.ResponseWriter, r *http.Request) {
	name, err := url.PathUnescape(chi.URLParam(r, "filename"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": msgNotFound})
		return
	}

	f, suggested, err := h.svc.Open(name)
	if err != nil {
		if errors.Is(err, convert.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": msgNotFound})
			return
		}
		shield.GetLogger(r.Context()).Error("download", "file", name, "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	w.Header().Set("Content-Type", contentType(suggested))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": suggested}))
	http.ServeContent(w, r, suggested, info.ModTime(), f)
	f.Close()

	// Link checkers and prefetchers send HEAD; only a GET consumes the file.
	if !shield.IsHead(r) {
		h.svc.Downloaded(name)
	}
}

func (h *Handler) handleFormats(w http.ResponseWriter, _ *http.Request) {
	conversions := map[string]string{}
	for _, f := range docpipe.SupportedFormats() {
		conversions[f] = string(docpipe.Format(f).Target())
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"formats":     docpipe.SupportedFormats(),
		"conversions": conversions,
	})
}

func (h *Handler) handleStatic(w http.ResponseWriter, r *http.Request) {
	rel := strings.TrimPrefix(r.URL.Path, "/")
	if rel != "" {
		if path, err := horosafe.SafePath(h.opts.StaticDir, rel); err == nil {
			if info, err := os.Stat(path); err == nil && !info.IsDir() {
				http.ServeFile(w, r, path)
				return
			}
		}
	}
	http.ServeFile(w, r, filepath.Join(h.opts.StaticDir, "index.html"))
}

func contentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return "application/pdf"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	default:
		return "application/octet-stream"
	}
}

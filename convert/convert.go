// Package convert runs one upload through the conversion pipeline: stage the
// original, extract, classify, build the other format, and stage the output
// for download. Staged files live in a flat directory under timestamp-prefixed
// names and are removed after download (when configured) or by the sweeper.
package convert

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/hazyhaar/docswap/docpipe"
	"github.com/hazyhaar/docswap/horosafe"
	"github.com/hazyhaar/docswap/idgen"
	"github.com/hazyhaar/docswap/kit"
	"github.com/hazyhaar/docswap/render"
)

var (
	// ErrValidation is returned for uploads the service refuses to process:
	// unsupported extension, unusable name, or over the size cap.
	ErrValidation = errors.New("convert: invalid upload")

	// ErrIO is returned when staging files cannot be written or read.
	ErrIO = errors.New("convert: staging i/o failed")

	// ErrNotFound is returned when a requested download does not exist.
	ErrNotFound = errors.New("convert: file not found")
)

// State is a step of the conversion lifecycle.
type State string

const (
	StateUploaded    State = "uploaded"
	StateExtracting  State = "extracting"
	StateClassifying State = "classifying"
	StateBuilding    State = "building"
	StateStaged      State = "staged"
	StateDownloaded  State = "downloaded"
	StateExpired     State = "expired"
	StateFailed      State = "failed"
)

// Job is one conversion request.
type Job struct {
	ID           string         `json:"id"`
	Stamp        int64          `json:"stamp"` // unix millis, prefixes staged names
	OriginalName string         `json:"original_name"`
	Source       docpipe.Format `json:"source"`
	Target       docpipe.Format `json:"target"`
	UploadName   string         `json:"upload_name"`
	OutputName   string         `json:"output_name,omitempty"`
	State        State          `json:"state"`
	Sections     int            `json:"sections"`
	Dropped      int            `json:"dropped,omitempty"`
	Fallback     bool           `json:"fallback,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	FinishedAt   time.Time      `json:"finished_at,omitempty"`
	Error        string         `json:"error,omitempty"`

	log *slog.Logger
}

// DownloadLink returns the relative URL serving the job's output.
func (j *Job) DownloadLink() string {
	return "/api/download/" + url.PathEscape(j.OutputName)
}

// Config configures the conversion service.
type Config struct {
	// StagingDir holds uploads and outputs (default: "uploads").
	StagingDir string

	// MaxUploadBytes caps a single upload (default: 50 MB).
	MaxUploadBytes int64

	// DeleteAfterDownload removes an output once it has been served.
	DeleteAfterDownload bool

	// TTL is how long staged files survive before the sweeper expires them
	// (default: 24h).
	TTL time.Duration

	// Renderer builds PDFs from sections (default: native writer).
	Renderer render.PDFRenderer

	// Layout is used by the default native renderer (default:
	// render.DefaultLayout, footer included).
	Layout *render.Layout

	// Plain disables the section classifier.
	Plain bool

	// MCPRoot confines the input and output paths of the docswap_convert
	// tool; they resolve under it (default: StagingDir).
	MCPRoot string

	Logger *slog.Logger
	Now    func() time.Time
	IDs    idgen.Generator
}

func (c *Config) defaults() {
	if c.StagingDir == "" {
		c.StagingDir = "uploads"
	}
	if c.MaxUploadBytes <= 0 {
		c.MaxUploadBytes = 50 << 20
	}
	if c.MCPRoot == "" {
		c.MCPRoot = c.StagingDir
	}
	if c.TTL <= 0 {
		c.TTL = 24 * time.Hour
	}
	if c.Layout == nil {
		l := render.DefaultLayout()
		c.Layout = &l
	}
	if c.Renderer == nil {
		c.Renderer = render.NativeRenderer{Layout: *c.Layout}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.IDs == nil {
		c.IDs = idgen.Prefixed("job_", idgen.Default)
	}
}

// Service converts uploads and serves their staged outputs.
type Service struct {
	cfg    Config
	pipe   *docpipe.Pipeline
	logger *slog.Logger
}

// New creates a Service and makes sure the staging directory exists.
func New(cfg Config) (*Service, error) {
	cfg.defaults()
	if err := os.MkdirAll(cfg.StagingDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create staging dir: %v", ErrIO, err)
	}
	return &Service{
		cfg: cfg,
		pipe: docpipe.New(docpipe.Config{
			MaxFileSize: cfg.MaxUploadBytes,
			Plain:       cfg.Plain,
			Logger:      cfg.Logger,
		}),
		logger: cfg.Logger,
	}, nil
}

// StagingDir returns the directory holding staged files.
func (s *Service) StagingDir() string { return s.cfg.StagingDir }

// MaxUploadBytes returns the per-upload size cap.
func (s *Service) MaxUploadBytes() int64 { return s.cfg.MaxUploadBytes }

func (s *Service) transition(job *Job, state State) {
	job.State = state
	job.log.Info("convert: state", "state", state)
}

func (s *Service) fail(job *Job, err error) (*Job, error) {
	job.State = StateFailed
	job.Error = err.Error()
	job.FinishedAt = s.cfg.Now()
	job.log.Error("convert: failed", "state", StateFailed, "original_name", job.OriginalName, "error", err)
	return job, err
}

// Convert stages src under originalName, converts it to the other format and
// stages the result. On failure the returned job is in StateFailed and the
// error wraps ErrValidation, ErrIO, or a pipeline error.
func (s *Service) Convert(ctx context.Context, originalName string, src io.Reader) (*Job, error) {
	now := s.cfg.Now()
	job := &Job{
		ID:           s.cfg.IDs(),
		Stamp:        now.UnixMilli(),
		OriginalName: originalName,
		CreatedAt:    now,
	}
	job.log = kit.Logger(ctx, s.logger).With("job_id", job.ID)

	name, err := horosafe.SafeFileName(originalName)
	if err != nil {
		return s.fail(job, fmt.Errorf("%w: %w", ErrValidation, err))
	}
	job.OriginalName = name
	format, err := docpipe.Detect(name)
	if err != nil {
		return s.fail(job, fmt.Errorf("%w: %w", ErrValidation, err))
	}
	job.Source, job.Target = format, format.Target()

	data, err := s.stageUpload(job, src)
	if err != nil {
		return s.fail(job, err)
	}
	s.transition(job, StateUploaded)

	s.transition(job, StateExtracting)
	raw, err := s.pipe.Extract(ctx, format, data)
	if err != nil {
		return s.fail(job, err)
	}

	s.transition(job, StateClassifying)
	doc, err := s.pipe.Structure(raw)
	if err != nil {
		return s.fail(job, err)
	}
	job.Sections, job.Dropped, job.Fallback = len(doc.Sections), doc.Dropped, doc.Fallback
	if doc.Dropped > 0 {
		job.log.Warn("convert: list items dropped by classifier", "dropped", doc.Dropped)
	}

	s.transition(job, StateBuilding)
	var out bytes.Buffer
	if err := s.build(ctx, &out, job, doc.Sections); err != nil {
		return s.fail(job, err)
	}

	job.OutputName = OutputName(job.Stamp, name, job.Target)
	if err := s.writeStaged(job.OutputName, out.Bytes()); err != nil {
		return s.fail(job, err)
	}
	job.FinishedAt = s.cfg.Now()
	s.transition(job, StateStaged)
	job.log.Info("convert: done",
		"output", job.OutputName, "sections", job.Sections,
		"bytes", out.Len(), "duration", job.FinishedAt.Sub(job.CreatedAt))
	return job, nil
}

func (s *Service) stageUpload(job *Job, src io.Reader) ([]byte, error) {
	job.UploadName = UploadName(job.Stamp, job.OriginalName)
	path := filepath.Join(s.cfg.StagingDir, job.UploadName)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: create upload: %v", ErrIO, err)
	}
	var buf bytes.Buffer
	_, err = horosafe.CopyLimited(io.MultiWriter(f, &buf), src, s.cfg.MaxUploadBytes)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		if errors.Is(err, horosafe.ErrTooLarge) {
			return nil, fmt.Errorf("%w: %w", ErrValidation, err)
		}
		return nil, fmt.Errorf("%w: write upload: %v", ErrIO, err)
	}
	return buf.Bytes(), nil
}

func (s *Service) build(ctx context.Context, w io.Writer, job *Job, sections []docpipe.Section) error {
	switch job.Target {
	case docpipe.FormatDocx:
		return render.WriteDocx(w, sections, render.DocxOptions{Created: job.CreatedAt})
	default:
		return s.cfg.Renderer.RenderPDF(ctx, w, sections, render.Meta{
			OriginalName: job.OriginalName,
			Created:      job.CreatedAt,
		})
	}
}

func (s *Service) writeStaged(name string, data []byte) error {
	if err := os.WriteFile(filepath.Join(s.cfg.StagingDir, name), data, 0o644); err != nil {
		return fmt.Errorf("%w: write output: %v", ErrIO, err)
	}
	return nil
}

// UploadName is the staged name of an upload: "{millis}_{originalName}".
func UploadName(stamp int64, originalName string) string {
	return strconv.FormatInt(stamp, 10) + "_" + originalName
}

// OutputName is the staged name of a conversion result:
// "{millis}_{baseName}.{targetExt}".
func OutputName(stamp int64, originalName string, target docpipe.Format) string {
	base := strings.TrimSuffix(originalName, filepath.Ext(originalName))
	return strconv.FormatInt(stamp, 10) + "_" + base + target.Ext()
}

// SuggestedName strips the timestamp prefix from a staged name: everything
// after the first underscore.
func SuggestedName(staged string) string {
	if _, rest, ok := strings.Cut(staged, "_"); ok && rest != "" {
		return rest
	}
	return staged
}

// stampOf parses the millis prefix of a staged name.
func stampOf(staged string) (int64, bool) {
	prefix, _, ok := strings.Cut(staged, "_")
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(prefix, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Open opens a staged file for download. It returns the file and the name the
// client should save it under. Unknown names and names escaping the staging
// directory both yield ErrNotFound.
func (s *Service) Open(name string) (*os.File, string, error) {
	if name == "" {
		return nil, "", ErrNotFound
	}
	path, err := horosafe.SafePath(s.cfg.StagingDir, name)
	if err != nil {
		s.logger.Warn("convert: rejected download path", "name", name, "error", err)
		return nil, "", fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, "", fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, "", fmt.Errorf("%w: open %s: %v", ErrIO, name, err)
	}
	info, err := f.Stat()
	if err != nil || info.IsDir() {
		f.Close()
		return nil, "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return f, SuggestedName(filepath.Base(path)), nil
}

// Downloaded records that name was served. With DeleteAfterDownload set the
// file is removed; failures are only logged.
func (s *Service) Downloaded(name string) {
	s.logger.Info("convert: state", "output", name, "state", StateDownloaded)
	if !s.cfg.DeleteAfterDownload {
		return
	}
	path, err := horosafe.SafePath(s.cfg.StagingDir, name)
	if err != nil {
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Warn("convert: remove after download", "output", name, "error", err)
	}
}

// Sweep removes staged files whose timestamp prefix is older than the TTL
// relative to now. Files without a parseable prefix are left alone.
func (s *Service) Sweep(now time.Time) (int, error) {
	entries, err := os.ReadDir(s.cfg.StagingDir)
	if err != nil {
		return 0, fmt.Errorf("%w: read staging dir: %v", ErrIO, err)
	}
	cutoff := now.Add(-s.cfg.TTL).UnixMilli()
	removed := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		stamp, ok := stampOf(e.Name())
		if !ok || stamp >= cutoff {
			continue
		}
		if err := os.Remove(filepath.Join(s.cfg.StagingDir, e.Name())); err != nil {
			s.logger.Warn("sweeper: remove", "file", e.Name(), "error", err)
			continue
		}
		s.logger.Info("convert: state", "file", e.Name(), "state", StateExpired)
		removed++
	}
	return removed, nil
}

// RunSweeper sweeps the staging directory every interval. Blocks until
// ctx is done.
func (s *Service) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	s.logger.Info("sweeper: started", "interval", interval, "ttl", s.cfg.TTL)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sweeper: stopped")
			return
		case <-ticker.C:
			n, err := s.Sweep(s.cfg.Now())
			if err != nil {
				s.logger.Warn("sweeper: cycle", "error", err)
				continue
			}
			if n > 0 {
				s.logger.Info("sweeper: cycle done", "expired", n)
			}
		}
	}
}

// ConvertFile converts the file at path and copies the result into outDir
// under "{baseName}.{targetExt}". It returns the written path.
func (s *Service) ConvertFile(ctx context.Context, path, outDir string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: open %s: %v", ErrIO, path, err)
	}
	defer f.Close()

	job, err := s.Convert(ctx, filepath.Base(path), f)
	if err != nil {
		return "", err
	}

	staged := filepath.Join(s.cfg.StagingDir, job.OutputName)
	data, err := os.ReadFile(staged)
	if err != nil {
		return "", fmt.Errorf("%w: read output: %v", ErrIO, err)
	}
	if outDir == "" {
		outDir = filepath.Dir(path)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("%w: create %s: %v", ErrIO, outDir, err)
	}
	dst := filepath.Join(outDir, SuggestedName(job.OutputName))
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return "", fmt.Errorf("%w: write %s: %v", ErrIO, dst, err)
	}
	s.Downloaded(job.OutputName)
	return dst, nil
}

// Package docpipe reads PDF and DOCX files into an ordered sequence of
// sections (a heading plus paragraph and list blocks).
//
// Supported inputs:
//   - .pdf: text rows via ledongthuc/pdf, validated and backed up by a
//     pdfcpu content-stream scan, then partitioned by the line classifier
//   - .docx: word/document.xml rendered to HTML and walked as a DOM tree;
//     when the walk finds nothing, the HTML is flattened to Markdown lines
//     and classified instead
//
// Usage:
//
//	pipe := docpipe.New(docpipe.Config{})
//	doc, err := pipe.Read(ctx, "/path/to/file.pdf")
//	fmt.Println(len(doc.Sections), "sections")
package docpipe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/hazyhaar/docswap/horosafe"
)

var (
	// ErrExtraction is returned when the source content cannot be read:
	// corrupt or encrypted files, missing parts, or no text at all.
	ErrExtraction = errors.New("docpipe: extraction failed")

	// ErrUnsupported is returned for file extensions other than .pdf and .docx.
	ErrUnsupported = errors.New("docpipe: unsupported format")
)

// Pipeline is the document reading engine.
type Pipeline struct {
	cfg    Config
	logger *slog.Logger
}

// New creates a Pipeline with the given configuration.
func New(cfg Config) *Pipeline {
	cfg.defaults()
	return &Pipeline{
		cfg:    cfg,
		logger: cfg.Logger,
	}
}

// Detect returns the document format based on file extension (case-insensitive).
func Detect(path string) (Format, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".docx":
		return FormatDocx, nil
	case ".pdf":
		return FormatPDF, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupported, ext)
	}
}

// Read parses the file at path.
func (p *Pipeline) Read(ctx context.Context, path string) (*Document, error) {
	format, err := Detect(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	data, err := horosafe.LimitedReadAll(f, p.cfg.MaxFileSize)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	doc, err := p.ReadBytes(ctx, format, data)
	if err != nil {
		return nil, fmt.Errorf("read %s (%s): %w", path, format, err)
	}
	doc.Path = path
	return doc, nil
}

// ReadBytes parses an in-memory document of the given format.
func (p *Pipeline) ReadBytes(ctx context.Context, format Format, data []byte) (*Document, error) {
	raw, err := p.Extract(ctx, format, data)
	if err != nil {
		return nil, err
	}
	return p.Structure(raw)
}

// Raw is extracted source content that has not been grouped into sections
// yet: linear text for PDF, simple HTML for DOCX.
type Raw struct {
	Format  Format
	Text    string
	HTML    string
	Quality *ExtractionQuality
}

// Extract pulls the raw content out of an in-memory document.
func (p *Pipeline) Extract(_ context.Context, format Format, data []byte) (*Raw, error) {
	p.logger.Debug("extracting document", "format", format, "bytes", len(data))

	switch format {
	case FormatPDF:
		text, quality, err := ExtractPDFText(data)
		if err != nil {
			return nil, err
		}
		p.logger.Debug("pdf text extracted", "quality", quality)
		return &Raw{Format: FormatPDF, Text: text, Quality: quality}, nil
	case FormatDocx:
		htmlDoc, err := DocxToHTML(data)
		if err != nil {
			return nil, err
		}
		return &Raw{Format: FormatDocx, HTML: htmlDoc}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupported, format)
	}
}

// Structure groups raw content into sections. PDF text goes through the line
// classifier; DOCX HTML is walked as a tree, falling back to classified
// plain lines when the walk finds nothing.
func (p *Pipeline) Structure(raw *Raw) (*Document, error) {
	switch raw.Format {
	case FormatPDF:
		return p.structurePDF(raw), nil
	case FormatDocx:
		return p.structureDocx(raw)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupported, raw.Format)
	}
}

func (p *Pipeline) structurePDF(raw *Raw) *Document {
	doc := &Document{Format: FormatPDF, Quality: raw.Quality}
	lines := SplitLines(raw.Text)
	if p.cfg.Plain {
		doc.Sections = PlainSections(lines)
		doc.Fallback = true
		return doc
	}
	res := ClassifyWithStats(lines)
	doc.Sections, doc.Dropped = res.Sections, res.Dropped
	return doc
}

func (p *Pipeline) structureDocx(raw *Raw) (*Document, error) {
	doc := &Document{Format: FormatDocx}
	if !p.cfg.Plain {
		sections, err := SectionsFromHTML(strings.NewReader(raw.HTML))
		if err != nil {
			return nil, fmt.Errorf("%w: parse html: %v", ErrExtraction, err)
		}
		if len(sections) > 0 {
			doc.Sections = sections
			return doc, nil
		}
		p.logger.Debug("no structure found in docx, using plain lines")
	}

	res, err := SectionsFromPlainHTML(raw.HTML)
	if err != nil {
		return nil, fmt.Errorf("%w: markdown: %v", ErrExtraction, err)
	}
	doc.Sections, doc.Dropped, doc.Fallback = res.Sections, res.Dropped, true
	return doc, nil
}

// SupportedFormats returns all supported input extensions.
func SupportedFormats() []string {
	return []string{string(FormatPDF), string(FormatDocx)}
}

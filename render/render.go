// Package render builds output documents from classified sections: Word
// packages written directly as OOXML parts, and paginated PDFs laid out line
// by line on a page canvas (native writer) or printed by headless Chrome.
package render

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/hazyhaar/docswap/docpipe"
)

var (
	// ErrEmptyDocument is returned when the sections hold nothing to write.
	ErrEmptyDocument = errors.New("render: nothing to write")

	// ErrBuild is returned when the output document cannot be produced or
	// fails validation.
	ErrBuild = errors.New("render: build failed")
)

// Meta describes the conversion that produced a document.
type Meta struct {
	OriginalName string
	Created      time.Time
}

// TimestampLayout formats Meta.Created in document footers.
const TimestampLayout = "1/2/2006, 3:04:05 PM"

// PDFRenderer turns sections into a PDF written to w.
type PDFRenderer interface {
	RenderPDF(ctx context.Context, w io.Writer, sections []docpipe.Section, meta Meta) error
}

// isEmpty reports whether sections carry no text at all.
func isEmpty(sections []docpipe.Section) bool {
	for _, s := range docpipe.Flatten(sections) {
		if s != "" {
			return false
		}
	}
	return true
}

package render

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hazyhaar/docswap/docpipe"
)

func sampleSections() []docpipe.Section {
	return []docpipe.Section{
		{Content: []docpipe.Block{docpipe.Paragraph("Opening remarks before any heading.")}},
		{
			Heading: "Overview",
			Content: []docpipe.Block{
				docpipe.Paragraph("The quarter closed with (mostly) stable results."),
				docpipe.List([]string{"revenue grew", "costs fell"}),
			},
		},
		{Heading: "Outlook", Content: []docpipe.Block{docpipe.Paragraph("Café prices rose in Zürich.")}},
	}
}

func TestHelveticaMeasurer(t *testing.T) {
	m := HelveticaMeasurer{}
	body := Style{Size: 12}
	short, long := m.WidthOf("iii", body), m.WidthOf("WWW", body)
	if short <= 0 || long <= short {
		t.Errorf("widths: iii=%.2f WWW=%.2f", short, long)
	}
	if bold := m.WidthOf("WWW", Style{Size: 12, Bold: true}); bold <= 0 {
		t.Errorf("bold width = %.2f", bold)
	}
	if double := m.WidthOf("WWW", Style{Size: 24}); double < 1.9*long {
		t.Errorf("width does not scale with size: %.2f vs %.2f", double, long)
	}
}

func TestNativeRenderer_ValidPDF(t *testing.T) {
	// WHAT: The native writer produces a PDF that pdfcpu accepts and that
	// reads back with its text in order.
	var buf bytes.Buffer
	meta := Meta{OriginalName: "quarter.docx", Created: time.Date(2026, 3, 1, 14, 5, 0, 0, time.UTC)}
	if err := (NativeRenderer{}).RenderPDF(context.Background(), &buf, sampleSections(), meta); err != nil {
		t.Fatalf("render: %v", err)
	}
	if err := ValidatePDF(buf.Bytes()); err != nil {
		t.Fatalf("validate: %v", err)
	}

	text, quality, err := docpipe.ExtractPDFText(buf.Bytes())
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if quality.PageCount != 1 {
		t.Errorf("pages = %d, want 1", quality.PageCount)
	}
	order := []string{
		"Converted from DOCX",
		"Opening remarks",
		"Overview",
		"(mostly)",
		"revenue grew",
		"Outlook",
		"Original filename: quarter.docx",
		"Conversion timestamp: 3/1/2026, 2:05:00 PM",
	}
	pos := 0
	for _, want := range order {
		i := strings.Index(text[pos:], want)
		if i < 0 {
			t.Fatalf("%q missing or out of order in:\n%s", want, text)
		}
		pos += i + len(want)
	}
}

func TestNativeRenderer_MultiPage(t *testing.T) {
	var blocks []docpipe.Block
	for i := 0; i < 200; i++ {
		blocks = append(blocks, docpipe.Paragraph("Filler paragraph that keeps the layout busy across pages."))
	}
	var buf bytes.Buffer
	err := (NativeRenderer{}).RenderPDF(context.Background(), &buf, []docpipe.Section{{Heading: "Filler", Content: blocks}}, Meta{Created: time.Now()})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	_, quality, err := docpipe.ExtractPDFText(buf.Bytes())
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if quality.PageCount < 2 {
		t.Errorf("pages = %d, want > 1", quality.PageCount)
	}
}

func TestNativeRenderer_Empty(t *testing.T) {
	var buf bytes.Buffer
	err := (NativeRenderer{}).RenderPDF(context.Background(), &buf, nil, Meta{})
	if !errors.Is(err, ErrEmptyDocument) {
		t.Fatalf("err = %v, want ErrEmptyDocument", err)
	}
	if buf.Len() != 0 {
		t.Error("nothing should be written on failure")
	}
}

func TestValidatePDF_Garbage(t *testing.T) {
	err := ValidatePDF([]byte("%PDF-1.4\nnot really"))
	if !errors.Is(err, ErrBuild) {
		t.Fatalf("err = %v, want ErrBuild", err)
	}
}

func TestPDFCanvas_Pages(t *testing.T) {
	// WHAT: Lines land on the page that was open when they were drawn and
	// the pdfcpu context writes every page.
	c, err := NewPDFCanvas(Letter, "notes.docx")
	if err != nil {
		t.Fatal(err)
	}
	body := Style{Size: 12, Leading: 1.2}
	for _, text := range []string{"first page", "second page", "third page"} {
		c.NewPage()
		c.DrawLine(text, 50, 700, body)
		c.DrawLine("", 50, 680, body)
		c.DrawLine("Café (bold)", 50, 660, Style{Size: 16, Bold: true, Leading: 1})
	}
	if c.PageCount() != 3 {
		t.Fatalf("PageCount = %d, want 3", c.PageCount())
	}

	var buf bytes.Buffer
	n, err := c.WriteTo(&buf)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if n != int64(buf.Len()) || !bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")) {
		t.Fatalf("wrote %d bytes, buffer holds %d", n, buf.Len())
	}
	if err := ValidatePDF(buf.Bytes()); err != nil {
		t.Fatalf("validate: %v", err)
	}
	text, quality, err := docpipe.ExtractPDFText(buf.Bytes())
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if quality.PageCount != 3 {
		t.Errorf("pages = %d, want 3", quality.PageCount)
	}
	for _, want := range []string{"first page", "second page", "third page", "Café (bold)"} {
		if !strings.Contains(text, want) {
			t.Errorf("%q missing from:\n%s", want, text)
		}
	}
}

func TestPDFCanvas_NoPages(t *testing.T) {
	c, err := NewPDFCanvas(Letter, "")
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if _, err := c.WriteTo(&buf); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := ValidatePDF(buf.Bytes()); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if c.PageCount() != 1 {
		t.Errorf("PageCount = %d, want a single blank page", c.PageCount())
	}
}

func TestHelveticaMeasurer_WinAnsi(t *testing.T) {
	// WHAT: Accented Latin letters are measured from their own glyph widths
	// and runes outside the code page count as a space.
	m := HelveticaMeasurer{}
	body := Style{Size: 10}
	if e, eAcute := m.WidthOf("e", body), m.WidthOf("é", body); e != eAcute {
		t.Errorf("e = %.2f, é = %.2f", e, eAcute)
	}
	if space, han := m.WidthOf(" ", body), m.WidthOf("中", body); space != han {
		t.Errorf("space = %.2f, 中 = %.2f", space, han)
	}
}

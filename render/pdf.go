package render

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/font"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/create"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/hazyhaar/docswap/docpipe"
)

const (
	fontRegular = "Helvetica"
	fontBold    = "Helvetica-Bold"
)

func fontFor(style Style) string {
	if style.Bold {
		return fontBold
	}
	return fontRegular
}

// HelveticaMeasurer measures text with the Helvetica core font metrics
// shipped with pdfcpu. Text is measured in the WinAnsi code page it is drawn
// in, so runes outside it count as a space.
type HelveticaMeasurer struct{}

// WidthOf implements TextMeasurer.
func (HelveticaMeasurer) WidthOf(text string, style Style) float64 {
	return font.TextWidth(model.DecodeUTF8ToByte(text), fontFor(style), 1000) * style.Size / 1000
}

// PDFCanvas draws lines into pdfcpu pages and writes them through a pdfcpu
// context. Fonts are the Helvetica and Helvetica-Bold core fonts.
type PDFCanvas struct {
	ctx      *model.Context
	mediaBox *types.Rectangle
	pages    []*model.Page
	fonts    model.FontMap
}

// NewPDFCanvas returns an empty canvas with pages of the given size. A non
// empty title is recorded in the document info dictionary.
func NewPDFCanvas(size PageSize, title string) (*PDFCanvas, error) {
	conf := model.NewDefaultConfiguration()
	conf.Cmd = model.CREATE
	ctx, err := pdfcpu.CreateContextWithXRefTable(conf, &types.Dim{Width: size.Width, Height: size.Height})
	if err != nil {
		return nil, fmt.Errorf("%w: pdfcpu context: %v", ErrBuild, err)
	}
	if title != "" {
		s, err := types.EscapedUTF16String(title)
		if err != nil {
			return nil, fmt.Errorf("%w: title: %v", ErrBuild, err)
		}
		info := types.NewDict()
		info.Insert("Title", types.StringLiteral(*s))
		info.InsertString("Creator", "docswap")
		ir, err := ctx.IndRefForNewObject(info)
		if err != nil {
			return nil, fmt.Errorf("%w: info dict: %v", ErrBuild, err)
		}
		ctx.Info = ir
	}
	return &PDFCanvas{
		ctx:      ctx,
		mediaBox: types.RectForDim(size.Width, size.Height),
		fonts:    model.FontMap{},
	}, nil
}

// NewPage implements PageCanvas.
func (c *PDFCanvas) NewPage() {
	p := model.NewPage(c.mediaBox, c.mediaBox)
	c.pages = append(c.pages, &p)
}

// DrawLine implements PageCanvas. x and y are the baseline origin of the
// first glyph. Each line is its own text object so that line boundaries
// survive text extraction.
func (c *PDFCanvas) DrawLine(text string, x, y float64, style Style) {
	if text == "" {
		return
	}
	if len(c.pages) == 0 {
		c.NewPage()
	}
	p := c.pages[len(c.pages)-1]
	name := fontFor(style)
	c.fonts.EnsureKey(name)
	td := model.TextDescriptor{
		Text:     text,
		FontName: name,
		FontKey:  p.Fm.EnsureKey(name),
		FontSize: int(math.Round(style.Size)),
		X:        x,
		Y:        y,
		Scale:    1,
		ScaleAbs: true,
	}
	model.WriteColumn(c.ctx.XRefTable, p.Buf, p.MediaBox, nil, td, 0)
}

// PageCount returns the number of pages opened.
func (c *PDFCanvas) PageCount() int { return len(c.pages) }

// WriteTo merges the pages into the page tree and writes the document.
func (c *PDFCanvas) WriteTo(w io.Writer) (int64, error) {
	if len(c.pages) == 0 {
		c.NewPage()
	}
	if c.ctx.PageCount < len(c.pages) {
		if _, _, err := create.UpdatePageTree(c.ctx, c.pages, c.fonts); err != nil {
			return 0, fmt.Errorf("page tree: %w", err)
		}
	}
	cw := &countingWriter{w: w}
	if err := api.WriteContext(c.ctx, cw); err != nil {
		return cw.n, err
	}
	return cw.n, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// ValidatePDF checks a generated PDF with pdfcpu.
func ValidatePDF(data []byte) error {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	if err := api.Validate(bytes.NewReader(data), conf); err != nil {
		return fmt.Errorf("%w: pdfcpu validate: %v", ErrBuild, err)
	}
	return nil
}

// NativeRenderer lays sections out with Layout on a PDFCanvas. The output is
// validated before anything is written to the destination.
type NativeRenderer struct {
	Layout Layout
}

// RenderPDF implements PDFRenderer.
func (r NativeRenderer) RenderPDF(_ context.Context, w io.Writer, sections []docpipe.Section, meta Meta) error {
	layout := r.Layout
	layout.defaults()

	canvas, err := NewPDFCanvas(layout.Page, meta.OriginalName)
	if err != nil {
		return err
	}
	if err := layout.Render(canvas, sections, meta); err != nil {
		return err
	}

	var buf bytes.Buffer
	if _, err := canvas.WriteTo(&buf); err != nil {
		return fmt.Errorf("%w: serialise: %v", ErrBuild, err)
	}
	if err := ValidatePDF(buf.Bytes()); err != nil {
		return err
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("%w: write: %v", ErrBuild, err)
	}
	return nil
}

package render

import (
	"strings"

	"github.com/hazyhaar/docswap/docpipe"
)

// Style selects the font size, weight and line spacing of a placed line.
type Style struct {
	Size    float64
	Bold    bool
	Leading float64 // line advance as a multiple of Size
}

// Advance is the vertical distance between two lines of this style.
func (s Style) Advance() float64 { return s.Size * s.Leading }

// TextMeasurer reports the rendered width of text in points.
type TextMeasurer interface {
	WidthOf(text string, style Style) float64
}

// PageCanvas receives positioned lines. Coordinates are PDF user space:
// origin bottom-left, y grows upwards.
type PageCanvas interface {
	NewPage()
	DrawLine(text string, x, y float64, style Style)
}

// PageSize is a page in points.
type PageSize struct {
	Width, Height float64
}

// Letter is US Letter, 8.5x11 inches.
var Letter = PageSize{Width: 612, Height: 792}

// Layout holds the page geometry and typography of a paginated document.
type Layout struct {
	Page   PageSize
	Margin float64

	Title     string
	TitleSize float64
	// TitleGap separates the title baseline from the first body line.
	TitleGap float64

	HeadingSize    float64
	HeadingLeading float64
	BodySize       float64
	BodyLeading    float64

	// NoFooter drops the trailing original filename and conversion time.
	NoFooter bool

	Measurer TextMeasurer
}

// DefaultLayout returns the Letter layout with a 50pt margin, a 24pt title,
// 16pt headings and 12pt body text.
func DefaultLayout() Layout {
	var l Layout
	l.defaults()
	return l
}

func (l *Layout) defaults() {
	if l.Page.Width <= 0 || l.Page.Height <= 0 {
		l.Page = Letter
	}
	if l.Margin <= 0 {
		l.Margin = 50
	}
	if l.Title == "" {
		l.Title = "Converted from DOCX"
	}
	if l.TitleSize <= 0 {
		l.TitleSize = 24
	}
	if l.TitleGap <= 0 {
		l.TitleGap = 40
	}
	if l.HeadingSize <= 0 {
		l.HeadingSize = 16
	}
	if l.HeadingLeading <= 0 {
		l.HeadingLeading = 1.5
	}
	if l.BodySize <= 0 {
		l.BodySize = 12
	}
	if l.BodyLeading <= 0 {
		l.BodyLeading = 1.2
	}
	if l.Measurer == nil {
		l.Measurer = HelveticaMeasurer{}
	}
}

// ContentWidth is the usable line width between the margins.
func (l Layout) ContentWidth() float64 { return l.Page.Width - 2*l.Margin }

func (l Layout) titleStyle() Style   { return Style{Size: l.TitleSize, Bold: true, Leading: 1} }
func (l Layout) headingStyle() Style { return Style{Size: l.HeadingSize, Bold: true, Leading: l.HeadingLeading} }
func (l Layout) bodyStyle() Style    { return Style{Size: l.BodySize, Leading: l.BodyLeading} }

// Wrap packs the words of text greedily into lines narrower than the content
// width. A single word wider than the page gets a line of its own. No empty
// line is ever returned.
func (l Layout) Wrap(text string, style Style) []string {
	limit := l.ContentWidth()
	var lines []string
	current := ""
	for _, word := range strings.Fields(text) {
		if current == "" {
			current = word
			continue
		}
		candidate := current + " " + word
		if l.Measurer.WidthOf(candidate, style) < limit {
			current = candidate
			continue
		}
		lines = append(lines, current)
		current = word
	}
	if current != "" {
		lines = append(lines, current)
	}
	return lines
}

// Cursor places wrapped lines top to bottom, opening a new page when the
// next line would fall below the bottom margin.
type Cursor struct {
	layout Layout
	canvas PageCanvas
	y      float64
	pages  int
	lines  int
}

// NewCursor opens the first page and positions the cursor at the top margin.
func (l Layout) NewCursor(canvas PageCanvas) *Cursor {
	l.defaults()
	canvas.NewPage()
	return &Cursor{layout: l, canvas: canvas, y: l.Page.Height - l.Margin, pages: 1}
}

// Y returns the baseline of the next line.
func (c *Cursor) Y() float64 { return c.y }

// Skip moves the cursor down by dy points.
func (c *Cursor) Skip(dy float64) { c.y -= dy }

// Pages returns the number of pages opened so far.
func (c *Cursor) Pages() int { return c.pages }

// Lines returns the number of lines drawn through Place.
func (c *Cursor) Lines() int { return c.lines }

// Place wraps text and draws each line at the left margin.
func (c *Cursor) Place(text string, style Style) {
	for _, line := range c.layout.Wrap(text, style) {
		if c.y < c.layout.Margin {
			c.canvas.NewPage()
			c.pages++
			c.y = c.layout.Page.Height - c.layout.Margin
		}
		c.canvas.DrawLine(line, c.layout.Margin, c.y, style)
		c.lines++
		c.y -= style.Advance()
	}
}

// Render lays out the title, sections and optional footer on canvas.
// Headings and paragraphs are followed by a 10pt gap; list items are drawn
// as "• item" with 5pt above and below.
func (l Layout) Render(canvas PageCanvas, sections []docpipe.Section, meta Meta) error {
	if isEmpty(sections) {
		return ErrEmptyDocument
	}
	l.defaults()

	c := l.NewCursor(canvas)
	title := l.titleStyle()
	c.Place(l.Title, title)
	// The gap is measured from the last title baseline.
	c.Skip(l.TitleGap - title.Advance())
	titleLines := c.Lines()

	heading, body := l.headingStyle(), l.bodyStyle()
	for _, s := range sections {
		if s.HasHeading() {
			c.Place(s.Heading, heading)
			c.Skip(10)
		}
		for _, b := range s.Content {
			switch b.Kind {
			case docpipe.BlockParagraph:
				c.Place(b.Text, body)
				c.Skip(10)
			case docpipe.BlockList:
				for _, item := range b.Items {
					c.Skip(5)
					c.Place("• "+item, body)
					c.Skip(5)
				}
			}
		}
	}
	if c.Lines() == titleLines {
		return ErrEmptyDocument
	}

	if !l.NoFooter {
		c.Skip(body.Advance() * 3)
		name := meta.OriginalName
		if name == "" {
			name = "unknown"
		}
		c.Place("Original filename: "+name, Style{Size: body.Size, Bold: true, Leading: body.Leading})
		c.Place("Conversion timestamp: "+meta.Created.Format(TimestampLayout), body)
	}
	return nil
}

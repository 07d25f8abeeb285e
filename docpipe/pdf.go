package docpipe

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"golang.org/x/text/encoding/charmap"
)

// ExtractPDFText returns the linear text of a PDF, one extracted row per line
// and pages in order. The PDF is validated with pdfcpu first; corrupt,
// encrypted or page-less input fails with ErrExtraction, as does a document
// that yields no text.
func ExtractPDFText(data []byte) (string, *ExtractionQuality, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	ctx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), conf)
	if err != nil {
		return "", nil, fmt.Errorf("%w: pdfcpu read: %v", ErrExtraction, err)
	}
	if ctx.PageCount == 0 {
		return "", nil, fmt.Errorf("%w: document has no pages", ErrExtraction)
	}

	text, err := extractRows(data)
	if err != nil || strings.TrimSpace(text) == "" {
		// Content-stream scan over the already parsed context.
		text = extractStreams(ctx)
	}
	if strings.TrimSpace(text) == "" {
		return "", nil, fmt.Errorf("%w: no text content found in PDF", ErrExtraction)
	}

	totalChars := len([]rune(text))
	quality := &ExtractionQuality{
		PageCount:       ctx.PageCount,
		CharsPerPage:    float64(totalChars) / float64(ctx.PageCount),
		PrintableRatio:  computePrintableRatio(text),
		WordlikeRatio:   computeWordlikeRatio(text),
		HasImageStreams: detectImageStreams(ctx),
		VisualRefCount:  countVisualRefs(text),
	}
	return text, quality, nil
}

// extractRows reads positioned glyphs page by page with ledongthuc/pdf and
// groups them into rows by baseline, top to bottom. Glyphs sharing an x
// position keep their content-stream order.
func extractRows(data []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("pdf reader panic: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}

	var sb strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		for _, row := range textRows(page.Content().Text) {
			if l := strings.Join(strings.Fields(row), " "); l != "" {
				sb.WriteString(l)
				sb.WriteByte('\n')
			}
		}
	}
	return sb.String(), nil
}

type glyphRow struct {
	y      int64
	glyphs []pdf.Text
}

func textRows(glyphs []pdf.Text) []string {
	var rows []*glyphRow
	index := map[int64]*glyphRow{}
	for _, g := range glyphs {
		y := int64(math.Round(g.Y))
		row, ok := index[y]
		if !ok {
			row = &glyphRow{y: y}
			index[y] = row
			rows = append(rows, row)
		}
		row.glyphs = append(row.glyphs, g)
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].y > rows[j].y })

	out := make([]string, 0, len(rows))
	for _, row := range rows {
		sort.SliceStable(row.glyphs, func(i, j int) bool { return row.glyphs[i].X < row.glyphs[j].X })
		var line strings.Builder
		for _, g := range row.glyphs {
			line.WriteString(g.S)
		}
		out = append(out, line.String())
	}
	return out
}

// extractStreams scans every page content stream for text operators.
func extractStreams(ctx *model.Context) string {
	var sb strings.Builder
	for pageNr := 1; pageNr <= ctx.PageCount; pageNr++ {
		r, err := pdfcpu.ExtractPageContent(ctx, pageNr)
		if err != nil || r == nil {
			continue
		}
		data, err := io.ReadAll(r)
		if err != nil || len(data) == 0 {
			continue
		}
		if page := extractTextFromStream(data); page != "" {
			sb.WriteString(page)
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

// detectImageStreams checks if the PDF contains image XObjects.
func detectImageStreams(ctx *model.Context) bool {
	if ctx.Optimize != nil {
		for pageNr := 1; pageNr <= ctx.PageCount; pageNr++ {
			if len(pdfcpu.ImageObjNrs(ctx, pageNr)) > 0 {
				return true
			}
		}
	}
	for _, entry := range ctx.Table {
		if entry == nil || entry.Free || entry.Compressed {
			continue
		}
		sd, ok := entry.Object.(types.StreamDict)
		if !ok {
			continue
		}
		if subtype, found := sd.Find("Subtype"); found {
			if name, isName := subtype.(types.Name); isName && name == "Image" {
				return true
			}
		}
	}
	return false
}

// pdfStringRe matches PDF string literals in parentheses: (text here)
var pdfStringRe = regexp.MustCompile(`\(((?:[^()\\]|\\.)*)\)`)

// extractTextFromStream parses content stream operators for text. Each
// positioning or next-line operator starts a new output line.
func extractTextFromStream(data []byte) string {
	var sb strings.Builder

	for _, line := range bytes.Split(data, []byte{'\n'}) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}

		switch {
		case bytes.HasSuffix(line, []byte("Tj")), bytes.HasSuffix(line, []byte("TJ")):
			for _, m := range pdfStringRe.FindAllSubmatch(line, -1) {
				sb.WriteString(pdfTextString(m[1]))
			}
		case bytes.HasSuffix(line, []byte("'")) && bytes.Contains(line, []byte("(")):
			sb.WriteByte('\n')
			for _, m := range pdfStringRe.FindAllSubmatch(line, -1) {
				sb.WriteString(pdfTextString(m[1]))
			}
		case bytes.HasSuffix(line, []byte("Td")), bytes.HasSuffix(line, []byte("TD")),
			bytes.Equal(line, []byte("T*")), bytes.Equal(line, []byte("ET")):
			sb.WriteByte('\n')
		}
	}

	var out []string
	for _, l := range strings.Split(sb.String(), "\n") {
		if l = cleanPDFText(l); l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}

// pdfTextString decodes a literal string operand. Bytes that are not UTF-8
// are read as WinAnsi, the encoding of the standard fonts.
func pdfTextString(raw []byte) string {
	s := decodePDFString(raw)
	if utf8.ValidString(s) {
		return s
	}
	if dec, err := charmap.Windows1252.NewDecoder().String(s); err == nil {
		return dec
	}
	return s
}

// decodePDFString handles basic PDF escape sequences.
func decodePDFString(raw []byte) string {
	var sb strings.Builder
	for i := 0; i < len(raw); i++ {
		if raw[i] != '\\' || i+1 >= len(raw) {
			sb.WriteByte(raw[i])
			continue
		}
		i++
		switch raw[i] {
		case 'n':
			sb.WriteByte('\n')
		case 'r':
			sb.WriteByte('\r')
		case 't':
			sb.WriteByte('\t')
		case '\\', '(', ')':
			sb.WriteByte(raw[i])
		default:
			// Octal escape (e.g. \040 for space).
			if raw[i] < '0' || raw[i] > '7' {
				sb.WriteByte(raw[i])
				continue
			}
			val := int(raw[i] - '0')
			for k := 0; k < 2 && i+1 < len(raw) && raw[i+1] >= '0' && raw[i+1] <= '7'; k++ {
				i++
				val = val*8 + int(raw[i]-'0')
			}
			sb.WriteByte(byte(val))
		}
	}
	return sb.String()
}

// cleanPDFText normalises whitespace and drops non-printable runes.
func cleanPDFText(text string) string {
	var sb strings.Builder
	prevSpace := false
	for _, r := range text {
		if unicode.IsSpace(r) {
			if !prevSpace && sb.Len() > 0 {
				sb.WriteByte(' ')
				prevSpace = true
			}
		} else if unicode.IsPrint(r) {
			sb.WriteRune(r)
			prevSpace = false
		}
	}
	return strings.TrimSpace(sb.String())
}

package docpipe

import (
	"log/slog"
	"regexp"
	"strings"
	"unicode"
)

// ExtractionQuality captures metrics about PDF text extraction quality.
type ExtractionQuality struct {
	PageCount       int     `json:"page_count"`
	CharsPerPage    float64 `json:"chars_per_page"`
	PrintableRatio  float64 `json:"printable_ratio"`
	WordlikeRatio   float64 `json:"wordlike_ratio"`
	HasImageStreams bool    `json:"has_image_streams"`
	VisualRefCount  int     `json:"visual_ref_count"`
}

// NeedsOCR reports whether the PDF is likely a scan whose text layer is
// missing or garbled. Conversion still proceeds; the flag is only logged.
func (q *ExtractionQuality) NeedsOCR() bool {
	return (q.CharsPerPage < 50 && q.HasImageStreams) || q.PrintableRatio < 0.85
}

// HasVisualGap reports whether the text references figures or tables that
// only exist as images and are therefore lost in conversion.
func (q *ExtractionQuality) HasVisualGap() bool {
	return q.VisualRefCount > 0 && q.HasImageStreams
}

// LogValue implements slog.LogValuer.
func (q *ExtractionQuality) LogValue() slog.Value {
	if q == nil {
		return slog.Value{}
	}
	return slog.GroupValue(
		slog.Int("pages", q.PageCount),
		slog.Float64("chars_per_page", q.CharsPerPage),
		slog.Float64("printable_ratio", q.PrintableRatio),
		slog.Float64("wordlike_ratio", q.WordlikeRatio),
		slog.Bool("images", q.HasImageStreams),
		slog.Int("visual_refs", q.VisualRefCount),
		slog.Bool("needs_ocr", q.NeedsOCR()),
		slog.Bool("visual_gap", q.HasVisualGap()),
	)
}

// computePrintableRatio returns the share of printable runes in text.
// Private-use runes, U+FFFD and control characters other than \n\r\t count
// as garbage.
func computePrintableRatio(text string) float64 {
	total, printable := 0, 0
	for _, r := range text {
		total++
		switch {
		case r >= 0xE000 && r <= 0xF8FF, r == 0xFFFD:
		case r < 0x20 && r != '\n' && r != '\r' && r != '\t':
		case unicode.IsPrint(r) || unicode.IsSpace(r):
			printable++
		}
	}
	if total == 0 {
		return 1.0
	}
	return float64(printable) / float64(total)
}

// computeWordlikeRatio returns the ratio of tokens of length 2-15 to all tokens.
func computeWordlikeRatio(text string) float64 {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return 0
	}
	wordlike := 0
	for _, f := range fields {
		if n := len([]rune(f)); n >= 2 && n <= 15 {
			wordlike++
		}
	}
	return float64(wordlike) / float64(len(fields))
}

var visualRefRe = regexp.MustCompile(`(?i)\b(figure|fig\.?|table|diagram|chart)\s+\d+`)

// countVisualRefs counts references to figures, tables and diagrams, which
// are lost in a text-only conversion.
func countVisualRefs(text string) int {
	return len(visualRefRe.FindAllString(text, -1))
}

package docpipe

import (
	"regexp"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
)

var (
	mdHeadingRe   = regexp.MustCompile(`^#{1,6}\s+`)
	mdEscapeRe    = regexp.MustCompile(`\\([\\` + "`" + `*_{}\[\]()#+\-.!|>])`)
	mdEmphasisRe  = regexp.MustCompile(`(\*\*|__)(.+?)(\*\*|__)`)
	mdTableSepRe  = regexp.MustCompile(`^\|?\s*:?-{3,}:?\s*(\|\s*:?-{3,}:?\s*)*\|?$`)
	mdQuotePrefix = regexp.MustCompile(`^>\s?`)
)

// newMarkdownConverter builds the html-to-markdown converter used by the
// plain-text path.
func newMarkdownConverter() *converter.Converter {
	return converter.NewConverter(
		converter.WithPlugins(
			base.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(),
			table.NewTablePlugin(),
		),
	)
}

// PlainLinesFromHTML renders HTML to Markdown and strips the markup back to
// plain lines. Bullet and number markers are kept so the classifier can still
// recognise list items.
func PlainLinesFromHTML(htmlDoc string) ([]string, error) {
	md, err := newMarkdownConverter().ConvertString(htmlDoc)
	if err != nil {
		return nil, err
	}

	var lines []string
	for _, line := range SplitLines(md) {
		if mdTableSepRe.MatchString(line) {
			continue
		}
		line = mdHeadingRe.ReplaceAllString(line, "")
		line = mdQuotePrefix.ReplaceAllString(line, "")
		line = mdEmphasisRe.ReplaceAllString(line, "$2")
		if strings.HasPrefix(line, "|") {
			var cells []string
			for _, c := range strings.Split(strings.Trim(line, "|"), "|") {
				if c = strings.TrimSpace(c); c != "" {
					cells = append(cells, c)
				}
			}
			line = strings.Join(cells, " ")
		}
		line = mdEscapeRe.ReplaceAllString(line, "$1")
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines, nil
}

// SectionsFromPlainHTML is the degraded structural path: the HTML is
// flattened to lines and re-partitioned by the line classifier.
func SectionsFromPlainHTML(htmlDoc string) (ClassifyResult, error) {
	lines, err := PlainLinesFromHTML(htmlDoc)
	if err != nil {
		return ClassifyResult{}, err
	}
	return ClassifyWithStats(lines), nil
}

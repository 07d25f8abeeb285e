package docpipe

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
)

// DocxToHTML renders the body of a .docx file as simple HTML: headings become
// h1-h6, list paragraphs become li items grouped in ul, tables keep their
// table/tr/td skeleton and everything else becomes p.
func DocxToHTML(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: open zip: %v", ErrExtraction, err)
	}

	var docFile *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			docFile = f
			break
		}
	}
	if docFile == nil {
		return "", fmt.Errorf("%w: word/document.xml not found in archive", ErrExtraction)
	}

	rc, err := docFile.Open()
	if err != nil {
		return "", fmt.Errorf("%w: open document.xml: %v", ErrExtraction, err)
	}
	defer rc.Close()

	w := &htmlWriter{}
	w.sb.WriteString("<html><body>\n")
	if err := w.consume(xml.NewDecoder(rc)); err != nil {
		return "", fmt.Errorf("%w: parse document.xml: %v", ErrExtraction, err)
	}
	w.closeList()
	w.sb.WriteString("</body></html>\n")
	return w.sb.String(), nil
}

// maxXMLDepth bounds element nesting in document.xml.
const maxXMLDepth = 256

// htmlWriter accumulates HTML while streaming WordprocessingML tokens.
type htmlWriter struct {
	sb     strings.Builder
	inList bool

	depth int

	inParagraph bool
	inText      bool
	style       string
	numbered    bool
	text        strings.Builder
}

func (w *htmlWriter) consume(dec *xml.Decoder) error {
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			w.depth++
			if w.depth > maxXMLDepth {
				return fmt.Errorf("XML nesting depth exceeds %d", maxXMLDepth)
			}
			switch t.Name.Local {
			case "p":
				w.inParagraph = true
				w.style = ""
				w.numbered = false
				w.text.Reset()
			case "pStyle":
				if w.inParagraph {
					w.style = attr(t, "val")
				}
			case "numPr":
				if w.inParagraph {
					w.numbered = true
				}
			case "t":
				w.inText = w.inParagraph
			case "tab", "br", "cr":
				if w.inParagraph {
					w.text.WriteByte(' ')
				}
			case "tbl":
				w.closeList()
				w.sb.WriteString("<table>\n")
			case "tr":
				w.sb.WriteString("<tr>")
			case "tc":
				w.sb.WriteString("<td>")
			}

		case xml.CharData:
			if w.inText {
				w.text.Write(t)
			}

		case xml.EndElement:
			w.depth--
			switch t.Name.Local {
			case "t":
				w.inText = false
			case "p":
				if w.inParagraph {
					w.inParagraph = false
					w.emitParagraph()
				}
			case "tc":
				w.closeList()
				w.sb.WriteString("</td>")
			case "tr":
				w.sb.WriteString("</tr>\n")
			case "tbl":
				w.sb.WriteString("</table>\n")
			}
		}
	}
}

func (w *htmlWriter) emitParagraph() {
	text := strings.Join(strings.Fields(w.text.String()), " ")
	if text == "" {
		return
	}
	escaped := html.EscapeString(text)

	if w.numbered || isListStyle(w.style) {
		if !w.inList {
			w.sb.WriteString("<ul>\n")
			w.inList = true
		}
		fmt.Fprintf(&w.sb, "<li>%s</li>\n", escaped)
		return
	}

	w.closeList()
	if level := docxHeadingLevel(w.style); level > 0 {
		fmt.Fprintf(&w.sb, "<h%d>%s</h%d>\n", level, escaped, level)
		return
	}
	fmt.Fprintf(&w.sb, "<p>%s</p>\n", escaped)
}

func (w *htmlWriter) closeList() {
	if w.inList {
		w.sb.WriteString("</ul>\n")
		w.inList = false
	}
}

func attr(t xml.StartElement, local string) string {
	for _, a := range t.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

func isListStyle(style string) bool {
	lower := strings.ToLower(style)
	return strings.HasPrefix(lower, "listparagraph") ||
		strings.HasPrefix(lower, "listbullet") ||
		strings.HasPrefix(lower, "listnumber")
}

// docxHeadingLevel extracts the heading level from a paragraph style name.
// e.g. "Heading1" → 1, "Heading2" → 2, "Title" → 1, etc.
func docxHeadingLevel(style string) int {
	lower := strings.ToLower(style)

	switch lower {
	case "title":
		return 1
	case "subtitle":
		return 2
	}

	for _, prefix := range []string{"heading", "titre", "überschrift"} {
		if rest, ok := strings.CutPrefix(lower, prefix); ok {
			if len(rest) == 1 && rest[0] >= '1' && rest[0] <= '6' {
				return int(rest[0] - '0')
			}
		}
	}
	return 0
}

package docpipe

import (
	"io"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var hiddenStylePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)display\s*:\s*none`),
	regexp.MustCompile(`(?i)visibility\s*:\s*hidden`),
	regexp.MustCompile(`(?i)font-size\s*:\s*0[^1-9]`),
	regexp.MustCompile(`(?i)opacity\s*:\s*0(?:[^.1-9]|$)`),
}

func hasHiddenStyle(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	for _, a := range n.Attr {
		if a.Key != "style" {
			continue
		}
		for _, pat := range hiddenStylePatterns {
			if pat.MatchString(a.Val) {
				return true
			}
		}
	}
	return false
}

// SectionsFromHTML parses HTML and groups headings, paragraphs and lists into
// sections by a depth-first walk in document order. Each h1-h6 opens a
// section; content before the first heading lands in a headingless section.
// Tables are not descended.
func SectionsFromHTML(r io.Reader) ([]Section, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, err
	}
	w := &sectionWalker{current: -1}
	w.walk(doc)
	return w.sections, nil
}

type sectionWalker struct {
	sections []Section
	current  int
}

func (w *sectionWalker) add(b Block) {
	if w.current < 0 {
		w.sections = append(w.sections, Section{})
		w.current = len(w.sections) - 1
	}
	w.sections[w.current].Content = append(w.sections[w.current].Content, b)
}

func (w *sectionWalker) walk(n *html.Node) {
	if n.Type == html.ElementNode {
		switch n.DataAtom {
		case atom.Script, atom.Style, atom.Noscript, atom.Head, atom.Table, atom.Template:
			return
		}
		if hasHiddenStyle(n) {
			return
		}

		switch n.DataAtom {
		case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
			if text := collectHTMLText(n); text != "" {
				w.sections = append(w.sections, Section{Heading: text})
				w.current = len(w.sections) - 1
			}
			return

		case atom.P:
			if text := collectHTMLText(n); text != "" {
				w.add(Paragraph(text))
			}
			return

		case atom.Ul, atom.Ol:
			if items := listItems(n, nil); len(items) > 0 {
				w.add(List(items))
			}
			return

		case atom.Li:
			// li outside of any list container.
			if items := listItems(n, nil); len(items) > 0 {
				w.add(List(items))
			}
			return
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		w.walk(c)
	}
}

// listItems collects li texts under n in document order. Nested lists are
// flattened into the same sequence.
func listItems(n *html.Node, items []string) []string {
	if n.Type == html.ElementNode && hasHiddenStyle(n) {
		return items
	}
	if n.Type == html.ElementNode && n.DataAtom == atom.Li {
		if text := collectHTMLText(n, atom.Ul, atom.Ol); text != "" {
			items = append(items, text)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && (c.DataAtom == atom.Ul || c.DataAtom == atom.Ol) {
				items = listItems(c, items)
			}
		}
		return items
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		items = listItems(c, items)
	}
	return items
}

// collectHTMLText extracts all visible text from a node subtree, skipping
// the given element types.
func collectHTMLText(n *html.Node, skip ...atom.Atom) string {
	var parts []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			parts = append(parts, strings.Fields(n.Data)...)
		}
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Script, atom.Style, atom.Noscript:
				return
			}
			for _, a := range skip {
				if n.DataAtom == a {
					return
				}
			}
			if hasHiddenStyle(n) {
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(parts, " ")
}

package docpipe

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// LineKind is the classification of a single normalised line.
type LineKind int

const (
	LineParagraph LineKind = iota
	LineHeading
	LineListItem
)

func (k LineKind) String() string {
	switch k {
	case LineHeading:
		return "heading"
	case LineListItem:
		return "list_item"
	default:
		return "paragraph"
	}
}

// listMarkerRe matches a leading bullet (•, -, *) or number marker (1. or 1))
// followed by whitespace.
var listMarkerRe = regexp.MustCompile(`^\s*(?:[•\-\*]|\d+[.)])\s+`)

const (
	capsHeadingMax  = 50
	shortHeadingMax = 30
)

// ClassifyLine returns the kind of a trimmed line. For list items the second
// value is the item text with its marker stripped; otherwise it is the line.
//
// Precedence is heading, then list item, then paragraph. A heading is an
// all-uppercase line under 50 runes, a line ending with a colon, or a short
// (under 30 runes) title-like line: no period, starts with an uppercase
// letter.
func ClassifyLine(line string) (LineKind, string) {
	n := utf8.RuneCountInString(line)
	switch {
	case strings.ToUpper(line) == line && n < capsHeadingMax:
		return LineHeading, line
	case strings.HasSuffix(line, ":"):
		return LineHeading, line
	}
	if loc := listMarkerRe.FindStringIndex(line); loc != nil {
		return LineListItem, strings.TrimSpace(line[loc[1]:])
	}
	if n < shortHeadingMax && !strings.Contains(line, ".") && startsUpper(line) {
		return LineHeading, line
	}
	return LineParagraph, line
}

func startsUpper(s string) bool {
	r, _ := utf8.DecodeRuneInString(s)
	return unicode.IsUpper(r)
}

// SplitLines splits every element on line breaks, trims each line and drops
// the empty ones.
func SplitLines(texts ...string) []string {
	var out []string
	for _, t := range texts {
		t = strings.ReplaceAll(t, "\r\n", "\n")
		for _, line := range strings.Split(t, "\n") {
			if line = strings.TrimSpace(line); line != "" {
				out = append(out, line)
			}
		}
	}
	return out
}

// ClassifyResult is the outcome of a classification pass.
type ClassifyResult struct {
	Sections []Section
	// Dropped counts list items that were discarded because no section was
	// open when their list closed.
	Dropped int
}

// Classify partitions lines into sections. It never fails; input without any
// heading yields a single headingless section.
func Classify(lines []string) []Section {
	return ClassifyWithStats(lines).Sections
}

// ClassifyWithStats is Classify that also reports dropped list items.
func ClassifyWithStats(lines []string) ClassifyResult {
	st := classifyState{current: -1}
	for _, line := range SplitLines(lines...) {
		st = st.step(line)
	}
	st = st.finish()
	return ClassifyResult{Sections: st.sections, Dropped: st.dropped}
}

// classifyState is threaded through a left-to-right fold over the lines.
type classifyState struct {
	sections []Section
	current  int // index into sections, -1 when no section is open
	inList   bool
	pending  []string
	dropped  int
}

func (st classifyState) step(line string) classifyState {
	kind, text := ClassifyLine(line)
	switch kind {
	case LineHeading:
		st = st.flushList()
		st.sections = append(st.sections, Section{Heading: text})
		st.current = len(st.sections) - 1
	case LineListItem:
		st.inList = true
		st.pending = append(st.pending, text)
	default:
		st = st.flushList()
		if st.current >= 0 {
			st.sections[st.current].Content = append(st.sections[st.current].Content, Paragraph(text))
		} else {
			st.sections = append(st.sections, Section{Content: []Block{Paragraph(text)}})
			st.current = len(st.sections) - 1
		}
	}
	return st
}

// flushList closes an open list. Without a current section the pending items
// are dropped and counted.
func (st classifyState) flushList() classifyState {
	if !st.inList {
		return st
	}
	if len(st.pending) > 0 {
		if st.current >= 0 {
			st.sections[st.current].Content = append(st.sections[st.current].Content, List(st.pending))
		} else {
			st.dropped += len(st.pending)
		}
	}
	st.inList = false
	st.pending = nil
	return st
}

func (st classifyState) finish() classifyState {
	return st.flushList()
}

// PlainSections turns every line into a paragraph of one headingless section.
// It is the degraded path used when classification is disabled.
func PlainSections(lines []string) []Section {
	lines = SplitLines(lines...)
	if len(lines) == 0 {
		return nil
	}
	blocks := make([]Block, len(lines))
	for i, l := range lines {
		blocks[i] = Paragraph(l)
	}
	return []Section{{Content: blocks}}
}

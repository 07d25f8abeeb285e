package docpipe

// Format identifies a document type.
type Format string

const (
	FormatDocx Format = "docx"
	FormatPDF  Format = "pdf"
)

// Ext returns the file extension for the format, including the leading dot.
func (f Format) Ext() string { return "." + string(f) }

// Target returns the format a document of this format is converted to.
func (f Format) Target() Format {
	if f == FormatPDF {
		return FormatDocx
	}
	return FormatPDF
}

// BlockKind tags the variant held by a Block.
type BlockKind string

const (
	BlockParagraph BlockKind = "paragraph"
	BlockList      BlockKind = "list"
)

// Block is a paragraph or a bulleted list inside a section.
type Block struct {
	Kind  BlockKind `json:"type"`
	Text  string    `json:"text,omitempty"`  // paragraph
	Items []string  `json:"items,omitempty"` // list
}

// Paragraph returns a paragraph block.
func Paragraph(text string) Block {
	return Block{Kind: BlockParagraph, Text: text}
}

// List returns a list block holding a copy of items.
func List(items []string) Block {
	return Block{Kind: BlockList, Items: append([]string(nil), items...)}
}

// Section is a heading plus the content blocks that follow it.
// An empty Heading means the section has none.
type Section struct {
	Heading string  `json:"heading,omitempty"`
	Content []Block `json:"content"`
}

// HasHeading reports whether the section carries a heading.
func (s Section) HasHeading() bool { return s.Heading != "" }

// Document is the structural result of reading an input file.
type Document struct {
	Path     string             `json:"path"`
	Format   Format             `json:"format"`
	Sections []Section          `json:"sections"`
	Fallback bool               `json:"fallback,omitempty"` // plain-line path was used
	Dropped  int                `json:"dropped,omitempty"`  // list items lost by the classifier
	Quality  *ExtractionQuality `json:"quality,omitempty"`  // PDF only
}

// Flatten returns headings, paragraph texts and list items in document order.
func Flatten(sections []Section) []string {
	var out []string
	for _, s := range sections {
		if s.HasHeading() {
			out = append(out, s.Heading)
		}
		for _, b := range s.Content {
			switch b.Kind {
			case BlockParagraph:
				out = append(out, b.Text)
			case BlockList:
				out = append(out, b.Items...)
			}
		}
	}
	return out
}

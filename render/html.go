package render

import (
	"html/template"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/hazyhaar/docswap/docpipe"
)

var pageTmpl = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>{{.Title}}</title>
<style>
@page { size: Letter; margin: 50pt; }
body { font-family: Helvetica, Arial, sans-serif; font-size: 12pt; line-height: 1.2; }
h1 { font-size: 24pt; margin: 0 0 28pt 0; }
h2 { font-size: 16pt; line-height: 1.5; margin: 0 0 10pt 0; }
p { margin: 0 0 10pt 0; }
ul { margin: 0; padding-left: 14pt; }
li { margin: 5pt 0; }
footer { margin-top: 43pt; }
</style></head>
<body>
<h1>{{.Title}}</h1>
{{.Body}}
{{- if .Footer}}
<footer><p><b>Original filename: {{.OriginalName}}</b><br>Conversion timestamp: {{.Timestamp}}</p></footer>
{{- end}}
</body></html>
`))

// sanitizer keeps only the markup SectionsHTML emits for section content.
var sanitizer = bluemonday.UGCPolicy()

// SectionsHTML renders sections as a standalone HTML page for the browser
// renderer. Section markup is passed through a bluemonday UGC policy.
func SectionsHTML(sections []docpipe.Section, meta Meta, layout Layout) (string, error) {
	if isEmpty(sections) {
		return "", ErrEmptyDocument
	}
	layout.defaults()

	var body strings.Builder
	for _, s := range sections {
		if s.HasHeading() {
			body.WriteString("<h2>" + template.HTMLEscapeString(s.Heading) + "</h2>\n")
		}
		for _, b := range s.Content {
			switch b.Kind {
			case docpipe.BlockParagraph:
				body.WriteString("<p>" + template.HTMLEscapeString(b.Text) + "</p>\n")
			case docpipe.BlockList:
				body.WriteString("<ul>\n")
				for _, item := range b.Items {
					body.WriteString("<li>" + template.HTMLEscapeString(item) + "</li>\n")
				}
				body.WriteString("</ul>\n")
			}
		}
	}

	var out strings.Builder
	err := pageTmpl.Execute(&out, map[string]any{
		"Title":        layout.Title,
		"Body":         template.HTML(sanitizer.Sanitize(body.String())),
		"Footer":       !layout.NoFooter,
		"OriginalName": meta.OriginalName,
		"Timestamp":    meta.Created.Format(TimestampLayout),
	})
	if err != nil {
		return "", err
	}
	return out.String(), nil
}

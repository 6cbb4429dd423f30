package channel

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/zulandar/switchboard/internal/apperr"
	"github.com/zulandar/switchboard/internal/batch"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// DefaultStyle is the template style used when none is chosen.
const DefaultStyle = "classic"

type emailStyle struct {
	Page  template.CSS
	Card  template.CSS
	Align template.CSS
}

var emailStyles = map[string]emailStyle{
	"classic": {
		Page:  "margin:0;padding:24px 0;background:#f4f4f4;",
		Card:  "max-width:600px;margin:0 auto;padding:24px;background:#ffffff;font-family:Arial,Helvetica,sans-serif;font-size:15px;line-height:1.5;color:#333333;",
		Align: "text-align:center;",
	},
	"modern": {
		Page:  "margin:0;padding:32px 0;background:#1f2937;",
		Card:  "max-width:600px;margin:0 auto;padding:32px;border-radius:12px;background:#ffffff;font-family:'Segoe UI',Roboto,sans-serif;font-size:16px;line-height:1.6;color:#111827;",
		Align: "text-align:left;",
	},
	"minimal": {
		Page:  "margin:0;padding:16px;background:#ffffff;",
		Card:  "max-width:560px;margin:0 auto;font-family:Georgia,serif;font-size:16px;line-height:1.6;color:#222222;",
		Align: "text-align:left;",
	},
}

// Styles returns the available template style ids.
func Styles() []string {
	return []string{"classic", "modern", "minimal"}
}

const emailLayout = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><meta name="viewport" content="width=device-width,initial-scale=1"><title>{{.Subject}}</title></head>
<body style="{{.Style.Page}}">
<div style="{{.Style.Card}}">
{{- if .Banner}}
<img src="{{.Banner}}" alt="" width="600" style="display:block;width:100%;max-width:600px;margin:0 0 16px 0;border:0;">
{{- end}}
<div data-part="content">{{.Body}}</div>
{{- if .Buttons}}
<div data-part="buttons" style="{{.Style.Align}}margin-top:24px;">
{{- range .Buttons}}
<a href="{{.URL}}" style="{{.CSS}}">{{.Label}}</a>
{{- end}}
</div>
{{- end}}
</div>
</body>
</html>
`

var emailTmpl = template.Must(template.New("email").Parse(emailLayout))

type renderButton struct {
	Label string
	URL   string
	CSS   template.CSS
}

type renderData struct {
	Subject string
	Style   emailStyle
	Banner  template.URL
	Body    template.HTML
	Buttons []renderButton
}

// RenderEmail renders tpl into a complete HTML document. tpl is expected to
// have passed validation.
func RenderEmail(tpl EmailTemplate) (string, error) {
	style, ok := emailStyles[tpl.Style]
	if !ok {
		style = emailStyles[DefaultStyle]
	}
	data := renderData{
		Subject: tpl.Subject,
		Style:   style,
		Body:    bodyHTML(tpl.Body),
	}

	switch {
	case tpl.Banner != nil:
		img, err := batch.Image(tpl.Banner)
		if err != nil {
			return "", err
		}
		data.Banner = template.URL(img.DataURI())
	case tpl.BannerURL != "":
		data.Banner = template.URL(tpl.BannerURL)
	}

	for _, b := range tpl.Buttons {
		color := b.Color
		if color == "" {
			color = DefaultButtonColor
		}
		data.Buttons = append(data.Buttons, renderButton{
			Label: b.Label,
			URL:   b.URL,
			CSS: template.CSS("display:inline-block;margin:4px;padding:12px 24px;border-radius:4px;" +
				"font-weight:bold;color:#ffffff;text-decoration:none;background:" + color + ";"),
		})
	}

	var buf bytes.Buffer
	if err := emailTmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("channel: email: render: %w", err)
	}
	return buf.String(), nil
}

// bodyHTML treats bodies without markup as plain text, one paragraph per
// blank-line separated block.
func bodyHTML(body string) template.HTML {
	if strings.Contains(body, "<") {
		return template.HTML(body)
	}
	var b strings.Builder
	for _, para := range strings.Split(strings.ReplaceAll(body, "\r\n", "\n"), "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		lines := strings.Split(para, "\n")
		for i := range lines {
			lines[i] = template.HTMLEscapeString(lines[i])
		}
		b.WriteString("<p>" + strings.Join(lines, "<br>") + "</p>")
	}
	return template.HTML(b.String())
}

// EmailText derives the plain-text alternative of a rendered email: the
// visible text of its content followed by one "label: url" line per button.
// It falls back to the subject when the content has no visible text.
func EmailText(rendered string, tpl EmailTemplate) (string, error) {
	doc, err := html.Parse(strings.NewReader(rendered))
	if err != nil {
		return "", apperr.NewValidation("body", "rendered html cannot be parsed: "+err.Error())
	}
	root := findPart(doc, "content")
	if root == nil {
		root = doc
	}

	var raw strings.Builder
	collectText(root, &raw)
	var lines []string
	for _, line := range strings.Split(raw.String(), "\n") {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) == 0 {
		lines = append(lines, tpl.Subject)
	}

	text := strings.Join(lines, "\n")
	if len(tpl.Buttons) > 0 {
		var links []string
		for _, b := range tpl.Buttons {
			links = append(links, b.Label+": "+b.URL)
		}
		text += "\n\n" + strings.Join(links, "\n")
	}
	return text, nil
}

func findPart(n *html.Node, part string) *html.Node {
	if n.Type == html.ElementNode {
		for _, a := range n.Attr {
			if a.Key == "data-part" && a.Val == part {
				return n
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findPart(c, part); found != nil {
			return found
		}
	}
	return nil
}

var blockElements = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.H1: true, atom.H2: true, atom.H3: true,
	atom.H4: true, atom.H5: true, atom.H6: true, atom.Li: true, atom.Tr: true,
	atom.Table: true, atom.Ul: true, atom.Ol: true, atom.Blockquote: true,
	atom.Section: true, atom.Header: true, atom.Footer: true, atom.Hr: true,
}

func collectText(n *html.Node, b *strings.Builder) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(n.Data)
		return
	case html.ElementNode:
		switch n.DataAtom {
		case atom.Script, atom.Style, atom.Head, atom.Title:
			return
		case atom.Br:
			b.WriteByte('\n')
			return
		case atom.Img:
			for _, a := range n.Attr {
				if a.Key == "alt" && strings.TrimSpace(a.Val) != "" {
					b.WriteString(a.Val)
				}
			}
			return
		}
	}
	block := n.Type == html.ElementNode && blockElements[n.DataAtom]
	if block {
		b.WriteByte('\n')
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, b)
	}
	if block {
		b.WriteByte('\n')
	}
}

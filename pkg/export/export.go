// Package export renders a session's message tree as markdown, HTML, JSON,
// YAML or styled terminal output.
package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/go-go-golems/vizthinker/pkg/tree"
	"github.com/pkg/errors"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"gopkg.in/yaml.v3"
)

type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
	FormatJSON     Format = "json"
	FormatYAML     Format = "yaml"
	FormatTerm     Format = "term"
)

var Formats = []Format{FormatMarkdown, FormatHTML, FormatJSON, FormatYAML, FormatTerm}

func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "md", string(FormatMarkdown):
		return FormatMarkdown, nil
	case string(FormatHTML):
		return FormatHTML, nil
	case string(FormatJSON):
		return FormatJSON, nil
	case "yml", string(FormatYAML):
		return FormatYAML, nil
	case "terminal", string(FormatTerm):
		return FormatTerm, nil
	}
	return "", &tree.ValidationError{Field: "format", Index: -1, Reason: fmt.Sprintf("unknown export format %q", s)}
}

// ContentType is the MIME type served for f.
func (f Format) ContentType() string {
	switch f {
	case FormatHTML:
		return "text/html; charset=utf-8"
	case FormatJSON:
		return "application/json"
	case FormatYAML:
		return "application/yaml"
	case FormatMarkdown:
		return "text/markdown; charset=utf-8"
	default:
		return "text/plain; charset=utf-8"
	}
}

type Options struct {
	// TermStyle is a glamour standard style name ("dark", "light", "notty", "auto").
	TermStyle string
	WordWrap  int
}

func DefaultOptions() Options {
	return Options{TermStyle: "auto", WordWrap: 100}
}

// Write renders doc in format f to w.
func Write(w io.Writer, f Format, doc *Document, opts Options) error {
	switch f {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return errors.Wrap(enc.Encode(doc), "encode json export")

	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return errors.Wrap(err, "encode yaml export")
		}
		return enc.Close()

	case FormatMarkdown:
		_, err := io.WriteString(w, Markdown(doc))
		return err

	case FormatHTML:
		return RenderHTML(w, doc)

	case FormatTerm:
		out, err := RenderTerm(doc, opts)
		if err != nil {
			return err
		}
		_, err = io.WriteString(w, out)
		return err
	}
	return errors.Errorf("unsupported export format %q", f)
}

// RenderHTML converts the markdown rendering into a standalone HTML page.
func RenderHTML(w io.Writer, doc *Document) error {
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	var body bytes.Buffer
	if err := md.Convert([]byte(Markdown(doc)), &body); err != nil {
		return errors.Wrap(err, "convert markdown to html")
	}
	_, err := fmt.Fprintf(w, "<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n<title>%s</title>\n</head>\n<body>\n%s</body>\n</html>\n",
		htmlEscape(doc.title()), body.String())
	return err
}

func RenderTerm(doc *Document, opts Options) (string, error) {
	style := opts.TermStyle
	if style == "" {
		style = "auto"
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(opts.WordWrap),
	)
	if err != nil {
		return "", errors.Wrap(err, "create terminal renderer")
	}
	out, err := r.Render(Markdown(doc))
	if err != nil {
		return "", errors.Wrap(err, "render terminal output")
	}
	return out, nil
}

func htmlEscape(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")
	return r.Replace(s)
}

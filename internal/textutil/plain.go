// Package textutil reduces platform-formatted comment bodies to the plain
// text the sentiment classifier and reply templates work on.
package textutil

import (
	"bytes"
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

var (
	mdRenderer goldmark.Markdown
	stripper   *bluemonday.Policy
)

func init() {
	mdRenderer = goldmark.New(goldmark.WithExtensions(extension.GFM))

	stripper = bluemonday.StrictPolicy()
	stripper.AddSpaceWhenStrippingTag(true)
}

// FromHTML strips every tag, decodes entities and collapses whitespace.
func FromHTML(src string) string {
	if src == "" {
		return ""
	}
	return collapse(html.UnescapeString(stripper.Sanitize(src)))
}

// FromMarkdown renders GitHub-flavored markdown and reduces the result to
// plain text. Unparseable input falls back to stripping it as HTML.
func FromMarkdown(src string) string {
	if src == "" {
		return ""
	}

	var buf bytes.Buffer
	if err := mdRenderer.Convert([]byte(src), &buf); err != nil {
		return FromHTML(src)
	}

	return FromHTML(buf.String())
}

// Truncate shortens s to at most n runes, appending an ellipsis when cut.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	if n == 1 {
		return "…"
	}
	return strings.TrimSpace(string(runes[:n-1])) + "…"
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

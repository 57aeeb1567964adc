// Package render turns raw message content into sanitized HTML. The engine
// treats rendering as best effort: any failure here means the message goes
// out with its raw content instead.
package render

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

type Renderer struct {
	md       goldmark.Markdown
	sanitize *bluemonday.Policy
}

func NewRenderer() *Renderer {
	return &Renderer{
		// raw HTML passes through goldmark; bluemonday is the safety layer
		md: goldmark.New(
			goldmark.WithExtensions(extension.Linkify, extension.Strikethrough),
			goldmark.WithRendererOptions(html.WithHardWraps(), html.WithUnsafe()),
		),
		sanitize: bluemonday.UGCPolicy(),
	}
}

// Render converts markdown to sanitized HTML.
func (r *Renderer) Render(content string) (string, error) {
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(content), &buf); err != nil {
		return "", fmt.Errorf("convert markdown: %w", err)
	}

	return strings.TrimSpace(r.sanitize.Sanitize(buf.String())), nil
}

package models

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

var markdown = sync.OnceValue(func() goldmark.Markdown {
	return goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			highlighting.NewHighlighting(
				highlighting.WithStyle("monokai"),
			),
		),
		goldmark.WithRendererOptions(
			html.WithHardWraps(),
		),
	)
})

// RenderMarkdown converts the accumulated assistant text into HTML for the view layer. The model
// output is treated as GitHub-flavored markdown with syntax-highlighted code fences.
func RenderMarkdown(content string) (string, error) {
	var buf bytes.Buffer
	if err := markdown().Convert([]byte(content), &buf); err != nil {
		return "", fmt.Errorf("failed to render markdown: %w", err)
	}
	return buf.String(), nil
}

package server

import (
	"bytes"
	"fmt"
	"html"
	"path/filepath"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// markdownRenderer converts markdown sources into preview pages.
var markdownRenderer = goldmark.New(goldmark.WithExtensions(extension.GFM))

// markdownStyles contains the inline CSS for rendered markdown previews.
const markdownStyles = `<style>
  * { box-sizing: border-box; }
  body {
    font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
    max-width: 800px;
    margin: 0 auto;
    padding: 2rem;
    line-height: 1.6;
    color: #24292f;
  }
  pre {
    background: #f6f8fa;
    padding: 1rem;
    border-radius: 6px;
    overflow-x: auto;
  }
  code { font-family: 'SF Mono', Monaco, 'Courier New', monospace; font-size: 0.9em; }
  blockquote { border-left: 4px solid #d0d7de; margin-left: 0; padding-left: 1rem; color: #57606a; }
  table { border-collapse: collapse; }
  th, td { border: 1px solid #d0d7de; padding: 0.4rem 0.8rem; }
  img { max-width: 100%; }
</style>`

// renderMarkdown converts a markdown file body into a self-contained HTML
// preview page. The result is served as HTML, so the live-reload injection
// step applies to it like any other page.
func renderMarkdown(source []byte, filename string) ([]byte, error) {
	var body bytes.Buffer
	if err := markdownRenderer.Convert(source, &body); err != nil {
		return nil, fmt.Errorf("rendering markdown: %w", err)
	}

	title := html.EscapeString(filepath.Base(filename))
	var page bytes.Buffer
	fmt.Fprintf(&page, `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>%s</title>%s</head>
<body>
%s</body>
</html>`, title, markdownStyles, body.String())

	return page.Bytes(), nil
}

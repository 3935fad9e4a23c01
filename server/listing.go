package server

import (
	"fmt"
	"html"
	"io/fs"
	"net/url"
	"path"
	"sort"
	"strings"
)

// listingEntry is one row of a rendered directory listing.
type listingEntry struct {
	name  string
	isDir bool
}

// listingStyles contains the inline CSS for the directory listing page.
const listingStyles = `<style>
  * { box-sizing: border-box; margin: 0; padding: 0; }
  body {
    font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
    background: #1a1a2e;
    color: #eee;
    min-height: 100vh;
    padding: 2rem;
  }
  .container { max-width: 700px; margin: 0 auto; }
  h1 { font-size: 1.25rem; margin-bottom: 1.5rem; color: #61afef; word-break: break-all; }
  ul { list-style: none; }
  li { padding: 0.25rem 0; }
  a {
    color: #98c379;
    text-decoration: none;
    font-family: 'SF Mono', Monaco, 'Courier New', monospace;
    font-size: 0.9rem;
  }
  a:hover { text-decoration: underline; }
  .dir a { color: #61afef; }
</style>`

// renderListing renders a directory as a minimal self-contained HTML page.
// It is a pure function of the entries, the request path, and the flags:
// dot-prefixed names are excluded unless showHidden, directories sort before
// files, then case-insensitively by name, and a parent ".." entry is
// synthesized when the listing is not at the sandbox root.
func renderListing(requestPath string, entries []fs.DirEntry, showHidden, atRoot bool) string {
	rows := make([]listingEntry, 0, len(entries))
	for _, e := range entries {
		if !showHidden && strings.HasPrefix(e.Name(), ".") {
			continue
		}
		rows = append(rows, listingEntry{name: e.Name(), isDir: e.IsDir()})
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].isDir != rows[j].isDir {
			return rows[i].isDir
		}
		return strings.ToLower(rows[i].name) < strings.ToLower(rows[j].name)
	})

	var b strings.Builder
	fmt.Fprintf(&b, `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Index of %s</title>%s</head>
<body>
<div class="container">
<h1>Index of %s</h1>
<ul>
`, html.EscapeString(requestPath), listingStyles, html.EscapeString(requestPath))

	if !atRoot {
		parent := parentPath(requestPath)
		fmt.Fprintf(&b, "<li class=\"dir\"><a href=\"%s\">..</a></li>\n", html.EscapeString(parent))
	}

	base := strings.TrimSuffix(requestPath, "/")
	for _, row := range rows {
		href := base + "/" + (&url.URL{Path: row.name}).EscapedPath()
		label := row.name
		if row.isDir {
			href += "/"
			label += "/"
		}
		class := ""
		if row.isDir {
			class = " class=\"dir\""
		}
		fmt.Fprintf(&b, "<li%s><a href=\"%s\">%s</a></li>\n", class, html.EscapeString(href), html.EscapeString(label))
	}

	b.WriteString("</ul>\n</div>\n</body>\n</html>\n")
	return b.String()
}

// parentPath removes the last segment of a request path.
func parentPath(requestPath string) string {
	trimmed := strings.TrimSuffix(requestPath, "/")
	parent := path.Dir(trimmed)
	if parent == "." || parent == "" {
		return "/"
	}
	if !strings.HasSuffix(parent, "/") {
		parent += "/"
	}
	return parent
}

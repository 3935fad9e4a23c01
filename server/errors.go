package server

import (
	"fmt"
	"html"
	"net/http"
)

// errorPageStyles contains the inline CSS shared by all error pages.
const errorPageStyles = `<style>
  * { box-sizing: border-box; margin: 0; padding: 0; }
  body {
    font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
    background: #1a1a2e;
    color: #eee;
    min-height: 100vh;
    padding: 2rem;
  }
  .container { max-width: 700px; margin: 0 auto; }
  h1 { font-size: 1.5rem; margin-bottom: 1.5rem; color: #f39c12; }
  .status-code {
    display: inline-block;
    background: #f39c12;
    color: #1a1a2e;
    padding: 0.2rem 0.5rem;
    border-radius: 4px;
    font-size: 0.75rem;
    font-weight: 600;
    margin-right: 0.5rem;
  }
  .path {
    font-family: 'SF Mono', Monaco, 'Courier New', monospace;
    font-size: 0.9rem;
    word-break: break-all;
  }
</style>`

// writeErrorPage renders a minimal self-contained HTML error page.
func writeErrorPage(w http.ResponseWriter, status int, detail string) {
	title := http.StatusText(status)
	body := fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>%d %s</title>%s</head>
<body>
<div class="container">
<h1><span class="status-code">%d</span>%s</h1>
<p class="path">%s</p>
</div>
</body>
</html>`, status, title, errorPageStyles, status, html.EscapeString(title), html.EscapeString(detail))

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Length", fmt.Sprintf("%d", len(body)))
	w.WriteHeader(status)
	fmt.Fprint(w, body)
}

// notFound renders a 404. Sandbox violations are reported through this same
// page so a traversal attempt looks identical to a missing file.
func notFound(w http.ResponseWriter, requestPath string) {
	writeErrorPage(w, http.StatusNotFound, requestPath)
}

// methodNotAllowed renders a 405 for anything other than GET/HEAD.
func methodNotAllowed(w http.ResponseWriter, method string) {
	w.Header().Set("Allow", "GET, HEAD")
	writeErrorPage(w, http.StatusMethodNotAllowed, method)
}

package server

import (
	"mime"
	"path"
	"strings"
)

// mimeTypes maps lowercase file extensions to content types. The table covers
// the formats a local dev site actually serves; anything else falls back to
// the platform registry and then to application/octet-stream.
var mimeTypes = map[string]string{
	".html":     "text/html; charset=utf-8",
	".htm":      "text/html; charset=utf-8",
	".css":      "text/css; charset=utf-8",
	".js":       "application/javascript",
	".mjs":      "application/javascript",
	".json":     "application/json",
	".xml":      "application/xml",
	".txt":      "text/plain; charset=utf-8",
	".md":       "text/markdown; charset=utf-8",
	".markdown": "text/markdown; charset=utf-8",
	".png":      "image/png",
	".jpg":      "image/jpeg",
	".jpeg":     "image/jpeg",
	".gif":      "image/gif",
	".svg":      "image/svg+xml",
	".webp":     "image/webp",
	".avif":     "image/avif",
	".ico":      "image/x-icon",
	".woff":     "font/woff",
	".woff2":    "font/woff2",
	".ttf":      "font/ttf",
	".otf":      "font/otf",
	".mp4":      "video/mp4",
	".webm":     "video/webm",
	".mp3":      "audio/mpeg",
	".wav":      "audio/wav",
	".ogg":      "audio/ogg",
	".pdf":      "application/pdf",
	".wasm":     "application/wasm",
	".map":      "application/json",
}

// contentTypeFor returns the content type for a filename, by extension.
// Extension matching is case-insensitive.
func contentTypeFor(filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	if ct, ok := mimeTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// isHTML reports whether a content type is served as an HTML document.
func isHTML(contentType string) bool {
	return strings.HasPrefix(contentType, "text/html")
}

// isStylesheet reports whether a changed path is a stylesheet, for the CSS
// hot-swap broadcast policy.
func isStylesheet(p string) bool {
	return strings.EqualFold(path.Ext(p), ".css")
}

// isMarkdown reports whether a path is rendered by the markdown preview.
func isMarkdown(p string) bool {
	ext := strings.ToLower(path.Ext(p))
	return ext == ".md" || ext == ".markdown"
}

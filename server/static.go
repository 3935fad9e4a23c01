package server

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/liveserve/liveserve/server/config"
)

// streamChunkSize is the buffer size for streamed (non-HTML) file bodies.
const streamChunkSize = 64 * 1024

// renderState is a point-in-time snapshot of the instance settings one
// request is served under. Taking it once per request keeps concurrent
// toggles and retargets from being observed mid-response.
type renderState struct {
	rootReal     string
	defaultIndex string
	indexNames   []string
	headers      map[string]string
	cors         config.CORSPolicy
	inject       bool
	listDir      bool
	showHidden   bool
	markdown     bool
}

// serveContent handles every non-reserved path: resolve, then respond with a
// file body, an index page, or a directory listing.
func (s *Instance) serveContent(w http.ResponseWriter, r *http.Request) {
	st := s.snapshot()

	// Resolve from the still-encoded path; r.URL.Path is already decoded
	// once by net/http and feeding it back through would decode twice.
	resolved, err := resolvePath(st.rootReal, r.URL.EscapedPath())
	if err != nil {
		// Sandbox violations render exactly like missing files
		notFound(w, r.URL.Path)
		return
	}

	info, err := os.Stat(resolved)
	if err != nil {
		notFound(w, r.URL.Path)
		return
	}

	if info.IsDir() {
		s.serveDir(w, r, st, resolved)
		return
	}
	s.serveFile(w, r, st, resolved)
}

// serveDir resolves a directory to an index page or a listing.
func (s *Instance) serveDir(w http.ResponseWriter, r *http.Request, st renderState, dir string) {
	// A server started "on a file" serves that file for "/"
	if r.URL.Path == "/" && st.defaultIndex != "" {
		if info, err := os.Stat(st.defaultIndex); err == nil && info.Mode().IsRegular() {
			s.serveFile(w, r, st, st.defaultIndex)
			return
		}
	}

	for _, name := range st.indexNames {
		candidate := filepath.Join(dir, name)
		if info, err := os.Stat(candidate); err == nil && info.Mode().IsRegular() {
			s.serveFile(w, r, st, candidate)
			return
		}
	}

	if !st.listDir {
		notFound(w, r.URL.Path)
		return
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		notFound(w, r.URL.Path)
		return
	}

	page := []byte(renderListing(r.URL.Path, entries, st.showHidden, dir == st.rootReal))
	if st.inject {
		page = injectScript(page)
	}
	s.writeBuffered(w, r, st, page, "text/html; charset=utf-8")
}

// serveFile delivers one regular file: HTML (and markdown previews) as a
// buffered, possibly script-injected body; everything else streamed in
// fixed-size chunks with the size reported at open time.
func (s *Instance) serveFile(w http.ResponseWriter, r *http.Request, st renderState, path string) {
	contentType := contentTypeFor(path)

	if st.markdown && isMarkdown(path) {
		source, err := os.ReadFile(path)
		if err != nil {
			notFound(w, r.URL.Path)
			return
		}
		page, err := renderMarkdown(source, path)
		if err != nil {
			s.logError("markdown render failed for %s: %v", path, err)
			notFound(w, r.URL.Path)
			return
		}
		if st.inject {
			page = injectScript(page)
		}
		s.writeBuffered(w, r, st, page, "text/html; charset=utf-8")
		return
	}

	if isHTML(contentType) {
		body, err := os.ReadFile(path)
		if err != nil {
			notFound(w, r.URL.Path)
			return
		}
		if st.inject {
			body = injectScript(body)
		}
		s.writeBuffered(w, r, st, body, contentType)
		return
	}

	s.streamFile(w, r, st, path, contentType)
}

// writeBuffered writes a fully-assembled body with an exact Content-Length.
func (s *Instance) writeBuffered(w http.ResponseWriter, r *http.Request, st renderState, body []byte, contentType string) {
	h := w.Header()
	applyInstanceHeaders(h, st)
	h.Set("Content-Type", contentType)
	h.Set("Content-Length", fmt.Sprintf("%d", len(body)))
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := w.Write(body); err != nil {
		s.logError("write failed for %s: %v", r.URL.Path, err)
	}
}

// streamFile copies a file to the connection in streamChunkSize chunks.
// The Content-Length is fixed at the size observed when the file is opened;
// a read error mid-stream aborts the connection with no recovery attempt.
func (s *Instance) streamFile(w http.ResponseWriter, r *http.Request, st renderState, path, contentType string) {
	f, err := os.Open(path)
	if err != nil {
		notFound(w, r.URL.Path)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		notFound(w, r.URL.Path)
		return
	}

	h := w.Header()
	applyInstanceHeaders(h, st)
	h.Set("Content-Type", contentType)
	h.Set("Content-Length", fmt.Sprintf("%d", info.Size()))
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}

	if _, err := io.CopyBuffer(w, f, make([]byte, streamChunkSize)); err != nil {
		s.logError("stream aborted for %s: %v", r.URL.Path, err)
	}
}

// applyInstanceHeaders merges the configured extra headers, the CORS policy,
// and the dev no-cache headers into a success response.
func applyInstanceHeaders(h http.Header, st renderState) {
	h.Set("Cache-Control", "no-cache, no-store, must-revalidate")
	h.Set("Connection", "close")
	for name, value := range st.headers {
		h.Set(name, value)
	}
	if st.cors.Enabled() {
		h.Set("Access-Control-Allow-Origin", st.cors.Origin())
	}
}

// Package server implements a loopback static file server with live reload:
// sandboxed path resolution, buffered HTML delivery with script injection,
// chunked streaming for everything else, a recursive debounced file watcher,
// and an event-stream push channel fanned out to connected browsers.
package server

import (
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/liveserve/liveserve/server/config"
)

// BindError reports a failed Start: the port was unavailable or the root
// could not be resolved. The instance is not left partially registered.
type BindError struct {
	Port int
	Err  error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("cannot start on port %d: %v", e.Port, e.Err)
}

func (e *BindError) Unwrap() error { return e.Err }

// Instance is one running server bound to one port. All mutable state is
// guarded by mu; requests snapshot it once and render from the snapshot.
type Instance struct {
	host   string
	stdout io.Writer
	stderr io.Writer

	logLevel    string
	logFormat   string
	compression config.CompressionConfig

	events *broadcaster

	mu           sync.Mutex
	port         int // requested; actual once started
	root         string
	rootReal     string
	defaultIndex string
	indexNames   []string
	headers      map[string]string
	cors         config.CORSPolicy
	liveEnabled  bool
	injectOn     bool
	debounce     time.Duration
	cssHotSwap   bool
	listDir      bool
	showHidden   bool
	markdown     bool

	listener net.Listener
	httpSrv  *http.Server
	watch    *watcher
	started  bool
	stopped  bool
}

// New builds an instance from configuration. The root is canonicalized here;
// an unresolvable root is a BindError. The socket is not bound until Start.
func New(cfg *config.Config, stdout, stderr io.Writer) (*Instance, error) {
	rootReal, err := canonicalRoot(cfg.Root)
	if err != nil {
		return nil, &BindError{Port: cfg.Port, Err: fmt.Errorf("resolving root %s: %w", cfg.Root, err)}
	}

	defaultIndex, err := resolveDefaultIndex(cfg.File)
	if err != nil {
		return nil, &BindError{Port: cfg.Port, Err: err}
	}

	host := cfg.Host
	if host == "" {
		host = "127.0.0.1"
	}

	s := &Instance{
		host:        host,
		stdout:      stdout,
		stderr:      stderr,
		logLevel:    cfg.Logging.Level,
		logFormat:   cfg.Logging.Format,
		compression: cfg.Compression,

		port:         cfg.Port,
		root:         cfg.Root,
		rootReal:     rootReal,
		defaultIndex: defaultIndex,
		indexNames:   append([]string(nil), cfg.IndexNames...),
		headers:      copyHeaders(cfg.Headers),
		cors:         cfg.CORS,
		liveEnabled:  cfg.Live.Enabled,
		injectOn:     cfg.Live.Inject,
		debounce:     time.Duration(cfg.Live.DebounceMs) * time.Millisecond,
		cssHotSwap:   cfg.Live.CSSHotSwap,
		listDir:      cfg.Listing.Enabled,
		showHidden:   cfg.Listing.ShowHidden,
		markdown:     cfg.Markdown.Preview,
	}
	s.events = newBroadcaster(s.logWatch)

	return s, nil
}

// resolveDefaultIndex canonicalizes the "started on a file" index, if any.
func resolveDefaultIndex(file string) (string, error) {
	if file == "" {
		return "", nil
	}
	abs, err := filepath.Abs(file)
	if err != nil {
		return "", fmt.Errorf("resolving index file %s: %w", file, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("index file %s: %w", file, err)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("index file %s is not a regular file", file)
	}
	return abs, nil
}

func copyHeaders(h map[string]string) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}

// Start binds the listening socket and starts the watcher if live reload is
// enabled. A bind failure is fatal to this call and leaves nothing running.
func (s *Instance) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return &BindError{Port: s.port, Err: fmt.Errorf("instance already started")}
	}
	if s.stopped {
		return &BindError{Port: s.port, Err: fmt.Errorf("instance already stopped")}
	}

	ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", s.host, s.port))
	if err != nil {
		return &BindError{Port: s.port, Err: err}
	}
	s.listener = ln
	s.port = ln.Addr().(*net.TCPAddr).Port
	s.started = true

	s.httpSrv = &http.Server{
		Handler:           s.buildHandler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	// One request per connection; every ordinary response closes
	s.httpSrv.SetKeepAlivesEnabled(false)

	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logError("server stopped: %v", err)
		}
	}()

	if s.liveEnabled {
		s.startWatchLocked()
	}

	s.logInfo("serving %s at http://%s:%d", s.rootReal, s.host, s.port)
	return nil
}

// buildHandler assembles the dispatch chain: reserved live-reload endpoints
// short-circuit the resolver; everything else resolves against the sandbox.
func (s *Instance) buildHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(liveScriptPath, s.handleScript)
	mux.Handle(liveEventsPath, s.events)
	mux.HandleFunc("/", s.serveContent)

	var h http.Handler = s.methodFilter(mux)
	h = newCompressionHandler(h, s.compression)
	if s.logLevel != "error" {
		h = newRequestLogger(h, s.stdout, s.logFormat)
	}
	return h
}

// methodFilter rejects everything except the read-only retrieval methods.
func (s *Instance) methodFilter(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			methodNotAllowed(w, r.Method)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// startWatchLocked starts a watcher for the current root. Callers hold mu.
// Watch registration failure degrades the instance to serving without
// reload events rather than failing it.
func (s *Instance) startWatchLocked() {
	w, err := newWatcher(s.rootReal, s.debounce, s.notifyChange, s.logWatch)
	if err != nil {
		s.logError("file watch unavailable for %s: %v", s.rootReal, err)
		return
	}
	s.watch = w
	s.logWatch("watching %s", s.rootReal)
}

// notifyChange is the debounced watcher callback: one coalesced change per
// quiet period. Stylesheet changes become a hot-swap event when enabled.
func (s *Instance) notifyChange(changedPath string) {
	s.mu.Lock()
	cssHotSwap := s.cssHotSwap
	s.mu.Unlock()

	event := "reload"
	if cssHotSwap && isStylesheet(changedPath) {
		event = "refreshcss"
	}
	s.logWatch("%s changed, broadcasting %s", changedPath, event)
	s.events.broadcast(event, encodeReloadPayload(changedPath))
}

// Reload force-broadcasts a reload to every connected client, bypassing the
// watcher and debounce.
func (s *Instance) Reload(changedPath string) {
	s.events.broadcast("reload", encodeReloadPayload(changedPath))
}

// Stop tears the instance down: watcher stopped, every push-channel client
// closed, listening socket closed. Idempotent; no watcher callback fires
// after Stop returns.
func (s *Instance) Stop() error {
	s.mu.Lock()
	if s.stopped || !s.started {
		s.stopped = true
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	w := s.watch
	s.watch = nil
	srv := s.httpSrv
	s.mu.Unlock()

	if w != nil {
		w.stop()
	}
	s.events.closeAll()
	if srv != nil {
		if err := srv.Close(); err != nil {
			return err
		}
	}
	s.logInfo("stopped instance on port %d", s.Port())
	return nil
}

// Retarget points a running instance at a new root (and optional index file)
// without closing its socket or its push-channel clients. The watcher is
// replaced and ignore rules are re-read from the new root.
func (s *Instance) Retarget(newRoot, newFile string) error {
	rootReal, err := canonicalRoot(newRoot)
	if err != nil {
		return fmt.Errorf("resolving root %s: %w", newRoot, err)
	}
	defaultIndex, err := resolveDefaultIndex(newFile)
	if err != nil {
		return err
	}

	// Swap root and watcher in one critical section so a concurrent
	// SetLiveEnabled cannot slip a watcher in between that would leak.
	s.mu.Lock()
	s.root = newRoot
	s.rootReal = rootReal
	s.defaultIndex = defaultIndex
	old := s.watch
	s.watch = nil
	if s.liveEnabled && s.started && !s.stopped {
		s.startWatchLocked()
	}
	s.mu.Unlock()

	if old != nil {
		old.stop()
	}

	s.logInfo("retargeted port %d to %s", s.Port(), rootReal)
	return nil
}

// SetLiveEnabled toggles change watching. Disabling stops the watch and
// cancels any pending debounce without closing open push connections; they
// simply stop receiving events until re-enabled.
func (s *Instance) SetLiveEnabled(enabled bool) {
	s.mu.Lock()
	if s.liveEnabled == enabled {
		s.mu.Unlock()
		return
	}
	s.liveEnabled = enabled
	w := s.watch
	s.watch = nil
	start := enabled && s.started && !s.stopped
	if start {
		s.startWatchLocked()
	}
	s.mu.Unlock()

	if w != nil {
		w.stop()
	}
}

// SetDirListingEnabled toggles directory listing fallback rendering.
func (s *Instance) SetDirListingEnabled(enabled bool) {
	s.mu.Lock()
	s.listDir = enabled
	s.mu.Unlock()
}

// Port returns the bound port (the actual port once started).
func (s *Instance) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port
}

// Addr returns the listen address, or "" before Start.
func (s *Instance) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Root returns the canonical serve root.
func (s *Instance) Root() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rootReal
}

// ClientCount returns the number of open push-channel connections.
func (s *Instance) ClientCount() int {
	return s.events.clientCount()
}

// snapshot captures the render-relevant settings for one request.
func (s *Instance) snapshot() renderState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return renderState{
		rootReal:     s.rootReal,
		defaultIndex: s.defaultIndex,
		indexNames:   s.indexNames,
		headers:      s.headers,
		cors:         s.cors,
		inject:       s.injectOn,
		listDir:      s.listDir,
		showHidden:   s.showHidden,
		markdown:     s.markdown,
	}
}

func (s *Instance) logInfo(format string, args ...any) {
	if s.logLevel == "error" {
		return
	}
	fmt.Fprintf(s.stdout, "%s %s\n", servePrefix, fmt.Sprintf(format, args...))
}

func (s *Instance) logWatch(format string, args ...any) {
	if s.logLevel == "error" {
		return
	}
	fmt.Fprintf(s.stdout, "%s %s\n", watchPrefix, fmt.Sprintf(format, args...))
}

func (s *Instance) logError(format string, args ...any) {
	fmt.Fprintf(s.stderr, "%s %s\n", errorPrefix, fmt.Sprintf(format, args...))
}

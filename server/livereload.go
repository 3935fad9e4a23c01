package server

import (
	"fmt"
	"net/http"
	"regexp"
)

// Reserved path prefixes; requests here never touch the path resolver.
const (
	liveScriptPath = "/__live/script.js"
	liveEventsPath = "/__live/events"
)

// Precompiled regex for case-insensitive tag matching
var bodyTagRe = regexp.MustCompile(`(?i)</body>`)

// liveScriptTag is inserted into HTML responses when injection is enabled.
// The script is served same-origin so no port or host is baked into pages.
const liveScriptTag = `<script src="` + liveScriptPath + `"></script>`

// liveClientScript is the browser-side live-reload client. It listens on the
// event-stream endpoint and either reloads the page or, for stylesheet
// updates, re-fetches the matching <link> tags in place.
const liveClientScript = `(function() {
  var source = new EventSource('` + liveEventsPath + `');

  source.addEventListener('reload', function() {
    console.log('[liveserve] change detected, reloading');
    location.reload();
  });

  source.addEventListener('refreshcss', function(e) {
    console.log('[liveserve] stylesheet changed, refreshing links');
    var links = document.querySelectorAll('link[rel="stylesheet"]');
    for (var i = 0; i < links.length; i++) {
      var link = links[i];
      var href = link.getAttribute('href');
      if (!href) continue;
      var clean = href.replace(/[?&]_live=\d+$/, '');
      var sep = clean.indexOf('?') === -1 ? '?' : '&';
      link.setAttribute('href', clean + sep + '_live=' + Date.now());
    }
  });

  source.onopen = function() {
    console.log('[liveserve] connected');
  };
})();
`

// injectScript inserts the live-reload script tag into an HTML body,
// immediately before the closing </body> tag, or appended at the end when no
// such tag exists.
func injectScript(content []byte) []byte {
	if loc := bodyTagRe.FindIndex(content); loc != nil {
		idx := loc[0]
		out := make([]byte, 0, len(content)+len(liveScriptTag))
		out = append(out, content[:idx]...)
		out = append(out, liveScriptTag...)
		out = append(out, content[idx:]...)
		return out
	}
	return append(append([]byte{}, content...), liveScriptTag...)
}

// handleScript serves the fixed live-reload client script.
func (s *Instance) handleScript(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/javascript")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Content-Length", fmt.Sprintf("%d", len(liveClientScript)))
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		fmt.Fprint(w, liveClientScript)
	}
}

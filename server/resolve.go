package server

import (
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// Resolution failures. errForbidden is kept distinct for internal accounting
// but is always rendered to the client exactly like errNotFound so traversal
// probes cannot distinguish "outside the root" from "does not exist".
var (
	errNotFound  = errors.New("not found")
	errForbidden = errors.New("forbidden")
)

// canonicalRoot turns a configured serve root into the canonical absolute
// path all sandbox checks are made against. Symlinks are resolved so a root
// that is itself a symlink sandboxes to its target.
func canonicalRoot(root string) (string, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	real, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(real)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return "", errors.New("serve root is not a directory")
	}
	// Normalize away any trailing separator so prefix checks are exact
	if len(real) > 1 {
		real = strings.TrimRight(real, string(os.PathSeparator))
	}
	return real, nil
}

// resolvePath maps a request path onto the sandboxed filesystem. The input
// is the raw (still percent-encoded) path from the request line; the one
// decode in the pipeline happens here, so files whose names contain "+" or
// "%" stay reachable. The result is a canonical absolute path equal to
// rootReal or strictly inside it. Paths that cannot be canonicalized
// (missing files, permission errors) resolve to errNotFound; paths that
// escape the root - via "..", encoded traversal, or symlinks - resolve to
// errForbidden.
func resolvePath(rootReal, requestPath string) (string, error) {
	// "/" short-circuits straight to the root without decoding
	if requestPath == "" || requestPath == "/" {
		return rootReal, nil
	}

	// Percent-escapes only; "+" is a literal character in paths
	decoded, err := url.PathUnescape(requestPath)
	if err != nil {
		return "", errNotFound
	}

	joined := filepath.Join(rootReal, strings.TrimLeft(decoded, "/"))

	canonical, err := filepath.EvalSymlinks(joined)
	if err != nil {
		return "", errNotFound
	}

	if canonical != rootReal && !strings.HasPrefix(canonical, rootReal+string(os.PathSeparator)) {
		return "", errForbidden
	}

	return canonical, nil
}

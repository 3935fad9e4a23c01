package server

import (
	"bufio"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// ignoreFileName is the optional root-local ignore file read at watch
// (re)start time. One glob pattern per line; blank lines and lines starting
// with "#" are skipped.
const ignoreFileName = ".liveserveignore"

// ignoreRule is one compiled ignore pattern. "*" in the source pattern
// matches any run of characters; matching is unanchored, against either the
// relative or the absolute changed path.
type ignoreRule struct {
	pattern string
	re      *regexp.Regexp
}

// compileIgnoreRule translates a glob-like pattern into a regexp.
func compileIgnoreRule(pattern string) ignoreRule {
	var b strings.Builder
	for _, part := range strings.Split(pattern, "*") {
		if b.Len() > 0 {
			b.WriteString(".*")
		}
		b.WriteString(regexp.QuoteMeta(part))
	}
	return ignoreRule{pattern: pattern, re: regexp.MustCompile(b.String())}
}

// loadIgnoreRules reads the ignore file from the watch root. A missing file
// means no rules; a read error mid-file keeps the rules parsed so far.
func loadIgnoreRules(root string) []ignoreRule {
	f, err := os.Open(filepath.Join(root, ignoreFileName))
	if err != nil {
		return nil
	}
	defer f.Close()

	var rules []ignoreRule
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		rules = append(rules, compileIgnoreRule(line))
	}
	return rules
}

// ignored reports whether a changed path matches any ignore rule. Both the
// root-relative and the absolute form of the path are tried.
func ignored(rules []ignoreRule, relPath, absPath string) bool {
	for _, rule := range rules {
		if rule.re.MatchString(relPath) || rule.re.MatchString(absPath) {
			return true
		}
	}
	return false
}

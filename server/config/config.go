package config

// Config represents the complete liveserve configuration for one instance.
type Config struct {
	BaseDir string `yaml:"-"` // Directory containing config file, for resolving relative paths

	Host string `yaml:"-"`    // Loopback only; fixed at 127.0.0.1, overridable in tests
	Port int    `yaml:"port"` // Listen port (0 = pick an ephemeral port)

	Root string `yaml:"root"` // Directory to serve (default: ".")
	File string `yaml:"-"`    // Set via CLI when starting on a single file; served for "/"

	IndexNames []string          `yaml:"index_names"` // Tried in order when a directory is requested
	Headers    map[string]string `yaml:"headers"`     // Extra headers merged into every success response

	CORS CORSPolicy `yaml:"cors"` // "" (disabled), "*" (wildcard), or a specific origin

	Live        LiveConfig        `yaml:"live"`
	Listing     ListingConfig     `yaml:"listing"`
	Markdown    MarkdownConfig    `yaml:"markdown"`
	Compression CompressionConfig `yaml:"compression"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// LiveConfig holds live-reload settings.
type LiveConfig struct {
	Enabled    bool `yaml:"enabled"`      // Watch the root and push reload events
	Inject     bool `yaml:"inject"`       // Inject the client script into HTML responses
	DebounceMs int  `yaml:"debounce_ms"`  // Quiet period after the last change before a reload fires
	CSSHotSwap bool `yaml:"css_hot_swap"` // Stylesheet changes refresh links instead of reloading
}

// ListingConfig holds directory listing settings.
type ListingConfig struct {
	Enabled    bool `yaml:"enabled"`     // Render a listing when a directory has no index
	ShowHidden bool `yaml:"show_hidden"` // Include dot-prefixed entries
}

// MarkdownConfig holds markdown preview settings.
type MarkdownConfig struct {
	Preview bool `yaml:"preview"` // Render .md files as HTML pages
}

// CompressionConfig holds HTTP response compression settings.
// Compression applies only to buffered text responses; streamed files keep
// their exact Content-Length and are never compressed.
type CompressionConfig struct {
	Enabled bool   `yaml:"enabled"`  // Enable gzip compression (default: false)
	Level   string `yaml:"level"`    // "fastest", "default", "best"
	MinSize int    `yaml:"min_size"` // Minimum response size to compress in bytes
}

// LoggingConfig holds request logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // "info" or "error" (error suppresses request logs)
	Format string `yaml:"format"` // "text" or "json"
}

// CORSPolicy is the Access-Control-Allow-Origin policy for served content.
// Empty string disables CORS headers, "*" allows any origin, anything else
// is echoed as the single allowed origin.
type CORSPolicy string

// Enabled reports whether CORS headers should be added to responses.
func (p CORSPolicy) Enabled() bool { return p != "" }

// Origin returns the Access-Control-Allow-Origin header value.
func (p CORSPolicy) Origin() string { return string(p) }

// Defaults returns a Config with sensible development defaults.
func Defaults() *Config {
	return &Config{
		Host:       "127.0.0.1",
		Port:       5500,
		Root:       ".",
		IndexNames: []string{"index.html", "index.htm"},
		Live: LiveConfig{
			Enabled:    true,
			Inject:     true,
			DebounceMs: 100,
			CSSHotSwap: true,
		},
		Listing: ListingConfig{
			Enabled:    true,
			ShowHidden: false,
		},
		Markdown: MarkdownConfig{
			Preview: true,
		},
		Compression: CompressionConfig{
			Enabled: false,
			Level:   "default",
			MinSize: 1024,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

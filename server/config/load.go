package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads configuration from a file with ENV interpolation.
// If configPath is empty, it searches default locations; a missing config
// file is not an error - defaults are returned instead.
func Load(configPath string, getenv func(string) string) (*Config, error) {
	path, err := resolveConfigPath(configPath, getenv)
	if err != nil {
		return nil, err
	}

	cfg := Defaults()

	if path == "" {
		// No config file - run on defaults rooted in the current directory
		cfg.BaseDir, _ = os.Getwd()
		return cfg, nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path: %w", err)
	}
	baseDir := filepath.Dir(absPath)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	// Interpolate environment variables
	data = interpolateEnv(data, getenv)

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.BaseDir = baseDir

	// Resolve the serve root relative to the config file
	if cfg.Root != "" && !filepath.IsAbs(cfg.Root) {
		cfg.Root = filepath.Join(baseDir, cfg.Root)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks configuration for errors after CLI overrides are applied.
func (cfg *Config) Validate() error {
	var errs []string

	if cfg.Port < 0 || cfg.Port > 65535 {
		errs = append(errs, fmt.Sprintf("invalid port: %d (must be 1-65535)", cfg.Port))
	}
	if cfg.Live.DebounceMs < 0 {
		errs = append(errs, fmt.Sprintf("invalid live.debounce_ms: %d (must be >= 0)", cfg.Live.DebounceMs))
	}
	if cfg.Logging.Level != "" && cfg.Logging.Level != "info" && cfg.Logging.Level != "error" {
		errs = append(errs, fmt.Sprintf("invalid logging.level: %q (must be \"info\" or \"error\")", cfg.Logging.Level))
	}
	if cfg.Logging.Format != "" && cfg.Logging.Format != "text" && cfg.Logging.Format != "json" {
		errs = append(errs, fmt.Sprintf("invalid logging.format: %q (must be \"text\" or \"json\")", cfg.Logging.Format))
	}
	switch cfg.Compression.Level {
	case "", "fastest", "default", "best":
	default:
		errs = append(errs, fmt.Sprintf("invalid compression.level: %q", cfg.Compression.Level))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// resolveConfigPath finds the config file to use.
// Search order: explicit path > LIVESERVE_CONFIG env > ./liveserve.yaml
// An explicit path that does not exist is an error; the implicit locations
// are optional.
func resolveConfigPath(explicit string, getenv func(string) string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	if envPath := getenv("LIVESERVE_CONFIG"); envPath != "" {
		if _, err := os.Stat(envPath); err != nil {
			return "", fmt.Errorf("config file not found: %s (from LIVESERVE_CONFIG)", envPath)
		}
		return envPath, nil
	}

	if _, err := os.Stat("liveserve.yaml"); err == nil {
		return "liveserve.yaml", nil
	}

	return "", nil
}

// envPattern matches ${VAR} or ${VAR:-default}
var envPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// interpolateEnv replaces ${VAR} references in raw config data.
func interpolateEnv(data []byte, getenv func(string) string) []byte {
	return envPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		parts := envPattern.FindSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		value := getenv(string(parts[1]))
		if value == "" && len(parts) >= 3 && len(parts[2]) > 0 {
			value = string(parts[2])
		}

		return []byte(value)
	})
}

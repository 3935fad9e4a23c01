package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/liveserve/liveserve/server"
	"github.com/liveserve/liveserve/server/config"
)

// Version is set at build time via -ldflags
var Version = "0.1.0-dev"

func main() {
	ctx := context.Background()
	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr, os.Getenv); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// run is the main entry point, designed for testability (Mat Ryer pattern)
func run(ctx context.Context, args []string, stdout, stderr io.Writer, getenv func(string) string) error {
	flags := flag.NewFlagSet("liveserve", flag.ContinueOnError)
	flags.SetOutput(io.Discard) // Suppress default -h output

	var (
		configPath  = flags.String("config", "", "Path to config file")
		port        = flags.Int("port", 0, "Override listen port")
		quietMode   = flags.Bool("quiet", false, "Suppress request logs (sets log level to error)")
		noLive      = flags.Bool("no-live", false, "Disable live reload")
		showVersion = flags.Bool("version", false, "Show version")
		showHelp    = flags.Bool("help", false, "Show help")
	)

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			printUsage(stdout)
			return nil
		}
		printUsage(stderr)
		return err
	}

	if *showVersion {
		fmt.Fprintf(stdout, "liveserve %s\n", Version)
		return nil
	}
	if *showHelp {
		printUsage(stdout)
		return nil
	}

	cfg, err := config.Load(*configPath, getenv)
	if err != nil {
		return err
	}

	// A positional path serves that directory, or that file as the index
	if flags.NArg() > 0 {
		if err := applyTarget(cfg, flags.Arg(0)); err != nil {
			return err
		}
	}
	if *port != 0 {
		cfg.Port = *port
	}
	if *quietMode {
		cfg.Logging.Level = "error"
	}
	if *noLive {
		cfg.Live.Enabled = false
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	registry := server.NewRegistry(stdout, stderr)
	if _, err := registry.Start(cfg); err != nil {
		return err
	}
	defer registry.StopAll()

	// Serve until interrupted
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	fmt.Fprintf(stdout, "\nShutting down...\n")
	return nil
}

// applyTarget points the config at a positional path: a directory becomes
// the serve root, a file becomes the index served for "/" with its parent
// directory as the root.
func applyTarget(cfg *config.Config, target string) error {
	info, err := os.Stat(target)
	if err != nil {
		return fmt.Errorf("cannot serve %s: %w", target, err)
	}
	if info.IsDir() {
		cfg.Root = target
		cfg.File = ""
		return nil
	}
	cfg.Root = filepath.Dir(target)
	cfg.File = target
	return nil
}

func printUsage(w io.Writer) {
	fmt.Fprintf(w, `liveserve - local static server with live reload

Usage:
  liveserve [flags] [path]

The optional path is a directory to serve, or a single file to serve as the
index page. Defaults to the configured root (or the current directory).

Flags:
  -config string   Path to config file (default: ./liveserve.yaml)
  -port int        Override listen port
  -quiet           Suppress request logs
  -no-live         Disable live reload
  -version         Show version
  -help            Show help
`)
}

// Memkb: Knowledge Base MCP Server
//
// An MCP server that gives AI coding tools persistent, semantically
// searchable memory: free-form memories, validated coding rules, and
// plans with checklists, backed by a mem0-style store.
//
// Usage:
//
//	memkb serve           # Start MCP server (stdio transport)
//	memkb serve --http    # Start HTTP server (SSE transport + debug surface)
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/memkb/memkb/internal/config"
	kbserver "github.com/memkb/memkb/internal/server"
	"github.com/memkb/memkb/internal/updater"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		httpMode := len(os.Args) > 2 && os.Args[2] == "--http"
		if err := run(httpMode); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "update":
		runUpdate()
	case "--help", "-h", "help":
		printUsage()
		os.Exit(0)
	case "--version", "-v", "version":
		fmt.Printf("memkb v%s\n", kbserver.Version)
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func run(httpMode bool) error {
	cfg := config.Load()

	log, err := newLogger()
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}

	s, cleanup, err := kbserver.New(cfg, log)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	defer cleanup()

	// Background version check — prints to stderr so it doesn't
	// interfere with MCP's stdio transport on stdout.
	go checkForUpdates()

	if !httpMode {
		// stdio transport: the server runs until the client closes the
		// pipe, no listener to shut down.
		return s.ServeStdio()
	}

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.HTTPHandler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown on interrupt.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-sigCh:
		log.Info("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	}
}

// checkForUpdates runs a non-blocking version check and prints a notice
// to stderr if an update is available. Best-effort: network failures are
// silently ignored.
func checkForUpdates() {
	result := updater.CheckVersion(kbserver.Version)
	if result.UpdateAvailable {
		fmt.Fprintf(os.Stderr,
			"\nUpdate available: v%s -> v%s\n  Run: memkb update\n  Release: %s\n\n",
			result.CurrentVersion, result.LatestVersion, result.ReleaseURL,
		)
	}
}

// runUpdate performs a self-update to the latest release.
func runUpdate() {
	fmt.Fprintln(os.Stderr, "Checking for updates...")

	result := updater.CheckVersion(kbserver.Version)
	if !result.UpdateAvailable {
		fmt.Fprintf(os.Stderr, "Already at the latest version (v%s)\n", result.CurrentVersion)
		return
	}

	fmt.Fprintf(os.Stderr, "New version available: v%s -> v%s\nDownloading...\n",
		result.CurrentVersion, result.LatestVersion)

	if err := updater.SelfUpdate(kbserver.Version); err != nil {
		fmt.Fprintf(os.Stderr, "Update failed: %v\n", err)
		fmt.Fprintf(os.Stderr, "You can download manually from:\n  %s\n", result.ReleaseURL)
		os.Exit(1)
	}

	fmt.Fprintf(os.Stderr, "Updated to v%s. Restart memkb to use the new version.\n", result.LatestVersion)
}

// newLogger builds the production logger, writing to stderr only: in
// stdio mode stdout belongs to the MCP transport.
func newLogger() (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	zcfg.OutputPaths = []string{"stderr"}
	zcfg.ErrorOutputPaths = []string{"stderr"}
	return zcfg.Build()
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Memkb v%s — Knowledge Base MCP Server

Usage:
  memkb serve           Start the MCP server (stdio transport)
  memkb serve --http    Start the HTTP server (SSE transport on /mcp)
  memkb update          Update to the latest release

Configuration (environment):
  MEM0_BASE_URL      Upstream memory store (default http://127.0.0.1:8888)
  DEFAULT_USER_ID    Fallback user id (default: $USERNAME, $USER, "default")
  HOST, PORT         HTTP bind address (default 127.0.0.1:8050)
  LLM_PROVIDER       ollama or openai (default ollama)
  LLM_MODEL          Extraction model (default llama3.1:8b)

MCP client config:

  {
    "mcpServers": {
      "memkb": {
        "command": "memkb",
        "args": ["serve"]
      }
    }
  }
`, kbserver.Version)
}

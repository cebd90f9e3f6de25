package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/roasbeef/skillet/internal/build"
	"github.com/roasbeef/skillet/internal/db"
	"github.com/roasbeef/skillet/internal/mcp"
	"github.com/roasbeef/skillet/internal/sandbox"
	"github.com/roasbeef/skillet/internal/skills"
	"github.com/roasbeef/skillet/internal/subproc"
)

func main() {
	// Untrusted invocations re-exec this same binary as the hidden
	// sandbox child, so the child mode must be dispatched before any
	// daemon flag parsing or database access.
	if subproc.IsChildInvocation(os.Args) {
		if _, err := build.SetupLoggers(build.LogConfig{
			DebugLevel: "info",
		}); err != nil {
			log.Fatalf("Failed to set up logging: %v", err)
		}
		if err := subproc.RunChild(
			context.Background(), os.Stdin, os.Stdout,
		); err != nil {
			log.Fatalf("Sandbox child failed: %v", err)
		}

		return
	}

	var (
		dbPath     = flag.String("db", "", "Path to SQLite database (default: ~/.skillet/skillet.db)")
		logDir     = flag.String("logdir", "", "Directory for the rotating log file (default: alongside the database)")
		debugLevel = flag.String("debuglevel", "info", "Log level: trace, debug, info, warn, error")
	)
	flag.Parse()

	path := *dbPath
	if path == "" {
		var err error
		path, err = db.DefaultDBPath()
		if err != nil {
			log.Fatalf("Failed to resolve database path: %v", err)
		}
	}

	// Console logging would corrupt the MCP stdio framing, so the daemon
	// logs to the rotating file only.
	dir := *logDir
	if dir == "" {
		dir = filepath.Join(filepath.Dir(path), "logs")
	}
	logSetup, err := build.SetupLoggers(build.LogConfig{
		LogDir:     dir,
		DebugLevel: *debugLevel,
		Quiet:      true,
	})
	if err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}
	defer logSetup.Close()

	// Open the database with migrations.
	store, err := db.Open(path)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer store.Close()

	svc := skills.NewService(store, sandbox.DefaultHostServices())
	server := mcp.NewServer(svc)

	// Set up signal handling for graceful shutdown.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		logSetup.Root.Info("Shutting down")
		cancel()
	}()

	logSetup.Root.Infof("Starting skilletd MCP server, version %s",
		build.Version())
	if err := server.Run(ctx, &sdkmcp.StdioTransport{}); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

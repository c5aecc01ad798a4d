// Package cmd provides the CLI commands for Tessera.
//
// Commands:
//   - serve: HTTP API server exposing chat, resources, and search
//   - ingest: add a document to a tenant's knowledge base
//   - ask: run a single chat turn from the terminal
//
// All commands handle SIGINT/SIGTERM via context cancellation.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/tessera-ai/tessera/internal/log"
)

// Execute is the main entry point for the Tessera CLI.
func Execute() error {
	logger := log.New(log.Config{
		Level: logLevel(),
		JSON:  os.Getenv("TESSERA_LOG_JSON") != "",
	})

	if len(os.Args) < 2 {
		runHelp()
		return nil
	}

	switch os.Args[1] {
	case "serve":
		return runServe(logger)
	case "ingest":
		return runIngest(logger)
	case "ask":
		return runAsk(logger)
	case "version", "--version", "-v":
		runVersion()
		return nil
	case "help", "--help", "-h":
		runHelp()
		return nil
	default:
		return fmt.Errorf("unknown command: %s", os.Args[1])
	}
}

func logLevel() slog.Level {
	if os.Getenv("DEBUG") != "" {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

// runHelp displays the help message.
func runHelp() {
	fmt.Println("Tessera - tenant-scoped knowledge base with retrieval-augmented chat")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  tessera serve [addr]                   Start HTTP API server (default: 127.0.0.1:3500)")
	fmt.Println("  tessera ingest <tenant> [category]     Ingest stdin into a tenant's knowledge base")
	fmt.Println("  tessera ask <tenant> <message>         Run one chat turn")
	fmt.Println("  tessera version                        Show version information")
	fmt.Println("  tessera help                           Show this help")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  GEMINI_API_KEY     Gemini API key (googleai provider)")
	fmt.Println("  OPENAI_API_KEY     OpenAI API key (openai provider)")
	fmt.Println("  DATABASE_URL       PostgreSQL connection URL")
	fmt.Println("  DEBUG              Enable debug logging")
	fmt.Println()
	fmt.Println("Configuration file: ~/.tessera/config.yaml (TESSERA_* env vars override)")
}

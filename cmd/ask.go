package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/tessera-ai/tessera/internal/app"
	"github.com/tessera-ai/tessera/internal/config"
	"github.com/tessera-ai/tessera/internal/log"
)

// runAsk runs one chat turn from the terminal.
// Usage: tessera ask <tenant> <message...>
func runAsk(logger log.Logger) error {
	if len(os.Args) < 4 {
		return fmt.Errorf("usage: tessera ask <tenant> <message>")
	}
	tenantID := os.Args[2]
	message := strings.Join(os.Args[3:], " ")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	reply, err := a.Agent.Converse(ctx, tenantID, "", message, nil)
	if err != nil {
		// The agent supplies a graceful message even on failure.
		if reply != "" {
			fmt.Println(reply)
		}
		return fmt.Errorf("chat turn failed: %w", err)
	}

	fmt.Println(reply)
	return nil
}

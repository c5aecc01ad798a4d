package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/tessera-ai/tessera/internal/app"
	"github.com/tessera-ai/tessera/internal/config"
	"github.com/tessera-ai/tessera/internal/log"
)

// runIngest reads content from stdin and ingests it for a tenant.
// Usage: tessera ingest <tenant> [category]
func runIngest(logger log.Logger) error {
	if len(os.Args) < 3 {
		return fmt.Errorf("usage: tessera ingest <tenant> [category] < content.txt")
	}
	tenantID := os.Args[2]
	category := ""
	if len(os.Args) > 3 {
		category = os.Args[3]
	}

	content, err := io.ReadAll(os.Stdin)
	if err != nil {
		return fmt.Errorf("reading stdin: %w", err)
	}

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

	res, err := a.Engine.Ingest(ctx, tenantID, string(content), category)
	if err != nil {
		return fmt.Errorf("ingesting content: %w", err)
	}

	fmt.Printf("Ingested resource %s (tenant %s, category %s)\n", res.ID, res.TenantID, res.Category)
	return nil
}

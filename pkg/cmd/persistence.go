package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/stepflow/pkg/persistence"
	"github.com/dukex/stepflow/pkg/persistence/file"
	"github.com/dukex/stepflow/pkg/persistence/postgresql"
)

// NewPersistence opens the store named by databaseURL. "file://dir" (or a
// bare path) selects the JSON file store; postgres:// and postgresql:// select
// PostgreSQL.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) persistence.Persistence {
	provider, rest := parsePersistenceProvider(databaseURL)

	switch provider {
	case "postgres", "postgresql":
		p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			panic(fmt.Errorf("failed to open postgres persistence: %w", err))
		}

		return p
	default:
		return file.NewPersistence(rest)
	}
}

func parsePersistenceProvider(databaseURL string) (string, string) {
	provider, rest, found := strings.Cut(databaseURL, "://")
	if !found {
		return "file", databaseURL
	}

	return provider, rest
}

package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/dukex/stepflow/pkg/scheduler"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// NewLocker returns a Redis backed occurrence lock when redisURL is set and
// the no-op lock otherwise.
func NewLocker(ctx context.Context, logger *slog.Logger, redisURL string) (scheduler.Locker, io.Closer) {
	if redisURL == "" {
		logger.InfoContext(ctx, "No Redis URL configured, schedule claims rely on the store only")

		return scheduler.NoopLocker{}, nopCloser{}
	}

	locker, client, err := scheduler.NewRedisLockerFromURL(ctx, redisURL)
	if err != nil {
		panic(fmt.Errorf("failed to connect to redis: %w", err))
	}

	return locker, client
}

package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
)

// Connect calls fn until it succeeds, attempts are used up or ctx ends,
// sleeping per b between failures. A nil b uses exponential backoff.
func Connect(ctx context.Context, name string, attempts int, b backoff.BackOff, logger *zap.Logger, fn func() error) error {
	if b == nil {
		b = backoff.NewExponentialBackOff()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	b.Reset()

	var err error
	for i := 1; i <= attempts; i++ {
		if err = fn(); err == nil {
			if i > 1 {
				logger.Info("connected after retry", zap.String("target", name), zap.Int("attempt", i))
			}
			return nil
		}
		if i == attempts {
			break
		}
		sleep := b.NextBackOff()
		if sleep == backoff.Stop {
			break
		}
		logger.Warn("connection attempt failed",
			zap.String("target", name),
			zap.Int("attempt", i),
			zap.Int("attempts", attempts),
			zap.Duration("retry_in", sleep),
			zap.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
		}
	}
	return fmt.Errorf("failed to connect to %s after %d attempts: %w", name, attempts, err)
}

package engine

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/aristath/cadence/internal/logging"
	"github.com/aristath/cadence/internal/persistence"
)

// StoreRetry configures how long opening the journal database is retried
// while another process holds it.
var StoreRetry = struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsedTime  time.Duration
}{
	InitialInterval: 50 * time.Millisecond,
	MaxInterval:     time.Second,
	MaxElapsedTime:  5 * time.Second,
}

// openStore opens the journal database with exponential backoff.
func openStore(ctx context.Context, path string, log *logging.Logger) (*persistence.SQLiteStore, error) {
	var store *persistence.SQLiteStore

	operation := func() error {
		// Check context first - fail fast if cancelled
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		s, err := persistence.NewSQLiteStore(ctx, path)
		if err != nil {
			return err
		}
		store = s
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = StoreRetry.InitialInterval
	policy.MaxInterval = StoreRetry.MaxInterval
	policy.MaxElapsedTime = StoreRetry.MaxElapsedTime

	notify := func(err error, wait time.Duration) {
		log.Warnf("opening journal %s failed, retrying in %s: %v", path, wait, err)
	}

	if err := backoff.RetryNotify(operation, backoff.WithContext(policy, ctx), notify); err != nil {
		return nil, err
	}
	return store, nil
}

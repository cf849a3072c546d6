package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/srgjo27/ticket_reservation/internal/platform/config"
)

const retryDelay = 2 * time.Second

// NewPostgresDB opens the pool and retries the first ping while the
// database container is still starting.
func NewPostgresDB(ctx context.Context, cfg config.DBConfig, log *zap.Logger) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, errors.Wrap(err, "open postgres")
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLife)

	maxRetries := max(cfg.ConnectRetries, 1)
	for i := 1; i <= maxRetries; i++ {
		log.Info("connecting to database", zap.Int("attempt", i), zap.Int("max_attempts", maxRetries))

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = db.PingContext(pingCtx)
		cancel()
		if err == nil {
			log.Info("database connected")
			return db, nil
		}

		log.Warn("database not ready yet", zap.Error(err), zap.Duration("retry_in", retryDelay))
		select {
		case <-ctx.Done():
			_ = db.Close()
			return nil, ctx.Err()
		case <-time.After(retryDelay):
		}
	}

	_ = db.Close()
	return nil, errors.Wrapf(err, "connect to database after %d attempts", maxRetries)
}

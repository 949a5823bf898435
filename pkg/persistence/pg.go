package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cognitodev/launchpad/pkg/logger"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

type PostgresOpts struct {
	URI string
	// MaxConns defaults to 30
	MaxConns int32
}

var (
	connStr string
	pool    *pgxpool.Pool
)

func InitPostgres(ctx context.Context, opts PostgresOpts) error {
	if opts.URI == "" {
		return errors.New("Postgres URI is required")
	}

	conn, err := pgx.Connect(ctx, opts.URI)
	if err != nil {
		return fmt.Errorf("failed to connect to Postgres: %w", err)
	}
	defer conn.Close(ctx)
	connStr = opts.URI

	poolConfig, err := pgxpool.ParseConfig(opts.URI)
	if err != nil {
		return fmt.Errorf("failed to parse Postgres URI: %w", err)
	}

	poolConfig.MaxConns = 30
	if opts.MaxConns > 0 {
		poolConfig.MaxConns = opts.MaxConns
	}
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 15 * time.Minute
	poolConfig.HealthCheckPeriod = 1 * time.Minute

	logger.Info("Initializing database connection pool",
		zap.Int32("MaxConns", poolConfig.MaxConns),
		zap.Duration("MaxConnLifetime", poolConfig.MaxConnLifetime),
		zap.Duration("MaxConnIdleTime", poolConfig.MaxConnIdleTime))

	pool, err = pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return fmt.Errorf("failed to create Postgres pool: %w", err)
	}

	go monitorPoolHealth(ctx, pool)

	return nil
}

func IsInitialized() bool {
	return pool != nil
}

func ClosePostgres() {
	if pool != nil {
		pool.Close()
		pool = nil
	}
}

// MustGetUnpooledPostgresSession opens a dedicated connection, used for LISTEN.
func MustGetUnpooledPostgresSession(ctx context.Context) *pgx.Conn {
	if connStr == "" {
		panic("Postgres is not initialized")
	}

	conn, err := pgx.Connect(ctx, connStr)
	if err != nil {
		panic("failed to connect to Postgres: " + err.Error())
	}

	return conn
}

func MustGetPooledPostgresSession() *pgxpool.Conn {
	if pool == nil {
		logger.Error(fmt.Errorf("Postgres pool is not initialized"))
		panic("Postgres pool is not initialized")
	}

	stats := pool.Stat()
	if stats.AcquiredConns() >= stats.MaxConns() {
		logger.Warn("WARNING: Connection pool saturated",
			zap.Int32("AcquiredConns", stats.AcquiredConns()),
			zap.Int32("MaxConns", stats.MaxConns()))
	}

	startTime := time.Now()

	var conn *pgxpool.Conn
	var err error
	for attempt := 1; attempt <= 3; attempt++ {
		timeout := time.Duration(attempt) * 5 * time.Second
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		conn, err = pool.Acquire(ctx)
		cancel()

		if err == nil {
			if duration := time.Since(startTime); duration > 100*time.Millisecond {
				logger.Debug("Slow DB connection acquisition",
					zap.String("duration", duration.String()),
					zap.Int("attempt", attempt))
			}
			return conn
		}

		logger.Warn("Failed to acquire DB connection",
			zap.Int("attempt", attempt),
			zap.Int("maxAttempts", 3),
			zap.Error(err))

		time.Sleep(time.Duration(attempt*100) * time.Millisecond)
	}

	logger.Error(fmt.Errorf("failed to acquire from Postgres pool after 3 attempts: %w", err))
	panic("failed to acquire from Postgres pool: " + err.Error())
}

// monitorPoolHealth logs pool usage and runs a test query every 30 seconds until ctx is done.
func monitorPoolHealth(ctx context.Context, p *pgxpool.Pool) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		stats := p.Stat()
		if stats.AcquiredConns() > stats.MaxConns()*80/100 {
			logger.Warn("DB Pool nearing saturation",
				zap.Int32("AcquiredConns", stats.AcquiredConns()),
				zap.Int32("MaxConns", stats.MaxConns()))
		}

		checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		var result int
		err := p.QueryRow(checkCtx, "SELECT 1").Scan(&result)
		cancel()
		if err != nil {
			logger.Error(fmt.Errorf("health check query failed: %w", err))
		}
	}
}

// Ping runs a trivial query on a pooled connection.
func Ping(ctx context.Context) error {
	if pool == nil {
		return errors.New("Postgres pool is not initialized")
	}

	var one int
	if err := pool.QueryRow(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	return nil
}

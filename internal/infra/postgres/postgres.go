package postgres

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/hoplink/hoplink/config"
	"github.com/jackc/pgx/v5/pgxpool"
)

const dialTimeout = 5 * time.Second

// NewPool opens the pgx pool used by the reconciliation aggregates. The
// windowed COUNT queries bypass GORM, so they get their own pool with
// explicitly tunable sizing.
func NewPool(ctx context.Context, cfg config.PostgresConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(ConnString(cfg))
	if err != nil {
		return nil, fmt.Errorf("postgres: parse pool config: %w", err)
	}

	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	applyDuration(&poolCfg.MaxConnLifetime, cfg.MaxConnLifetime)
	applyDuration(&poolCfg.MaxConnIdleTime, cfg.MaxConnIdleTime)
	applyDuration(&poolCfg.HealthCheckPeriod, cfg.HealthCheckPeriod)

	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(dialCtx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: create pool: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, dialTimeout)
	defer pingCancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return pool, nil
}

// applyDuration parses a duration string into dst; invalid or empty
// strings keep pgx's default.
func applyDuration(dst *time.Duration, value string) {
	if value == "" {
		return
	}
	if d, err := time.ParseDuration(value); err == nil {
		*dst = d
	}
}

// ConnString assembles the postgres:// URL shared by GORM and pgx.
func ConnString(cfg config.PostgresConfig) string {
	host := cfg.Host
	if host == "" {
		host = "localhost"
	}
	port := cfg.Port
	if port == 0 {
		port = 5432
	}
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	credentials := url.PathEscape(cfg.User)
	if cfg.Password != "" {
		credentials += ":" + url.PathEscape(cfg.Password)
	}

	return fmt.Sprintf("postgres://%s@%s:%d/%s?sslmode=%s",
		credentials, host, port, url.PathEscape(cfg.Database), sslMode)
}

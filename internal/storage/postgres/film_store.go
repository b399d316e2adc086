// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lmvianna/oscar-crawler/internal/crawler"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// FilmStoreConfig controls the Postgres connection pool used for the
// film archive.
type FilmStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// FilmStore archives the films of completed jobs into Postgres.
type FilmStore struct {
	pool  execCloser
	table string
}

// NewFilmStore creates a Postgres-backed FilmStore using the provided config.
func NewFilmStore(ctx context.Context, cfg FilmStoreConfig) (*FilmStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	table := cfg.Table
	if table == "" {
		table = "films"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &FilmStore{
		pool:  pool,
		table: table,
	}, nil
}

// NewFilmStoreWithPool constructs a store from an existing pool
// (primarily for testing).
func NewFilmStoreWithPool(pool execCloser, table string) (*FilmStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "films"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &FilmStore{pool: pool, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *FilmStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// StoreFilms inserts one row per film for the given job.
func (s *FilmStore) StoreFilms(ctx context.Context, jobID string, films []crawler.Film) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("film store is not configured")
	}
	if jobID == "" {
		return fmt.Errorf("job id is required")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	job_id,
	title,
	year,
	nominations,
	awards,
	best_picture
) VALUES (
	$1,$2,$3,$4,$5,$6
)`, s.table)

	for _, film := range films {
		args := []any{
			jobID,
			film.Title,
			film.Year,
			film.Nominations,
			film.Awards,
			film.BestPicture,
		}
		if _, err := s.pool.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("insert film %q: %w", film.Title, err)
		}
	}
	return nil
}

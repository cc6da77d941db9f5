// Package pgstore backs density splits with a PostGIS database reached
// through a pgx connection pool.
package pgstore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
	"github.com/zhchang/tasksplit/density"
)

const batchSize = 500

type Store struct {
	pool *pgxpool.Pool
}

type Option func(*pgxpool.Config)

func WithMaxConns(n int32) Option {
	return func(c *pgxpool.Config) {
		if n > 0 {
			c.MaxConns = n
		}
	}
}

// New opens a pool to url and makes sure PostGIS is usable.
func New(ctx context.Context, url string, options ...Option) (*Store, error) {
	var err error
	var cfg *pgxpool.Config
	if cfg, err = pgxpool.ParseConfig(url); err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	for _, option := range options {
		option(cfg)
	}
	var pool *pgxpool.Pool
	if pool, err = pgxpool.NewWithConfig(ctx, cfg); err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	var version string
	if err = pool.QueryRow(ctx, "SELECT postgis_version()").Scan(&version); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgis unavailable: %w", err)
	}
	logrus.Infof("connected to %s:%d, postgis %s", cfg.ConnConfig.Host, cfg.ConnConfig.Port, version)
	return &Store{pool: pool}, nil
}

// FromPool wraps an existing pool.
func FromPool(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Acquire(ctx context.Context) (density.Session, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return &session{conn: conn}, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Close() {
	s.pool.Close()
}

type session struct {
	conn *pgxpool.Conn
}

func (s *session) Exec(ctx context.Context, sql string, args ...any) error {
	_, err := s.conn.Exec(ctx, sql, args...)
	return err
}

func (s *session) Insert(ctx context.Context, table string, rows []density.Row) error {
	stmt := fmt.Sprintf(
		"INSERT INTO %s (osm_id, geom, tags) VALUES ($1, ST_SetSRID(ST_GeomFromWKB($2), 4326), $3)",
		pgx.Identifier{table}.Sanitize())
	for start := 0; start < len(rows); start += batchSize {
		end := min(start+batchSize, len(rows))
		batch := &pgx.Batch{}
		for _, r := range rows[start:end] {
			var tags any
			if r.Tags != nil {
				tags = r.Tags
			}
			batch.Queue(stmt, r.OsmID, r.Geometry.AsBinary(), tags)
		}
		if err := s.conn.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert into %s: %w", table, err)
		}
	}
	return nil
}

func (s *session) QueryJSON(ctx context.Context, sql string, args map[string]any) ([]byte, error) {
	var raw []byte
	if err := s.conn.QueryRow(ctx, sql, pgx.NamedArgs(args)).Scan(&raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func (s *session) Release() {
	s.conn.Release()
}

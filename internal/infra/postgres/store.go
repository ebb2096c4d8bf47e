// Package postgres persists tracker records in a Postgres table with the
// report body kept as jsonb.
package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"smart-tracker/internal/domain"
	"smart-tracker/internal/infra/retry"
)

type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	MaxConns int
}

func (c Config) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password),
		Host:   fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:   "/" + c.Database,
	}
	if c.MaxConns > 0 {
		u.RawQuery = fmt.Sprintf("pool_max_conns=%d", c.MaxConns)
	}
	return u.String()
}

const schema = `
CREATE TABLE IF NOT EXISTS tracker_records (
	id          uuid PRIMARY KEY,
	device_id   text        NOT NULL,
	received_at timestamptz NOT NULL,
	body        jsonb       NOT NULL
);
CREATE INDEX IF NOT EXISTS tracker_records_received_at_idx ON tracker_records (received_at);
`

type RecordStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// Open connects with retries and makes sure the records table exists.
func Open(ctx context.Context, dsn string, logger *slog.Logger) (*RecordStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("creating db pool: %w", err)
	}

	err = retry.Do(ctx, retry.DefaultPolicy(), func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging db: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("record store ready", "backend", "postgres")
	return &RecordStore{pool: pool, logger: logger}, nil
}

func (s *RecordStore) Close() {
	s.pool.Close()
}

func (s *RecordStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *RecordStore) Append(ctx context.Context, rec domain.Record) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO tracker_records (id, device_id, received_at, body) VALUES ($1, $2, $3, $4)`,
		rec.ID,
		rec.DeviceID,
		rec.ReceivedAt,
		rec.Body,
	)
	if err != nil {
		return fmt.Errorf("inserting record for %s: %w", rec.DeviceID, err)
	}
	return nil
}

func (s *RecordStore) List(ctx context.Context) ([]domain.Record, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id::text, device_id, received_at, body FROM tracker_records ORDER BY received_at, id`)
	if err != nil {
		return nil, fmt.Errorf("querying records: %w", err)
	}
	defer rows.Close()

	records := []domain.Record{}
	for rows.Next() {
		var rec domain.Record
		if err := rows.Scan(&rec.ID, &rec.DeviceID, &rec.ReceivedAt, &rec.Body); err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading records: %w", err)
	}

	return records, nil
}

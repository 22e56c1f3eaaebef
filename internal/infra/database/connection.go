package database

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/lib/pq"
)

// NewDBConnection opens the pool and pings it before handing it out.
func NewDBConnection(connString string) (*sql.DB, error) {
	db, err := sql.Open("postgres", connString)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS lead_events (
	id          BIGSERIAL PRIMARY KEY,
	created_at  TIMESTAMPTZ NOT NULL,
	request_id  TEXT NOT NULL DEFAULT '',
	channel     TEXT NOT NULL DEFAULT '',
	status      INTEGER NOT NULL,
	error       TEXT NOT NULL DEFAULT '',
	fields      JSONB NOT NULL
);

CREATE TABLE IF NOT EXISTS failed_leads (
	id            BIGSERIAL PRIMARY KEY,
	created_at    TIMESTAMPTZ NOT NULL,
	request_id    TEXT NOT NULL DEFAULT '',
	channel       TEXT NOT NULL DEFAULT '',
	error_type    TEXT NOT NULL,
	error         TEXT NOT NULL DEFAULT '',
	status        INTEGER,
	response      TEXT NOT NULL DEFAULT '',
	fields        JSONB NOT NULL,
	sent          BOOLEAN NOT NULL DEFAULT FALSE,
	last_status   INTEGER,
	last_sent_at  TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS failed_leads_error_type_idx ON failed_leads (error_type);
`

// EnsureSchema creates the lead tables when they do not exist yet.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, schema)
	return err
}

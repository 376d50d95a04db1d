package kv

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

// PostgresStore persists the flat key/value keyspace into a single table,
// modeled on kernel/internal/audit/pg_store.go's plain database/sql usage
// (no ORM, explicit SQL, ctx-scoped calls).
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an already-open *sql.DB. Schema is expected to be
// migrated out of band:
//
//	CREATE TABLE IF NOT EXISTS ledger_kv (
//	  key   TEXT PRIMARY KEY,
//	  value BYTEA NOT NULL
//	);
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Open opens a Postgres connection pool from a DSN, grounded on the same
// database/sql + lib/pq pairing the teacher uses throughout kernel.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return db, nil
}

func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *PostgresStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	q := `SELECT value FROM ledger_kv WHERE key = $1`
	err := p.db.QueryRowContext(ctx, q, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select ledger_kv: %w", err)
	}
	return value, nil
}

func (p *PostgresStore) Put(ctx context.Context, key string, value []byte) error {
	q := `
		INSERT INTO ledger_kv (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value
	`
	if _, err := p.db.ExecContext(ctx, q, key, value); err != nil {
		return fmt.Errorf("upsert ledger_kv: %w", err)
	}
	return nil
}

func (p *PostgresStore) PutIfAbsent(ctx context.Context, key string, value []byte) (bool, error) {
	q := `
		INSERT INTO ledger_kv (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO NOTHING
	`
	res, err := p.db.ExecContext(ctx, q, key, value)
	if err != nil {
		return false, fmt.Errorf("insert-if-absent ledger_kv: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

func (p *PostgresStore) Delete(ctx context.Context, key string) error {
	q := `DELETE FROM ledger_kv WHERE key = $1`
	if _, err := p.db.ExecContext(ctx, q, key); err != nil {
		return fmt.Errorf("delete ledger_kv: %w", err)
	}
	return nil
}

func (p *PostgresStore) Scan(ctx context.Context, prefix string, limit int) ([]string, error) {
	q := `SELECT key FROM ledger_kv WHERE key LIKE $1 ORDER BY key`
	if limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := p.db.QueryContext(ctx, q, prefix+"%")
	if err != nil {
		return nil, fmt.Errorf("scan ledger_kv: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows err: %w", err)
	}
	return keys, nil
}

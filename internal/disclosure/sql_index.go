package disclosure

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// maxRetainedIndexes is the number of newest index_key snapshots the SQL
// index keeps; older ones are pruned after each build.
const maxRetainedIndexes = 5

// SQLIndex persists built disclosure-graph snapshots across three tables
// (meta, docs, tokens) keyed by index_key, following
// reasoning-graph/internal/store/store.go's PGStore shape: explicit
// QueryRowContext/QueryContext + Scan, sql.NullString for optional columns,
// no ORM.
type SQLIndex struct {
	db *sql.DB
}

// NewSQLIndex constructs a SQLIndex over an already-open *sql.DB. Callers
// are expected to have run the accompanying schema migration (see
// EnsureSchema) before first use.
func NewSQLIndex(db *sql.DB) *SQLIndex {
	return &SQLIndex{db: db}
}

// EnsureSchema creates the three backing tables if they don't already exist.
func (s *SQLIndex) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS disclosure_index_meta (
			index_key TEXT PRIMARY KEY,
			built_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS disclosure_index_docs (
			index_key TEXT NOT NULL,
			doc_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			title TEXT NOT NULL,
			subtitle TEXT,
			detail TEXT,
			search_text TEXT,
			PRIMARY KEY (index_key, doc_id)
		)`,
		`CREATE TABLE IF NOT EXISTS disclosure_index_tokens (
			index_key TEXT NOT NULL,
			token TEXT NOT NULL,
			doc_id TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS disclosure_index_tokens_lookup
			ON disclosure_index_tokens (index_key, token)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure disclosure index schema: %w", err)
		}
	}
	return nil
}

// Put persists a freshly built index under indexKey, replacing any existing
// rows for that key, then prunes down to the maxRetainedIndexes newest keys.
func (s *SQLIndex) Put(ctx context.Context, indexKey string, docs []SearchDocument, idx *Index) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin index write: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM disclosure_index_docs WHERE index_key = $1`, indexKey); err != nil {
		return fmt.Errorf("clear old docs: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM disclosure_index_tokens WHERE index_key = $1`, indexKey); err != nil {
		return fmt.Errorf("clear old tokens: %w", err)
	}

	for _, d := range docs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO disclosure_index_docs (index_key, doc_id, kind, title, subtitle, detail, search_text)
			 VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			indexKey, d.ID, d.Kind, d.Title, nullableString(d.Subtitle), nullableString(d.Detail), nullableString(d.SearchText),
		); err != nil {
			return fmt.Errorf("insert doc %s: %w", d.ID, err)
		}
	}

	for token, postings := range idx.postings {
		for docID := range postings {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO disclosure_index_tokens (index_key, token, doc_id) VALUES ($1,$2,$3)`,
				indexKey, token, docID,
			); err != nil {
				return fmt.Errorf("insert token %s: %w", token, err)
			}
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO disclosure_index_meta (index_key, built_at) VALUES ($1,$2)
		 ON CONFLICT (index_key) DO UPDATE SET built_at = EXCLUDED.built_at`,
		indexKey, time.Now().UTC(),
	); err != nil {
		return fmt.Errorf("write index meta: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit index write: %w", err)
	}

	return s.pruneOldIndexes(ctx)
}

// pruneOldIndexes deletes every index_key beyond the maxRetainedIndexes most
// recently built.
func (s *SQLIndex) pruneOldIndexes(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT index_key FROM disclosure_index_meta ORDER BY built_at DESC OFFSET $1`, maxRetainedIndexes)
	if err != nil {
		return fmt.Errorf("list stale index keys: %w", err)
	}
	var stale []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			rows.Close()
			return fmt.Errorf("scan stale index key: %w", err)
		}
		stale = append(stale, key)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("stale index rows: %w", err)
	}

	for _, key := range stale {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM disclosure_index_meta WHERE index_key = $1`, key); err != nil {
			return fmt.Errorf("prune meta %s: %w", key, err)
		}
		if _, err := s.db.ExecContext(ctx, `DELETE FROM disclosure_index_docs WHERE index_key = $1`, key); err != nil {
			return fmt.Errorf("prune docs %s: %w", key, err)
		}
		if _, err := s.db.ExecContext(ctx, `DELETE FROM disclosure_index_tokens WHERE index_key = $1`, key); err != nil {
			return fmt.Errorf("prune tokens %s: %w", key, err)
		}
	}
	return nil
}

// Has reports whether indexKey already has a persisted snapshot.
func (s *SQLIndex) Has(ctx context.Context, indexKey string) (bool, error) {
	var builtAt time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT built_at FROM disclosure_index_meta WHERE index_key = $1`, indexKey,
	).Scan(&builtAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check index meta %s: %w", indexKey, err)
	}
	return true, nil
}

// Search loads docs/tokens for indexKey and runs query against them,
// rebuilding an in-memory Index from the persisted rows.
func (s *SQLIndex) Search(ctx context.Context, indexKey, query string) ([]SearchResult, error) {
	idx, err := s.loadIndex(ctx, indexKey)
	if err != nil {
		return nil, err
	}
	return idx.Search(query), nil
}

func (s *SQLIndex) loadIndex(ctx context.Context, indexKey string) (*Index, error) {
	docRows, err := s.db.QueryContext(ctx,
		`SELECT doc_id, kind, title, subtitle, detail, search_text
		 FROM disclosure_index_docs WHERE index_key = $1`, indexKey)
	if err != nil {
		return nil, fmt.Errorf("query docs for %s: %w", indexKey, err)
	}
	defer docRows.Close()

	idx := &Index{docs: make(map[string]SearchDocument), postings: make(map[string]map[string]bool)}
	for docRows.Next() {
		var (
			d                            SearchDocument
			subtitle, detail, searchText sql.NullString
		)
		if err := docRows.Scan(&d.ID, &d.Kind, &d.Title, &subtitle, &detail, &searchText); err != nil {
			return nil, fmt.Errorf("scan doc row: %w", err)
		}
		d.Subtitle = subtitle.String
		d.Detail = detail.String
		d.SearchText = searchText.String
		idx.docs[d.ID] = d
	}
	if err := docRows.Err(); err != nil {
		return nil, fmt.Errorf("doc rows: %w", err)
	}

	tokenRows, err := s.db.QueryContext(ctx,
		`SELECT token, doc_id FROM disclosure_index_tokens WHERE index_key = $1`, indexKey)
	if err != nil {
		return nil, fmt.Errorf("query tokens for %s: %w", indexKey, err)
	}
	defer tokenRows.Close()

	for tokenRows.Next() {
		var token, docID string
		if err := tokenRows.Scan(&token, &docID); err != nil {
			return nil, fmt.Errorf("scan token row: %w", err)
		}
		idx.index(token, docID)
	}
	if err := tokenRows.Err(); err != nil {
		return nil, fmt.Errorf("token rows: %w", err)
	}

	return idx, nil
}

func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

package kv

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

func TestPostgresStore_GetFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	defer db.Close()

	store := NewPostgresStore(db)

	rows := sqlmock.NewRows([]string{"value"}).AddRow([]byte("hello"))
	mock.ExpectQuery(`SELECT value FROM ledger_kv WHERE key = \$1`).
		WithArgs("event:1").
		WillReturnRows(rows)

	v, err := store.Get(context.Background(), "event:1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(v) != "hello" {
		t.Fatalf("expected hello, got %q", v)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresStore_GetNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	defer db.Close()

	store := NewPostgresStore(db)

	mock.ExpectQuery(`SELECT value FROM ledger_kv WHERE key = \$1`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err = store.Get(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPostgresStore_PutIfAbsentConflict(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	defer db.Close()

	store := NewPostgresStore(db)

	mock.ExpectExec(`INSERT INTO ledger_kv`).
		WithArgs("k", []byte("a")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := store.PutIfAbsent(context.Background(), "k", []byte("a"))
	if err != nil {
		t.Fatalf("put if absent: %v", err)
	}
	if ok {
		t.Fatalf("expected ok=false on conflict")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

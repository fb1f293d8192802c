package utils

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"sync"
	"testing"
)

// txDriver is a minimal driver recording transaction outcomes.
type txDriver struct {
	mu        sync.Mutex
	commits   int
	rollbacks int
}

type txConn struct{ d *txDriver }
type txTx struct{ d *txDriver }

func (d *txDriver) Open(name string) (driver.Conn, error) { return &txConn{d: d}, nil }

func (c *txConn) Prepare(query string) (driver.Stmt, error) { return nil, errors.New("not supported") }
func (c *txConn) Close() error                              { return nil }
func (c *txConn) Begin() (driver.Tx, error)                 { return &txTx{d: c.d}, nil }

func (t *txTx) Commit() error {
	t.d.mu.Lock()
	defer t.d.mu.Unlock()
	t.d.commits++
	return nil
}

func (t *txTx) Rollback() error {
	t.d.mu.Lock()
	defer t.d.mu.Unlock()
	t.d.rollbacks++
	return nil
}

var testDriver = &txDriver{}

func init() {
	sql.Register("txtest", testDriver)
}

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("txtest", "")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestWithTxCommitsOnSuccess(t *testing.T) {
	db := openTestDB(t)
	before := testDriver.commits

	err := WithTx(context.Background(), db, nil, func(ctx context.Context, tx *sql.Tx) error {
		return nil
	})
	if err != nil {
		t.Fatalf("WithTx: %v", err)
	}
	if testDriver.commits != before+1 {
		t.Fatal("transaction not committed")
	}
}

func TestWithTxRollsBackOnError(t *testing.T) {
	db := openTestDB(t)
	before := testDriver.rollbacks

	boom := errors.New("boom")
	err := WithTx(context.Background(), db, nil, func(ctx context.Context, tx *sql.Tx) error {
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if testDriver.rollbacks != before+1 {
		t.Fatal("transaction not rolled back")
	}
}

func TestWithTxRollsBackOnPanic(t *testing.T) {
	db := openTestDB(t)
	before := testDriver.rollbacks

	func() {
		defer func() {
			if recover() == nil {
				t.Fatal("panic not re-thrown")
			}
		}()
		_ = WithTx(context.Background(), db, nil, func(ctx context.Context, tx *sql.Tx) error {
			panic("kaboom")
		})
	}()

	if testDriver.rollbacks != before+1 {
		t.Fatal("transaction not rolled back after panic")
	}
}

func TestOpenPostgresRejectsEmptyDSN(t *testing.T) {
	if _, err := OpenPostgres(context.Background(), "txtest", "", PostgresPoolConfig{}); err == nil {
		t.Fatal("expected error for empty dsn")
	}
}

package sqlutil

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

type queries struct{ tx *sql.Tx }

func (q *queries) insert(ctx context.Context, v string) error {
	_, err := q.tx.ExecContext(ctx, `INSERT INTO kv (v) VALUES (?)`, v)
	return err
}

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	if _, err := db.Exec(`CREATE TABLE kv (v TEXT NOT NULL)`); err != nil {
		t.Fatal(err)
	}
	return db
}

func count(t *testing.T, db *sql.DB) int {
	t.Helper()
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM kv`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	return n
}

func bind(tx *sql.Tx) *queries { return &queries{tx: tx} }

func TestRunCommitsAndRollsBack(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)

	if err := Run(ctx, db, bind, func(q *queries) error { return q.insert(ctx, "a") }); err != nil {
		t.Fatal(err)
	}
	if got := count(t, db); got != 1 {
		t.Fatalf("after commit count = %d", got)
	}

	boom := errors.New("boom")
	err := Run(ctx, db, bind, func(q *queries) error {
		if err := q.insert(ctx, "b"); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if got := count(t, db); got != 1 {
		t.Fatalf("after rollback count = %d", got)
	}
}

func TestNullConverters(t *testing.T) {
	if ToSqlString("").Valid {
		t.Fatal("empty string should be NULL")
	}
	if got := FromSqlString(ToSqlString("x"), "d"); got != "x" {
		t.Fatalf("got %q", got)
	}
	if got := FromSqlString(sql.NullString{}, "d"); got != "d" {
		t.Fatalf("got %q", got)
	}
	if FromSqlTime(sql.NullTime{}) != nil {
		t.Fatal("invalid time should be nil")
	}
	now := time.Now()
	if got := FromSqlTime(sql.NullTime{Time: now, Valid: true}); got == nil || !got.Equal(now) {
		t.Fatalf("got %v", got)
	}
}

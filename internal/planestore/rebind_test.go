package planestore

import "testing"

func TestRebind(t *testing.T) {
	pg := &Store{dialect: DialectPostgres}
	got := pg.rebind("SELECT a FROM t WHERE x = ? AND y IN (?, ?)")
	want := "SELECT a FROM t WHERE x = $1 AND y IN ($2, $3)"
	if got != want {
		t.Fatalf("rebind = %q, want %q", got, want)
	}

	lite := &Store{dialect: DialectSQLite}
	query := "SELECT a FROM t WHERE x = ?"
	if got := lite.rebind(query); got != query {
		t.Fatalf("sqlite rebind changed query: %q", got)
	}
}

func TestFormatTimeSortsLexically(t *testing.T) {
	a := formatTime(parseTime("2026-01-02T03:04:05.100000000Z"))
	b := formatTime(parseTime("2026-01-02T03:04:05.120000000Z"))
	if !(a < b) {
		t.Fatalf("expected %q < %q", a, b)
	}
}

package store

import "testing"

func TestDialectFor(t *testing.T) {
	tests := map[string]Dialect{
		"postgres://u:p@localhost:5432/grid":   DialectPostgres,
		"postgresql://localhost/grid":          DialectPostgres,
		"file:gridshare.db?_busy_timeout=5000": DialectSQLite,
		":memory:":                             DialectSQLite,
	}
	for url, want := range tests {
		if got := DialectFor(url); got != want {
			t.Errorf("DialectFor(%q) = %s, want %s", url, got, want)
		}
	}
}

func TestRebind(t *testing.T) {
	query := `SELECT data FROM share_records WHERE id = ? AND expires_at > ?`
	if got := DialectSQLite.Rebind(query); got != query {
		t.Fatalf("sqlite rebind should be identity, got %q", got)
	}
	want := `SELECT data FROM share_records WHERE id = $1 AND expires_at > $2`
	if got := DialectPostgres.Rebind(query); got != want {
		t.Fatalf("postgres rebind = %q, want %q", got, want)
	}
}

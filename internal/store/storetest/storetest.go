// Package storetest opens throwaway in-memory SQLite databases with the full
// schema applied.
package storetest

import (
	"database/sql"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/CostinMirescu/sala-alternativa/internal/store"
)

var seq atomic.Int64

// New returns a migrated in-memory database that is closed when the test ends.
func New(t testing.TB) *sql.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	url := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, seq.Add(1))
	db, err := store.NewDB(url)
	if err != nil {
		t.Fatalf("storetest.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db.Client
}

// AddClass inserts a class if missing.
func AddClass(t testing.TB, db *sql.DB, classID string) {
	t.Helper()
	if _, err := db.Exec(`INSERT INTO classes (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`, classID); err != nil {
		t.Fatalf("AddClass: %v", err)
	}
}

// AddCode authorizes a code hash for a class.
func AddCode(t testing.TB, db *sql.DB, classID, codeHash, plain string) {
	t.Helper()
	AddClass(t, db, classID)
	_, err := db.Exec(`INSERT INTO authorized_codes (id, class_id, code_hash, code_plain) VALUES ($1, $2, $3, $4)`,
		fmt.Sprintf("code-%d", seq.Add(1)), classID, codeHash, plain)
	if err != nil {
		t.Fatalf("AddCode: %v", err)
	}
}

// AddSession inserts a session with the given bounds.
func AddSession(t testing.TB, db *sql.DB, id, classID string, start, end time.Time) {
	t.Helper()
	AddClass(t, db, classID)
	_, err := db.Exec(`INSERT INTO sessions (id, class_id, starts_at, ends_at) VALUES ($1, $2, $3, $4)`,
		id, classID, start.UTC(), end.UTC())
	if err != nil {
		t.Fatalf("AddSession: %v", err)
	}
}

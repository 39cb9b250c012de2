package organize

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/jellydator/ttlcache/v3"
	_ "modernc.org/sqlite"
)

const cacheSchemaVersion = 1

const cacheSchema = `
CREATE TABLE IF NOT EXISTS proposals (
    hash       INTEGER PRIMARY KEY,
    name       TEXT NOT NULL,
    created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS meta (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`

const (
	cacheRowTTL    = 30 * 24 * time.Hour
	cacheMemoryTTL = time.Hour
)

// ProposalCache persists provider proposals keyed on a hash of the
// extracted text, so re-runs over a half-processed directory do not
// pay for the same document twice. A small in-memory layer fronts the
// database for the current session.
type ProposalCache struct {
	db  *sql.DB
	mem *ttlcache.Cache[uint64, string]
}

// OpenProposalCache opens (or creates) proposals.db inside dir.
func OpenProposalCache(dir string) (*ProposalCache, error) {
	l := sub("cache")
	dbPath := filepath.Join(dir, "proposals.db")
	l.Info("opening proposal cache", "path", dbPath)

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open proposal cache: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if err := migrateCache(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	cutoff := time.Now().Add(-cacheRowTTL).Unix()
	if res, err := db.Exec("DELETE FROM proposals WHERE created_at < ?", cutoff); err == nil {
		if n, _ := res.RowsAffected(); n > 0 {
			l.Info("purged stale proposals", "count", n)
		}
	}

	mem := ttlcache.New[uint64, string](
		ttlcache.WithTTL[uint64, string](cacheMemoryTTL),
	)
	go mem.Start()

	return &ProposalCache{db: db, mem: mem}, nil
}

func migrateCache(db *sql.DB) error {
	var version int
	err := db.QueryRow("SELECT value FROM meta WHERE key = 'schema_version'").Scan(&version)
	if err != nil {
		// meta table missing or empty: fresh database
		if _, execErr := db.Exec(cacheSchema); execErr != nil {
			return fmt.Errorf("create schema: %w", execErr)
		}
		_, execErr := db.Exec("INSERT INTO meta (key, value) VALUES ('schema_version', ?)", cacheSchemaVersion)
		if execErr != nil {
			return fmt.Errorf("set schema version: %w", execErr)
		}
		sub("cache").Info("schema created", "version", cacheSchemaVersion)
		return nil
	}
	if version != cacheSchemaVersion {
		return fmt.Errorf("unexpected cache schema version %d", version)
	}
	return nil
}

// cacheKey hashes the extracted text together with the provider and
// model, so switching either invalidates the entry.
func cacheKey(provider, model, text string) uint64 {
	return xxhash.Sum64String(provider + "\x00" + model + "\x00" + text)
}

// Get returns a cached proposal, or "" when absent. Nil-safe.
func (c *ProposalCache) Get(key uint64) string {
	if c == nil {
		return ""
	}
	if item := c.mem.Get(key); item != nil {
		return item.Value()
	}
	var name string
	err := c.db.QueryRow("SELECT name FROM proposals WHERE hash = ?", int64(key)).Scan(&name)
	if err != nil {
		return ""
	}
	c.mem.Set(key, name, ttlcache.DefaultTTL)
	return name
}

// Put stores a proposal. Nil-safe; storage failures are logged, never
// surfaced.
func (c *ProposalCache) Put(key uint64, name string) {
	if c == nil || name == "" {
		return
	}
	c.mem.Set(key, name, ttlcache.DefaultTTL)
	_, err := c.db.Exec(
		"INSERT OR REPLACE INTO proposals (hash, name, created_at) VALUES (?, ?, ?)",
		int64(key), name, time.Now().Unix(),
	)
	if err != nil {
		sub("cache").Warn("store proposal", "err", err)
	}
}

// Close stops the memory layer and closes the database. Nil-safe.
func (c *ProposalCache) Close() error {
	if c == nil {
		return nil
	}
	c.mem.Stop()
	return c.db.Close()
}

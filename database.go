package main

import (
	"database/sql"
	"fmt"
	"log"

	_ "modernc.org/sqlite"
)

func openDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// One connection: a single writer, and ":memory:" databases are
	// per-connection.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func initDB(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS storage (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sessions (
		token TEXT PRIMARY KEY,
		created_at DATETIME NOT NULL,
		expires_at DATETIME NOT NULL
	);`

	_, err := db.Exec(schema)
	if err != nil {
		return err
	}

	if err := migrateDB(db); err != nil {
		return err
	}

	return nil
}

// migrateDB upgrades the stored post collection to the current envelope
// version. Blobs that cannot be parsed are left alone so they can be
// recovered by hand.
func migrateDB(db *sql.DB) error {
	raw, ok, err := getItem(db, postsKey)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	coll, err := decodePosts(raw)
	if err != nil {
		log.Printf("WARN: leaving unreadable %q blob in place: %v", postsKey, err)
		return nil
	}
	if coll.Version == postsVersion {
		return nil
	}

	data, err := encodePosts(coll)
	if err != nil {
		return err
	}
	if err := setItem(db, postsKey, data); err != nil {
		return fmt.Errorf("migrating posts: %w", err)
	}

	log.Printf("INFO: migrated %d posts to collection version %d", len(coll.Posts), postsVersion)
	return nil
}

package main

import (
	"database/sql"
	"fmt"
	"strconv"
)

// Keys in the storage table.
const (
	postsKey      = "blogPosts"
	visitCountKey = "visitCount"
)

type querier interface {
	QueryRow(query string, args ...any) *sql.Row
	Exec(query string, args ...any) (sql.Result, error)
}

// getItem returns the value stored under key. A missing key is reported
// with ok == false and no error.
func getItem(q querier, key string) (value string, ok bool, err error) {
	err = q.QueryRow("SELECT value FROM storage WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("getting item %q: %w", key, err)
	}
	return value, true, nil
}

func setItem(q querier, key, value string) error {
	_, err := q.Exec(`
		INSERT INTO storage (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("setting item %q: %w", key, err)
	}
	return nil
}

// incrementVisitCount bumps the visit counter and returns the new value.
// A corrupt counter restarts from zero.
func incrementVisitCount(db *sql.DB) (int64, error) {
	tx, err := db.Begin()
	if err != nil {
		return 0, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	raw, _, err := getItem(tx, visitCountKey)
	if err != nil {
		return 0, err
	}

	count, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || count < 0 {
		count = 0
	}
	count++

	if err := setItem(tx, visitCountKey, strconv.FormatInt(count, 10)); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing visit count: %w", err)
	}
	return count, nil
}

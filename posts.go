package main

import (
	"bytes"
	"cmp"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"slices"
	"strconv"
	"strings"
	"time"
)

// postsVersion is the current envelope version. Version 0 is the bare JSON
// array written by the browser version of the blog.
const postsVersion = 1

// now is swapped out by tests.
var now = time.Now

var errPostsUnreadable = errors.New("stored posts are unreadable")

func decodePosts(raw string) (postCollection, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return postCollection{Version: postsVersion}, nil
	}

	if strings.HasPrefix(raw, "[") {
		var posts []Post
		if err := json.Unmarshal([]byte(raw), &posts); err != nil {
			return postCollection{}, fmt.Errorf("%w: %v", errPostsUnreadable, err)
		}
		coll := postCollection{Version: 0, Posts: posts}
		for _, p := range posts {
			coll.LastID = max(coll.LastID, p.ID)
		}
		return coll, nil
	}

	var coll postCollection
	if err := json.Unmarshal([]byte(raw), &coll); err != nil {
		return postCollection{}, fmt.Errorf("%w: %v", errPostsUnreadable, err)
	}
	if coll.Version > postsVersion {
		return postCollection{}, fmt.Errorf("%w: unknown version %d", errPostsUnreadable, coll.Version)
	}
	for _, p := range coll.Posts {
		coll.LastID = max(coll.LastID, p.ID)
	}
	return coll, nil
}

func encodePosts(coll postCollection) (string, error) {
	coll.Version = postsVersion
	if coll.Posts == nil {
		coll.Posts = []Post{}
	}
	// Content is HTML; keep it readable in the stored blob.
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(coll); err != nil {
		return "", fmt.Errorf("encoding posts: %w", err)
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

func loadPosts(q querier) (postCollection, error) {
	raw, ok, err := getItem(q, postsKey)
	if err != nil {
		return postCollection{}, err
	}
	if !ok {
		return postCollection{Version: postsVersion}, nil
	}
	return decodePosts(raw)
}

// listPosts returns every post, newest first. Storage or decoding problems
// are logged and yield an empty list.
func listPosts(db *sql.DB) []Post {
	coll, err := loadPosts(db)
	if err != nil {
		log.Printf("WARN: listing posts: %v", err)
		return []Post{}
	}

	posts := slices.Clone(coll.Posts)
	slices.Reverse(posts)
	return posts
}

// getPost looks a post up by the decimal form of its id. It returns nil when
// the id is empty, unknown, or the store cannot be read.
func getPost(db *sql.DB, id string) *Post {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil
	}

	coll, err := loadPosts(db)
	if err != nil {
		log.Printf("WARN: getting post %q: %v", id, err)
		return nil
	}

	for _, p := range coll.Posts {
		if strconv.FormatInt(p.ID, 10) == id {
			return &p
		}
	}
	return nil
}

// nextID derives an id from the creation time, bumped past lastID when the
// clock has not moved on.
func nextID(ts, lastID int64) int64 {
	if ts <= lastID {
		return lastID + 1
	}
	return ts
}

// createPost sanitizes rawContent, appends a new post and rewrites the whole
// collection in one transaction. An unreadable collection is never
// overwritten.
func createPost(db *sql.DB, title, rawContent string) (Post, error) {
	tx, err := db.Begin()
	if err != nil {
		return Post{}, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	coll, err := loadPosts(tx)
	if err != nil {
		return Post{}, fmt.Errorf("loading posts: %w", err)
	}

	ts := now().UnixMilli()
	post := Post{
		ID:        nextID(ts, coll.LastID),
		Timestamp: ts,
		Title:     title,
		Content:   sanitizeHTML(rawContent),
	}
	coll.Posts = append(coll.Posts, post)
	coll.LastID = post.ID

	data, err := encodePosts(coll)
	if err != nil {
		return Post{}, err
	}
	if err := setItem(tx, postsKey, data); err != nil {
		return Post{}, err
	}
	if err := tx.Commit(); err != nil {
		return Post{}, fmt.Errorf("committing post: %w", err)
	}

	return post, nil
}

// importPosts merges posts exported by the browser version. Ids already in
// the store are skipped, content is sanitized again, timestamps are capped at
// now, and the collection is kept in id order so insertion order still
// matches creation order.
func importPosts(db *sql.DB, incoming []Post) (int, error) {
	tx, err := db.Begin()
	if err != nil {
		return 0, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	coll, err := loadPosts(tx)
	if err != nil {
		return 0, fmt.Errorf("loading posts: %w", err)
	}

	seen := make(map[int64]bool, len(coll.Posts))
	for _, p := range coll.Posts {
		seen[p.ID] = true
	}

	// Timestamps from the future would outrank every post created later.
	nowMs := now().UnixMilli()
	imported := 0
	for _, p := range incoming {
		if p.ID <= 0 {
			p.ID = nextID(now().UnixMilli(), coll.LastID)
		}
		if seen[p.ID] {
			continue
		}
		if p.Timestamp <= 0 {
			p.Timestamp = p.ID
		}
		p.Timestamp = min(p.Timestamp, nowMs)
		p.Content = sanitizeHTML(p.Content)

		coll.Posts = append(coll.Posts, p)
		coll.LastID = max(coll.LastID, p.ID)
		seen[p.ID] = true
		imported++
	}
	if imported == 0 {
		return 0, nil
	}

	slices.SortStableFunc(coll.Posts, func(a, b Post) int {
		return cmp.Compare(a.ID, b.ID)
	})

	data, err := encodePosts(coll)
	if err != nil {
		return 0, err
	}
	if err := setItem(tx, postsKey, data); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing import: %w", err)
	}

	return imported, nil
}

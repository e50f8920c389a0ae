package main

import "time"

// Post is a single published entry. The JSON names match the export format
// of the browser version so old exports can be imported unchanged.
type Post struct {
	ID        int64  `json:"id"`
	Timestamp int64  `json:"timestamp"`
	Title     string `json:"title"`
	Content   string `json:"content"`
}

// CreatedAt returns the creation time encoded in Timestamp.
func (p Post) CreatedAt() time.Time {
	return time.UnixMilli(p.Timestamp)
}

// postCollection is the envelope stored under postsKey.
type postCollection struct {
	Version int    `json:"version"`
	LastID  int64  `json:"lastId"`
	Posts   []Post `json:"posts"`
}

type Session struct {
	Token     string
	CreatedAt time.Time
	ExpiresAt time.Time
}

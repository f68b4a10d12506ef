// Package model defines the core data structures for feed-reader.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Feed represents a subscribed RSS/Atom feed and its articles.
type Feed struct {
	UUID     string    `json:"uuid"`
	Title    string    `json:"title"`
	Link     string    `json:"link"`
	Category string    `json:"category,omitempty"`
	Articles []Article `json:"articles"`
}

// NewFeed creates a subscription with a fresh UUID and no articles.
func NewFeed(link, title, category string) *Feed {
	return &Feed{
		UUID:     uuid.NewString(),
		Title:    title,
		Link:     link,
		Category: category,
		Articles: []Article{},
	}
}

// Validate checks if the feed has required fields.
func (f *Feed) Validate() error {
	if f.Link == "" {
		return errors.New("feed link is required")
	}
	if f.UUID == "" {
		return errors.New("feed uuid is required")
	}
	return nil
}

// StoredValue returns the record persisted for this feed.
func (f *Feed) StoredValue() StoredFeed {
	return StoredFeed{
		UUID:     f.UUID,
		Title:    f.Title,
		Link:     f.Link,
		Category: f.Category,
		Articles: f.Articles,
	}
}

// Article represents a single entry of a feed.
type Article struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Content string `json:"content"`
	Link    string `json:"link"`
	Date    int64  `json:"date"` // Unix milliseconds
	Read    bool   `json:"read"`
	Podcast string `json:"podcast,omitempty"`
}

// IsUnread returns true if the article hasn't been read.
func (a *Article) IsUnread() bool {
	return !a.Read
}

// Published returns the article date as a time.Time.
func (a *Article) Published() time.Time {
	return time.UnixMilli(a.Date)
}

// HasPodcast reports whether the article carries an audio enclosure.
func (a *Article) HasPodcast() bool {
	return a.Podcast != ""
}

// CountUnread returns the number of unread articles in the slice.
func CountUnread(articles []Article) int {
	n := 0
	for i := range articles {
		if articles[i].IsUnread() {
			n++
		}
	}
	return n
}

// StoredFeed is the persistence record of a feed.
type StoredFeed struct {
	UUID     string    `json:"uuid"`
	Title    string    `json:"title"`
	Link     string    `json:"link"`
	Category string    `json:"category,omitempty"`
	Articles []Article `json:"articles"`
}

// Feed converts the record back into a Feed.
func (s StoredFeed) Feed() *Feed {
	return &Feed{
		UUID:     s.UUID,
		Title:    s.Title,
		Link:     s.Link,
		Category: s.Category,
		Articles: s.Articles,
	}
}

// DragPayload is the opaque record handed to a drop target when a feed
// entry is dragged.
type DragPayload struct {
	UUID        string `json:"uuid"`
	WasSelected bool   `json:"wasSelected"`
}

// Encode serializes the payload for transfer.
func (p DragPayload) Encode() (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("failed to encode drag payload: %w", err)
	}
	return string(data), nil
}

// DecodeDragPayload parses a payload produced by DragPayload.Encode.
func DecodeDragPayload(s string) (DragPayload, error) {
	var p DragPayload
	if err := json.Unmarshal([]byte(s), &p); err != nil {
		return DragPayload{}, fmt.Errorf("failed to decode drag payload: %w", err)
	}
	if p.UUID == "" {
		return DragPayload{}, errors.New("drag payload has no uuid")
	}
	return p, nil
}

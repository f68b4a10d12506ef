package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeed_Validation(t *testing.T) {
	tests := []struct {
		name    string
		feed    Feed
		wantErr bool
	}{
		{
			name: "valid feed",
			feed: Feed{
				UUID:  "6d0c7c8e-1d1b-4b55-8f3e-8a7c7b1d2f10",
				Link:  "https://example.com/rss",
				Title: "Example Feed",
			},
			wantErr: false,
		},
		{
			name: "missing link",
			feed: Feed{
				UUID:  "6d0c7c8e-1d1b-4b55-8f3e-8a7c7b1d2f10",
				Title: "Example Feed",
			},
			wantErr: true,
		},
		{
			name: "missing uuid",
			feed: Feed{
				Link:  "https://example.com/rss",
				Title: "Example Feed",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.feed.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewFeed(t *testing.T) {
	a := NewFeed("https://example.com/rss", "Example", "tech")
	b := NewFeed("https://example.com/rss", "Example", "tech")

	require.NoError(t, a.Validate())
	assert.NotEqual(t, a.UUID, b.UUID, "each feed gets its own uuid")
	assert.Equal(t, "https://example.com/rss", a.Link)
	assert.Equal(t, "Example", a.Title)
	assert.Equal(t, "tech", a.Category)
	assert.NotNil(t, a.Articles)
	assert.Empty(t, a.Articles)
}

func TestCountUnread(t *testing.T) {
	assert.Equal(t, 2, CountUnread([]Article{
		{ID: "a", Read: true},
		{ID: "b"},
		{ID: "c"},
	}))
	assert.Equal(t, 0, CountUnread(nil))
}

func TestArticle_IsUnread(t *testing.T) {
	tests := []struct {
		name    string
		article Article
		expect  bool
	}{
		{name: "unread article", article: Article{Read: false}, expect: true},
		{name: "read article", article: Article{Read: true}, expect: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, tt.article.IsUnread())
		})
	}
}

func TestArticle_Published(t *testing.T) {
	when := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	a := Article{Date: when.UnixMilli()}
	assert.True(t, when.Equal(a.Published()))
}

func TestArticle_HasPodcast(t *testing.T) {
	assert.False(t, (&Article{}).HasPodcast())
	assert.True(t, (&Article{Podcast: "https://example.com/ep1.mp3"}).HasPodcast())
}

func TestStoredFeed_RoundTrip(t *testing.T) {
	f := &Feed{
		UUID:     "u-1",
		Title:    "Feed",
		Link:     "https://example.com/rss",
		Category: "tech",
		Articles: []Article{{ID: "a", Date: 10}},
	}
	assert.Equal(t, f, f.StoredValue().Feed())
}

func TestDragPayload_EncodeDecode(t *testing.T) {
	p := DragPayload{UUID: "u-1", WasSelected: true}

	encoded, err := p.Encode()
	require.NoError(t, err)
	assert.JSONEq(t, `{"uuid":"u-1","wasSelected":true}`, encoded)

	decoded, err := DecodeDragPayload(encoded)
	require.NoError(t, err)
	assert.Equal(t, p, decoded)
}

func TestDecodeDragPayload_Invalid(t *testing.T) {
	_, err := DecodeDragPayload("not json")
	assert.Error(t, err)

	_, err = DecodeDragPayload(`{"wasSelected":true}`)
	assert.Error(t, err, "payload without uuid should be rejected")
}

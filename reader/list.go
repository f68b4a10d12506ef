package reader

import (
	"errors"
	"fmt"
	"sync"

	"github.com/robertmeta/feed-reader/feed"
	"github.com/robertmeta/feed-reader/logger"
	"github.com/robertmeta/feed-reader/model"
)

// ErrUnknownFeed is returned for a UUID that is not in the list.
var ErrUnknownFeed = errors.New("unknown feed")

// Badge displays the aggregate unread count.
type Badge interface {
	SetUnread(total int)
}

// Storer persists every feed of the list.
type Storer interface {
	SaveFeeds(feeds []model.StoredFeed) error
}

// FeedList is the ordered set of subscriptions. At most one feed is
// selected at a time.
type FeedList struct {
	mu       sync.RWMutex
	feeds    []*FeedView
	selected *FeedView

	view   feed.ArticleView
	badge  Badge
	storer Storer
}

// NewFeedList creates a FeedList. Any collaborator may be nil.
func NewFeedList(view feed.ArticleView, badge Badge, storer Storer) *FeedList {
	return &FeedList{
		view:   view,
		badge:  badge,
		storer: storer,
	}
}

// Hooks returns the refresh collaborators backed by this list.
func (l *FeedList) Hooks() feed.Hooks {
	return feed.Hooks{
		Tray:      l,
		Selection: l,
		View:      l.view,
	}
}

// Add appends a feed to the list and returns its view.
func (l *FeedList) Add(f *model.Feed) *FeedView {
	v := NewFeedView(f)
	v.list = l

	l.mu.Lock()
	l.feeds = append(l.feeds, v)
	l.mu.Unlock()
	return v
}

// Remove drops a feed from the list. Removing the selected feed clears
// the selection.
func (l *FeedList) Remove(uuid string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	i := l.indexLocked(uuid)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrUnknownFeed, uuid)
	}
	if l.selected == l.feeds[i] {
		l.selected = nil
	}
	l.feeds = append(l.feeds[:i], l.feeds[i+1:]...)
	return nil
}

// Feed looks a feed up by UUID.
func (l *FeedList) Feed(uuid string) (*FeedView, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	i := l.indexLocked(uuid)
	if i < 0 {
		return nil, false
	}
	return l.feeds[i], true
}

// Feeds returns the feeds in list order.
func (l *FeedList) Feeds() []*FeedView {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]*FeedView(nil), l.feeds...)
}

// Targets returns the feeds as refresh targets.
func (l *FeedList) Targets() []feed.Target {
	feeds := l.Feeds()
	targets := make([]feed.Target, len(feeds))
	for i, f := range feeds {
		targets[i] = f
	}
	return targets
}

func (l *FeedList) indexLocked(uuid string) int {
	for i, f := range l.feeds {
		if f.uuid == uuid {
			return i
		}
	}
	return -1
}

// Select makes uuid the selected feed, deselecting its siblings, and
// shows its articles with the scroll reset. Selecting the already
// selected feed does nothing.
func (l *FeedList) Select(uuid string) error {
	l.mu.Lock()
	i := l.indexLocked(uuid)
	if i < 0 {
		l.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownFeed, uuid)
	}
	target := l.feeds[i]
	if target.Selected() {
		l.mu.Unlock()
		return nil
	}
	for _, f := range l.feeds {
		f.setSelected(false)
	}
	target.setSelected(true)
	l.selected = target
	l.mu.Unlock()

	if l.view != nil {
		l.view.UpdateArticles(target.Articles())
		l.view.ResetScroll()
	}
	return nil
}

// SelectedFeed returns the selected feed, or nil.
func (l *FeedList) SelectedFeed() *FeedView {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.selected
}

// SelectedUUID returns the selected feed's UUID, or "".
func (l *FeedList) SelectedUUID() string {
	if f := l.SelectedFeed(); f != nil {
		return f.uuid
	}
	return ""
}

func (l *FeedList) showIfSelected(v *FeedView, articles []model.Article) {
	if l.view != nil && l.SelectedFeed() == v {
		l.view.UpdateArticles(articles)
	}
}

// UnreadTotal returns the number of unread articles across all feeds.
func (l *FeedList) UnreadTotal() int {
	total := 0
	for _, f := range l.Feeds() {
		total += model.CountUnread(f.Articles())
	}
	return total
}

// UpdateTray recomputes the unread total and hands it to the badge.
func (l *FeedList) UpdateTray() {
	if l.badge != nil {
		l.badge.SetUnread(l.UnreadTotal())
	}
}

// MarkAllRead marks every article of uuid as read.
func (l *FeedList) MarkAllRead(uuid string) ([]model.Article, error) {
	f, ok := l.Feed(uuid)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFeed, uuid)
	}
	return f.MarkAllRead()
}

// MarkRead sets the read flag of article id in feed uuid.
func (l *FeedList) MarkRead(uuid, id string, read bool) ([]model.Article, error) {
	f, ok := l.Feed(uuid)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFeed, uuid)
	}
	return f.MarkRead(id, read)
}

// Move places the dragged feed described by payload at index, clamped to
// the list bounds. A feed that was selected when the drag started is
// selected again after the drop.
func (l *FeedList) Move(payload string, index int) error {
	p, err := model.DecodeDragPayload(payload)
	if err != nil {
		return err
	}

	l.mu.Lock()
	i := l.indexLocked(p.UUID)
	if i < 0 {
		l.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownFeed, p.UUID)
	}
	moved := l.feeds[i]
	rest := append(l.feeds[:i:i], l.feeds[i+1:]...)
	if index < 0 {
		index = 0
	}
	if index > len(rest) {
		index = len(rest)
	}
	feeds := make([]*FeedView, 0, len(l.feeds))
	feeds = append(feeds, rest[:index]...)
	feeds = append(feeds, moved)
	feeds = append(feeds, rest[index:]...)
	l.feeds = feeds
	l.mu.Unlock()

	if p.WasSelected {
		return l.Select(p.UUID)
	}
	return nil
}

// StoredFeeds returns the persistence records of every feed, in order.
func (l *FeedList) StoredFeeds() []model.StoredFeed {
	feeds := l.Feeds()
	stored := make([]model.StoredFeed, len(feeds))
	for i, f := range feeds {
		stored[i] = f.StoredValue()
	}
	return stored
}

// Store persists every feed.
func (l *FeedList) Store() error {
	if l.storer == nil {
		return nil
	}
	stored := l.StoredFeeds()
	if err := l.storer.SaveFeeds(stored); err != nil {
		return fmt.Errorf("failed to store feeds: %w", err)
	}
	logger.Debugf("stored %d feeds", len(stored))
	return nil
}

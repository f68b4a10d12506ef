// Package reader holds the in-memory state of the feed list: one FeedView
// per subscription, selection, unread badge and persistence requests.
package reader

import (
	"errors"
	"fmt"
	"sync"

	"github.com/robertmeta/feed-reader/model"
)

// ErrUnknownArticle is returned for an article id the feed does not hold.
var ErrUnknownArticle = errors.New("unknown article")

// State is the mutable part of a feed entry.
type State struct {
	Articles []model.Article
	Selected bool
}

// ItemView is the rendered feed list entry.
type ItemView struct {
	UUID      string `json:"uuid"`
	Title     string `json:"title"`
	Icon      string `json:"icon"`
	Selected  bool   `json:"selected"`
	Unread    int    `json:"unread"`
	ShowBadge bool   `json:"show_badge"`
}

// Render builds the list entry for a feed from its state.
func Render(uuid, title string, s State) ItemView {
	unread := model.CountUnread(s.Articles)
	return ItemView{
		UUID:      uuid,
		Title:     title,
		Icon:      "rss",
		Selected:  s.Selected,
		Unread:    unread,
		ShowBadge: unread > 0,
	}
}

// FeedView is one subscription in the feed list. It owns the feed's
// article collection; readers always get the last published slice.
type FeedView struct {
	uuid     string
	title    string
	link     string
	category string

	mu       sync.RWMutex
	state    State
	onRender func(ItemView)

	list *FeedList
}

// NewFeedView creates a standalone FeedView. Use FeedList.Add to create
// one that belongs to a list.
func NewFeedView(f *model.Feed) *FeedView {
	return &FeedView{
		uuid:     f.UUID,
		title:    f.Title,
		link:     f.Link,
		category: f.Category,
		state:    State{Articles: f.Articles},
	}
}

// UUID returns the feed's identity.
func (v *FeedView) UUID() string { return v.uuid }

// Title returns the feed title shown in the list.
func (v *FeedView) Title() string { return v.title }

// Link returns the URL the feed is fetched from.
func (v *FeedView) Link() string { return v.link }

// Articles returns the current article collection. Callers must not
// modify it.
func (v *FeedView) Articles() []model.Article {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.state.Articles
}

// SetArticles publishes a new article collection.
func (v *FeedView) SetArticles(articles []model.Article) {
	v.setState(func(s *State) { s.Articles = articles })
}

// Selected reports whether this feed is the selected one.
func (v *FeedView) Selected() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.state.Selected
}

func (v *FeedView) setSelected(selected bool) {
	v.setState(func(s *State) { s.Selected = selected })
}

// State returns a snapshot of the view state.
func (v *FeedView) State() State {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.state
}

// OnRender registers fn to receive every re-render. fn runs synchronously
// and must not call back into the owning FeedList.
func (v *FeedView) OnRender(fn func(ItemView)) {
	v.mu.Lock()
	v.onRender = fn
	v.mu.Unlock()
}

// Render renders the current state.
func (v *FeedView) Render() ItemView {
	return Render(v.uuid, v.title, v.State())
}

// setState applies update and re-renders.
func (v *FeedView) setState(update func(s *State)) {
	v.mu.Lock()
	update(&v.state)
	snapshot := v.state
	fn := v.onRender
	v.mu.Unlock()

	if fn != nil {
		fn(Render(v.uuid, v.title, snapshot))
	}
}

// MarkAllRead marks every article read, shows the result if this feed is
// selected, refreshes the tray and asks the owning list to persist.
// The updated collection is returned even when persisting fails.
func (v *FeedView) MarkAllRead() ([]model.Article, error) {
	var marked []model.Article
	v.setState(func(s *State) {
		marked = make([]model.Article, len(s.Articles))
		copy(marked, s.Articles)
		for i := range marked {
			marked[i].Read = true
		}
		s.Articles = marked
	})
	return marked, v.publish(marked)
}

// MarkRead sets the read flag of every article with the given id and
// then follows the same path as MarkAllRead.
func (v *FeedView) MarkRead(id string, read bool) ([]model.Article, error) {
	var marked []model.Article
	found := false
	v.setState(func(s *State) {
		marked = make([]model.Article, len(s.Articles))
		copy(marked, s.Articles)
		for i := range marked {
			if marked[i].ID == id {
				marked[i].Read = read
				found = true
			}
		}
		if found {
			s.Articles = marked
		}
	})
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrUnknownArticle, id)
	}
	return marked, v.publish(marked)
}

func (v *FeedView) publish(articles []model.Article) error {
	if v.list == nil {
		return nil
	}
	v.list.showIfSelected(v, articles)
	v.list.UpdateTray()
	return v.list.Store()
}

// DragPayload returns the record handed to a drop target.
func (v *FeedView) DragPayload() model.DragPayload {
	return model.DragPayload{
		UUID:        v.uuid,
		WasSelected: v.Selected(),
	}
}

// StoredValue returns the persistence record of the feed.
func (v *FeedView) StoredValue() model.StoredFeed {
	return model.StoredFeed{
		UUID:     v.uuid,
		Title:    v.title,
		Link:     v.link,
		Category: v.category,
		Articles: v.Articles(),
	}
}

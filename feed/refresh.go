package feed

import (
	"context"
	"fmt"
	"time"

	"github.com/robertmeta/feed-reader/logger"
	"github.com/robertmeta/feed-reader/model"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

const defaultConcurrency = 50

// Target is a feed whose articles a Refresher can replace.
type Target interface {
	UUID() string
	Link() string
	Articles() []model.Article
	SetArticles(articles []model.Article)
}

// Tray recomputes the aggregate unread badge.
type Tray interface {
	UpdateTray()
}

// Selection reports which feed is currently shown.
type Selection interface {
	SelectedUUID() string
}

// ArticleView displays the selected feed's articles.
type ArticleView interface {
	UpdateArticles(articles []model.Article)
	ResetScroll()
}

// Hooks are the collaborators notified after a successful refresh.
// Any of them may be nil.
type Hooks struct {
	Tray      Tray
	Selection Selection
	View      ArticleView
}

// Options tunes RefreshAll.
type Options struct {
	// Concurrency is the maximum number of feeds fetched at once.
	Concurrency int
	// RatePerSecond caps fetch starts per second. Zero disables the limit.
	RatePerSecond float64
}

// Refresher fetches feeds and merges new articles into them.
type Refresher struct {
	getter  Getter
	parser  ArticleParser
	hooks   Hooks
	limit   int
	limiter *rate.Limiter
	flights singleflight.Group
}

// NewRefresher creates a Refresher.
func NewRefresher(getter Getter, parser ArticleParser, hooks Hooks, opts Options) *Refresher {
	r := &Refresher{
		getter: getter,
		parser: parser,
		hooks:  hooks,
		limit:  opts.Concurrency,
	}
	if r.limit <= 0 {
		r.limit = defaultConcurrency
	}
	if opts.RatePerSecond > 0 {
		r.limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), 1)
	}
	return r
}

// Refresh fetches target's link, merges the parsed articles into it and
// returns the number of new articles.
//
// On success the target is updated first, then the tray is signalled,
// then the article view is refreshed if target is the selected feed.
// On failure the target is left untouched and the error is returned.
//
// Overlapping calls for the same feed share a single fetch and result.
// The shared fetch is detached from any one caller's cancellation; a
// caller whose ctx ends stops waiting and gets ctx.Err().
func (r *Refresher) Refresh(ctx context.Context, target Target) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	key := target.UUID()
	ch := r.flights.DoChan(key, func() (interface{}, error) {
		return r.refresh(context.WithoutCancel(ctx), target)
	})

	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case res := <-ch:
		if res.Shared {
			logger.Debugf("refresh of %s shared with a concurrent caller", key)
		}
		if res.Err != nil {
			return 0, res.Err
		}
		return res.Val.(int), nil
	}
}

func (r *Refresher) refresh(ctx context.Context, target Target) (int, error) {
	start := time.Now()

	body, err := r.getter.Get(ctx, target.Link())
	if err != nil {
		return 0, err
	}

	parsed, err := r.parser.Parse(body)
	if err != nil {
		return 0, fmt.Errorf("failed to parse feed from %s: %w", target.Link(), err)
	}

	merged, newCount := MergeArticles(target.Articles(), parsed)
	target.SetArticles(merged)

	if r.hooks.Tray != nil {
		r.hooks.Tray.UpdateTray()
	}
	if r.hooks.View != nil && r.hooks.Selection != nil && r.hooks.Selection.SelectedUUID() == target.UUID() {
		r.hooks.View.UpdateArticles(merged)
		r.hooks.View.ResetScroll()
	}

	logger.Debugf("refreshed %s: %d new of %d parsed in %s", target.Link(), newCount, len(parsed), time.Since(start))
	return newCount, nil
}

// Result is the outcome of refreshing one feed in RefreshAll.
type Result struct {
	UUID        string `json:"uuid"`
	Link        string `json:"link"`
	NewArticles int    `json:"new_articles"`
	Total       int    `json:"total_articles"`
	Err         error  `json:"-"`
}

// RefreshAll refreshes targets concurrently and returns one Result per
// target, in input order. A failing feed does not stop the others.
func (r *Refresher) RefreshAll(ctx context.Context, targets []Target) []Result {
	results := make([]Result, len(targets))

	var g errgroup.Group
	g.SetLimit(r.limit)

	for i, t := range targets {
		i, t := i, t
		results[i] = Result{UUID: t.UUID(), Link: t.Link()}
		g.Go(func() error {
			if r.limiter != nil {
				if err := r.limiter.Wait(ctx); err != nil {
					results[i].Err = err
					return nil
				}
			}

			n, err := r.Refresh(ctx, t)
			if err != nil {
				logger.Warnf("failed to refresh %s: %v", t.Link(), err)
				results[i].Err = err
				return nil
			}
			results[i].NewArticles = n
			results[i].Total = len(t.Articles())
			return nil
		})
	}

	_ = g.Wait()

	failed := 0
	for _, res := range results {
		if res.Err != nil {
			failed++
		}
	}
	logger.Infof("refreshed %d feeds, %d failed", len(results)-failed, failed)
	return results
}

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/robertmeta/feed-reader/config"
	"github.com/robertmeta/feed-reader/feed"
	"github.com/robertmeta/feed-reader/logger"
	"github.com/robertmeta/feed-reader/model"
	"github.com/robertmeta/feed-reader/reader"
	"github.com/robertmeta/feed-reader/store"
	"github.com/urfave/cli/v2"
)

// articleBuffer is the article-list view of the CLI: it keeps the last
// collection shown so commands can print it.
type articleBuffer struct {
	mu       sync.Mutex
	articles []model.Article
	scrolls  int
}

func (b *articleBuffer) UpdateArticles(articles []model.Article) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.articles = articles
}

func (b *articleBuffer) ResetScroll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.scrolls++
}

func (b *articleBuffer) Articles() []model.Article {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.articles
}

// unreadBadge records the tray unread total.
type unreadBadge struct {
	mu    sync.Mutex
	total int
}

func (b *unreadBadge) SetUnread(total int) {
	b.mu.Lock()
	b.total = total
	b.mu.Unlock()
	logger.Debugf("unread total is now %d", total)
}

func (b *unreadBadge) Total() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.total
}

// session wires the store, the feed list and the refresher for one command.
type session struct {
	cfg       *config.Config
	store     *store.Store
	list      *reader.FeedList
	view      *articleBuffer
	badge     *unreadBadge
	parser    *feed.Parser
	getter    *feed.HTTPGetter
	refresher *feed.Refresher
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	if c.IsSet("db") || cfg.DBPath == "" {
		cfg.DBPath = c.String("db")
	}
	return cfg, nil
}

func openStore(dbPath string) (*store.Store, error) {
	// Create directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	s, err := store.New(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return s, nil
}

// openSession loads every stored feed into a fresh feed list.
func openSession(c *cli.Context) (*session, error) {
	cfg, ok := c.App.Metadata["config"].(*config.Config)
	if !ok {
		return nil, fmt.Errorf("configuration not loaded")
	}

	s, err := openStore(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	stored, err := s.LoadFeeds()
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to load feeds: %w", err)
	}

	sess := &session{
		cfg:    cfg,
		store:  s,
		view:   &articleBuffer{},
		badge:  &unreadBadge{},
		parser: feed.NewParser(),
		getter: feed.NewHTTPGetter(cfg.HTTP.Timeout, cfg.HTTP.UserAgent),
	}
	sess.list = reader.NewFeedList(sess.view, sess.badge, s)
	for _, f := range stored {
		sess.list.Add(f.Feed())
	}
	sess.list.UpdateTray()

	sess.refresher = feed.NewRefresher(sess.getter, sess.parser, sess.list.Hooks(), feed.Options{
		Concurrency:   cfg.Refresh.Concurrency,
		RatePerSecond: cfg.Refresh.RatePerSecond,
	})
	return sess, nil
}

func (s *session) Close() error {
	if err := s.store.Close(); err != nil {
		logger.Errorf("failed to close database %s: %v", s.cfg.DBPath, err)
		return err
	}
	return nil
}

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/robertmeta/feed-reader/config"
	"github.com/robertmeta/feed-reader/feed"
	"github.com/robertmeta/feed-reader/logger"
	"github.com/robertmeta/feed-reader/model"
	"github.com/robertmeta/feed-reader/opml"
	"github.com/robertmeta/feed-reader/reader"
	"github.com/robertmeta/feed-reader/store"
	"github.com/urfave/cli/v2"
)

const (
	ExitSuccess      = 0
	ExitGeneralError = 1
	ExitUsageError   = 2
	ExitDataError    = 3
)

func main() {
	if err := newApp(os.Stdout).Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(ExitGeneralError)
	}
}

func newApp(stdout io.Writer) *cli.App {
	return &cli.App{
		Name:     "feed-reader",
		Usage:    "A scriptable RSS/Atom feed reader",
		Version:  "0.1.0",
		Writer:   stdout,
		Metadata: map[string]interface{}{},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   config.DefaultPath(),
				Usage:   "Config file path",
				EnvVars: []string{"FEED_READER_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "db",
				Aliases: []string{"d"},
				Value:   config.DefaultDBPath(),
				Usage:   "Database file path (overrides db_path from the config)",
				EnvVars: []string{"FEED_READER_DB"},
			},
		},
		Before: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return cli.Exit(fmt.Sprintf("Invalid configuration: %v", err), ExitUsageError)
			}
			if err := logger.Init(cfg.Log); err != nil {
				return cli.Exit(fmt.Sprintf("Failed to initialize logging: %v", err), ExitUsageError)
			}
			c.App.Metadata["config"] = cfg
			return nil
		},
		After: func(c *cli.Context) error {
			logger.Sync()
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:      "add",
				Usage:     "Subscribe to a feed",
				ArgsUsage: "<url>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "category",
						Usage: "Feed category",
					},
				},
				Action: addFeed,
			},
			{
				Name:   "feeds",
				Usage:  "List subscriptions with their unread counts",
				Action: listFeeds,
			},
			{
				Name:  "refresh",
				Usage: "Fetch feeds and merge new articles",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "feed",
						Aliases: []string{"f"},
						Usage:   "Refresh only the feed with this UUID",
					},
					&cli.StringFlag{
						Name:    "select",
						Aliases: []string{"s"},
						Usage:   "Select a feed and print its articles after the refresh",
					},
				},
				Action: refreshFeeds,
			},
			{
				Name:  "list",
				Usage: "List articles",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "limit",
						Aliases: []string{"l"},
						Value:   50,
						Usage:   "Maximum number of articles to return",
					},
					&cli.IntFlag{
						Name:    "offset",
						Aliases: []string{"o"},
						Usage:   "Offset for pagination",
					},
					&cli.BoolFlag{
						Name:    "unread",
						Aliases: []string{"u"},
						Usage:   "Show only unread articles",
					},
					&cli.StringFlag{
						Name:    "since",
						Aliases: []string{"s"},
						Usage:   "Show articles since duration (e.g., 7d, 2w, 3m, 1y)",
					},
					&cli.StringFlag{
						Name:    "feed",
						Aliases: []string{"f"},
						Usage:   "Show only articles of the feed with this UUID",
					},
				},
				Action: listArticles,
			},
			{
				Name:      "show",
				Usage:     "Show article details",
				ArgsUsage: "<article-id>",
				Action:    showArticle,
			},
			{
				Name:      "mark-read",
				Usage:     "Mark articles of a feed as read",
				ArgsUsage: "<feed-uuid> <article-id>...",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "unread",
						Aliases: []string{"u"},
						Usage:   "Mark the articles unread instead",
					},
				},
				Action: markRead,
			},
			{
				Name:      "mark-all-read",
				Usage:     "Mark every article of the given feeds as read",
				ArgsUsage: "<feed-uuid>...",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "all",
						Usage: "Mark every feed",
					},
				},
				Action: markAllRead,
			},
			{
				Name:      "move",
				Usage:     "Move a feed to a new position in the list",
				ArgsUsage: "<feed-uuid> <index>",
				Action:    moveFeed,
			},
			{
				Name:      "remove",
				Usage:     "Unsubscribe from a feed",
				ArgsUsage: "<feed-uuid>",
				Action:    removeFeed,
			},
			{
				Name:      "import",
				Usage:     "Import feeds from OPML file",
				ArgsUsage: "<opml-file>",
				Action:    importOPML,
			},
			{
				Name:  "export",
				Usage: "Export feeds to OPML file",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output file (default: stdout)",
					},
				},
				Action: exportOPML,
			},
		},
	}
}

func outputJSON(c *cli.Context, v interface{}) error {
	encoder := json.NewEncoder(c.App.Writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func addFeed(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("Usage: feed-reader add <url>", ExitUsageError)
	}
	url := c.Args().Get(0)

	s, err := openSession(c)
	if err != nil {
		return cli.Exit(err.Error(), ExitDataError)
	}
	defer s.Close()

	for _, existing := range s.list.Feeds() {
		if existing.Link() == url {
			return cli.Exit(fmt.Sprintf("Already subscribed: %s", existing.UUID()), ExitDataError)
		}
	}

	// Fetch once to get the title and the first batch of articles
	body, err := s.getter.Get(c.Context, url)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed to fetch feed: %v", err), ExitDataError)
	}
	parsed, articles, err := s.parser.ParseFeed(body)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed to parse feed: %v", err), ExitDataError)
	}

	newFeed := model.NewFeed(url, parsed.Title, c.String("category"))
	if newFeed.Title == "" {
		newFeed.Title = url
	}
	newFeed.Articles, _ = feed.MergeArticles(nil, articles)

	if err := newFeed.Validate(); err != nil {
		return cli.Exit(err.Error(), ExitDataError)
	}

	if err := s.store.SaveFeed(newFeed.StoredValue()); err != nil {
		return cli.Exit(fmt.Sprintf("Failed to save feed: %v", err), ExitDataError)
	}
	logger.Infof("subscribed to %s as %s", newFeed.Link, newFeed.UUID)

	return outputJSON(c, map[string]interface{}{
		"success":  true,
		"uuid":     newFeed.UUID,
		"title":    newFeed.Title,
		"link":     newFeed.Link,
		"articles": len(newFeed.Articles),
	})
}

type feedSummary struct {
	reader.ItemView
	Link     string `json:"link"`
	Category string `json:"category,omitempty"`
}

func listFeeds(c *cli.Context) error {
	s, err := openSession(c)
	if err != nil {
		return cli.Exit(err.Error(), ExitDataError)
	}
	defer s.Close()

	summaries := []feedSummary{}
	for _, f := range s.list.Feeds() {
		stored := f.StoredValue()
		summaries = append(summaries, feedSummary{
			ItemView: f.Render(),
			Link:     stored.Link,
			Category: stored.Category,
		})
	}

	return outputJSON(c, map[string]interface{}{
		"feeds":        summaries,
		"unread_total": s.badge.Total(),
	})
}

func refreshFeeds(c *cli.Context) error {
	s, err := openSession(c)
	if err != nil {
		return cli.Exit(err.Error(), ExitDataError)
	}
	defer s.Close()

	if sel := c.String("select"); sel != "" {
		if err := s.list.Select(sel); err != nil {
			return cli.Exit(err.Error(), ExitUsageError)
		}
	}

	var results []feed.Result
	if id := c.String("feed"); id != "" {
		target, ok := s.list.Feed(id)
		if !ok {
			return cli.Exit(fmt.Sprintf("No feed with UUID %s", id), ExitUsageError)
		}
		results = s.refresher.RefreshAll(c.Context, []feed.Target{target})
	} else {
		results = s.refresher.RefreshAll(c.Context, s.list.Targets())
	}

	// Persist whatever was merged, even if some feeds failed
	if err := s.list.Store(); err != nil {
		return cli.Exit(fmt.Sprintf("Failed to save feeds: %v", err), ExitDataError)
	}

	totalNew := 0
	failed := 0
	report := make(map[string]interface{}, len(results))
	for _, r := range results {
		if r.Err != nil {
			failed++
			report[r.UUID] = map[string]interface{}{
				"link":  r.Link,
				"error": r.Err.Error(),
			}
			continue
		}
		totalNew += r.NewArticles
		report[r.UUID] = r
	}

	out := map[string]interface{}{
		"updated_feeds":      len(results) - failed,
		"failed_feeds":       failed,
		"total_new_articles": totalNew,
		"unread_total":       s.badge.Total(),
		"results":            report,
	}
	if sel := s.list.SelectedFeed(); sel != nil {
		out["selected"] = map[string]interface{}{
			"uuid":     sel.UUID(),
			"articles": s.view.Articles(),
		}
	}
	return outputJSON(c, out)
}

func listArticles(c *cli.Context) error {
	opts, err := store.BuildQueryOptions(
		c.Int("limit"),
		c.Int("offset"),
		c.Bool("unread"),
		c.String("since"),
		c.String("feed"),
	)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Invalid query options: %v", err), ExitUsageError)
	}

	s, err := openSession(c)
	if err != nil {
		return cli.Exit(err.Error(), ExitDataError)
	}
	defer s.Close()

	articles, err := s.store.GetArticles(opts)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed to get articles: %v", err), ExitDataError)
	}
	if articles == nil {
		articles = []store.ArticleRecord{}
	}

	return outputJSON(c, map[string]interface{}{
		"count":    len(articles),
		"limit":    opts.Limit,
		"offset":   opts.Offset,
		"articles": articles,
	})
}

func showArticle(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("Usage: feed-reader show <article-id>", ExitUsageError)
	}

	s, err := openSession(c)
	if err != nil {
		return cli.Exit(err.Error(), ExitDataError)
	}
	defer s.Close()

	article, err := s.store.GetArticle(c.Args().Get(0))
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed to get article: %v", err), ExitDataError)
	}
	owner, err := s.store.GetFeed(article.FeedUUID)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed to get feed: %v", err), ExitDataError)
	}

	return outputJSON(c, articleDetail{
		ArticleRecord: article,
		FeedTitle:     owner.Title,
		Published:     article.Published().UTC().Format(time.RFC3339),
		HasPodcast:    article.HasPodcast(),
	})
}

type articleDetail struct {
	store.ArticleRecord
	FeedTitle  string `json:"feed_title"`
	Published  string `json:"published"`
	HasPodcast bool   `json:"has_podcast"`
}

func markRead(c *cli.Context) error {
	if c.NArg() < 2 {
		return cli.Exit("Usage: feed-reader mark-read <feed-uuid> <article-id>...", ExitUsageError)
	}
	id := c.Args().Get(0)
	read := !c.Bool("unread")

	s, err := openSession(c)
	if err != nil {
		return cli.Exit(err.Error(), ExitDataError)
	}
	defer s.Close()

	if _, ok := s.list.Feed(id); !ok {
		return cli.Exit(fmt.Sprintf("No feed with UUID %s", id), ExitUsageError)
	}

	marked := 0
	missing := []string{}
	for _, articleID := range c.Args().Tail() {
		if _, err := s.list.MarkRead(id, articleID, read); err != nil {
			if errors.Is(err, reader.ErrUnknownArticle) {
				missing = append(missing, articleID)
				continue
			}
			return cli.Exit(fmt.Sprintf("Failed to mark article: %v", err), ExitDataError)
		}
		marked++
	}

	return outputJSON(c, map[string]interface{}{
		"marked":       marked,
		"read":         read,
		"missing":      missing,
		"unread_total": s.badge.Total(),
	})
}

func markAllRead(c *cli.Context) error {
	if c.NArg() < 1 && !c.Bool("all") {
		return cli.Exit("Usage: feed-reader mark-all-read <feed-uuid>... | --all", ExitUsageError)
	}

	s, err := openSession(c)
	if err != nil {
		return cli.Exit(err.Error(), ExitDataError)
	}
	defer s.Close()

	uuids := c.Args().Slice()
	if c.Bool("all") {
		uuids = uuids[:0]
		for _, f := range s.list.Feeds() {
			uuids = append(uuids, f.UUID())
		}
	}

	marked := 0
	for _, id := range uuids {
		f, ok := s.list.Feed(id)
		if !ok {
			return cli.Exit(fmt.Sprintf("No feed with UUID %s", id), ExitUsageError)
		}
		unread := f.Render().Unread
		if _, err := s.list.MarkAllRead(id); err != nil {
			return cli.Exit(fmt.Sprintf("Failed to mark feed read: %v", err), ExitDataError)
		}
		marked += unread
	}

	return outputJSON(c, map[string]interface{}{
		"marked_read":  marked,
		"unread_total": s.badge.Total(),
	})
}

func moveFeed(c *cli.Context) error {
	if c.NArg() < 2 {
		return cli.Exit("Usage: feed-reader move <feed-uuid> <index>", ExitUsageError)
	}
	index, err := strconv.Atoi(c.Args().Get(1))
	if err != nil {
		return cli.Exit("Invalid index", ExitUsageError)
	}

	s, err := openSession(c)
	if err != nil {
		return cli.Exit(err.Error(), ExitDataError)
	}
	defer s.Close()

	f, ok := s.list.Feed(c.Args().Get(0))
	if !ok {
		return cli.Exit(fmt.Sprintf("No feed with UUID %s", c.Args().Get(0)), ExitUsageError)
	}

	payload, err := f.DragPayload().Encode()
	if err != nil {
		return cli.Exit(err.Error(), ExitGeneralError)
	}
	if err := s.list.Move(payload, index); err != nil {
		return cli.Exit(fmt.Sprintf("Failed to move feed: %v", err), ExitDataError)
	}
	if err := s.list.Store(); err != nil {
		return cli.Exit(fmt.Sprintf("Failed to save feeds: %v", err), ExitDataError)
	}

	order := []string{}
	for _, f := range s.list.Feeds() {
		order = append(order, f.UUID())
	}
	return outputJSON(c, map[string]interface{}{
		"success": true,
		"order":   order,
	})
}

func removeFeed(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("Usage: feed-reader remove <feed-uuid>", ExitUsageError)
	}
	id := c.Args().Get(0)

	s, err := openSession(c)
	if err != nil {
		return cli.Exit(err.Error(), ExitDataError)
	}
	defer s.Close()

	if err := s.list.Remove(id); err != nil {
		return cli.Exit(err.Error(), ExitUsageError)
	}
	if err := s.store.DeleteFeed(id); err != nil {
		return cli.Exit(fmt.Sprintf("Failed to remove feed: %v", err), ExitDataError)
	}
	logger.Infof("unsubscribed from %s", id)

	return outputJSON(c, map[string]interface{}{
		"success": true,
		"uuid":    id,
	})
}

func importOPML(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("Usage: feed-reader import <opml-file>", ExitUsageError)
	}

	file, err := os.Open(c.Args().Get(0))
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed to open OPML file: %v", err), ExitDataError)
	}
	defer file.Close()

	feeds, err := opml.Parse(file)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed to parse OPML: %v", err), ExitDataError)
	}

	s, err := openSession(c)
	if err != nil {
		return cli.Exit(err.Error(), ExitDataError)
	}
	defer s.Close()

	known := make(map[string]bool)
	for _, f := range s.list.Feeds() {
		known[f.Link()] = true
	}

	imported := 0
	skipped := []string{}
	for _, f := range feeds {
		if known[f.Link] {
			skipped = append(skipped, f.Link)
			continue
		}
		known[f.Link] = true
		if err := s.store.SaveFeed(f.StoredValue()); err != nil {
			return cli.Exit(fmt.Sprintf("Failed to save feed %s: %v", f.Link, err), ExitDataError)
		}
		imported++
	}

	return outputJSON(c, map[string]interface{}{
		"success":  true,
		"imported": imported,
		"skipped":  skipped,
		"total":    len(feeds),
	})
}

func exportOPML(c *cli.Context) error {
	s, err := openSession(c)
	if err != nil {
		return cli.Exit(err.Error(), ExitDataError)
	}
	defer s.Close()

	var feeds []*model.Feed
	for _, stored := range s.list.StoredFeeds() {
		feeds = append(feeds, stored.Feed())
	}

	outputPath := c.String("output")
	writer := c.App.Writer

	if outputPath != "" {
		file, err := os.Create(outputPath)
		if err != nil {
			return cli.Exit(fmt.Sprintf("Failed to create output file: %v", err), ExitDataError)
		}
		defer file.Close()
		writer = file
	}

	if err := opml.Generate(writer, feeds); err != nil {
		return cli.Exit(fmt.Sprintf("Failed to generate OPML: %v", err), ExitDataError)
	}

	// If outputting to file, also return JSON status
	if outputPath != "" {
		return outputJSON(c, map[string]interface{}{
			"success": true,
			"file":    outputPath,
			"count":   len(feeds),
		})
	}

	return nil
}

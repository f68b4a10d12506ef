package feed

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/robertmeta/feed-reader/model"
)

// ErrParse marks content that is not a recognizable feed.
var ErrParse = errors.New("parse error")

// ArticleParser converts feed XML into articles.
type ArticleParser interface {
	Parse(content string) ([]model.Article, error)
}

// Parser is the default ArticleParser, backed by gofeed.
type Parser struct {
	parser *gofeed.Parser
	now    func() time.Time
}

// NewParser creates a new Parser.
func NewParser() *Parser {
	return &Parser{
		parser: gofeed.NewParser(),
		now:    time.Now,
	}
}

// Parse parses feed content and returns its articles.
func (p *Parser) Parse(content string) ([]model.Article, error) {
	_, articles, err := p.ParseFeed(content)
	return articles, err
}

// ParseFeed parses feed content and returns the feed metadata along with
// its articles. The returned feed has no UUID.
func (p *Parser) ParseFeed(content string) (*model.Feed, []model.Article, error) {
	if strings.TrimSpace(content) == "" {
		return nil, nil, fmt.Errorf("%w: feed content is empty", ErrParse)
	}

	parsed, err := p.parser.ParseString(content)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrParse, err)
	}

	feed, articles := p.convert(parsed)
	return feed, articles, nil
}

// convert converts a gofeed.Feed to our model types.
func (p *Parser) convert(gf *gofeed.Feed) (*model.Feed, []model.Article) {
	feed := &model.Feed{
		Title: strings.TrimSpace(gf.Title),
		Link:  gf.FeedLink,
	}
	if feed.Link == "" {
		feed.Link = gf.Link
	}

	articles := make([]model.Article, 0, len(gf.Items))
	for _, item := range gf.Items {
		articles = append(articles, p.convertItem(item))
	}
	return feed, articles
}

// convertItem converts a gofeed.Item to a model.Article.
func (p *Parser) convertItem(item *gofeed.Item) model.Article {
	article := model.Article{
		ID:    firstNonEmpty(item.GUID, item.Link, item.Title),
		Title: strings.TrimSpace(item.Title),
		Link:  item.Link,
	}

	// Prefer full content over description
	article.Content = firstNonEmpty(item.Content, item.Description)

	switch {
	case item.PublishedParsed != nil:
		article.Date = item.PublishedParsed.UnixMilli()
	case item.UpdatedParsed != nil:
		article.Date = item.UpdatedParsed.UnixMilli()
	default:
		article.Date = p.now().UnixMilli()
	}

	article.Podcast = podcastURL(item.Enclosures)
	return article
}

// podcastURL picks the first audio enclosure, or the first enclosure of
// unknown type.
func podcastURL(enclosures []*gofeed.Enclosure) string {
	for _, enc := range enclosures {
		if enc == nil || enc.URL == "" {
			continue
		}
		if enc.Type == "" || strings.HasPrefix(strings.ToLower(enc.Type), "audio/") {
			return enc.URL
		}
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// Package store provides SQLite persistence for feed-reader.
package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/robertmeta/feed-reader/logger"
	"github.com/robertmeta/feed-reader/model"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a feed or article does not exist.
var ErrNotFound = errors.New("not found")

// Store manages the SQLite database.
type Store struct {
	db *sql.DB
}

// ArticleRecord is an article together with the feed it belongs to.
type ArticleRecord struct {
	FeedUUID string `json:"feed_uuid"`
	model.Article
}

// New creates a new Store with the given database path.
// Use ":memory:" for an in-memory database (useful for testing).
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}

	if err := store.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	logger.Debugf("opened store at %s", dbPath)
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// createSchema creates the database tables and indexes.
func (s *Store) createSchema() error {
	// Article ids are not unique per feed: a single fetch may carry the
	// same id twice and both copies are kept.
	schema := `
	CREATE TABLE IF NOT EXISTS feeds (
		uuid TEXT PRIMARY KEY,
		link TEXT UNIQUE NOT NULL,
		title TEXT,
		category TEXT,
		position INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS articles (
		feed_uuid TEXT NOT NULL,
		position INTEGER NOT NULL,
		id TEXT NOT NULL,
		title TEXT,
		content TEXT,
		link TEXT,
		date INTEGER NOT NULL,
		read INTEGER DEFAULT 0,
		podcast TEXT,
		PRIMARY KEY (feed_uuid, position),
		FOREIGN KEY (feed_uuid) REFERENCES feeds(uuid) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_articles_date ON articles(date DESC);
	CREATE INDEX IF NOT EXISTS idx_articles_read ON articles(read);
	CREATE INDEX IF NOT EXISTS idx_articles_id ON articles(id);
	`

	_, err := s.db.Exec(schema)
	return err
}

type execer interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
}

// SaveFeed inserts or updates a single feed together with its articles.
// Its position in the list is kept on update and appended on insert.
func (s *Store) SaveFeed(f model.StoredFeed) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var position int
	err = tx.QueryRow("SELECT position FROM feeds WHERE uuid = ?", f.UUID).Scan(&position)
	if err == sql.ErrNoRows {
		err = tx.QueryRow("SELECT COALESCE(MAX(position) + 1, 0) FROM feeds").Scan(&position)
	}
	if err != nil {
		return fmt.Errorf("failed to get feed position: %w", err)
	}

	if err := saveFeed(tx, f, position); err != nil {
		return err
	}
	return tx.Commit()
}

// SaveFeeds replaces the stored feed list with feeds, in order.
// Feeds missing from the list are deleted.
func (s *Store) SaveFeeds(feeds []model.StoredFeed) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("CREATE TEMP TABLE IF NOT EXISTS keep_feeds (uuid TEXT PRIMARY KEY)"); err != nil {
		return fmt.Errorf("failed to prepare feed list: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM keep_feeds"); err != nil {
		return fmt.Errorf("failed to prepare feed list: %w", err)
	}

	for i, f := range feeds {
		if err := saveFeed(tx, f, i); err != nil {
			return err
		}
		if _, err := tx.Exec("INSERT OR IGNORE INTO keep_feeds (uuid) VALUES (?)", f.UUID); err != nil {
			return fmt.Errorf("failed to record feed %s: %w", f.UUID, err)
		}
	}

	if _, err := tx.Exec("DELETE FROM articles WHERE feed_uuid NOT IN (SELECT uuid FROM keep_feeds)"); err != nil {
		return fmt.Errorf("failed to delete stale articles: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM feeds WHERE uuid NOT IN (SELECT uuid FROM keep_feeds)"); err != nil {
		return fmt.Errorf("failed to delete stale feeds: %w", err)
	}

	return tx.Commit()
}

func saveFeed(db execer, f model.StoredFeed, position int) error {
	if f.UUID == "" || f.Link == "" {
		return fmt.Errorf("feed %q: uuid and link are required", f.Title)
	}

	_, err := db.Exec(`
		INSERT INTO feeds (uuid, link, title, category, position) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(uuid) DO UPDATE SET
			link = excluded.link,
			title = excluded.title,
			category = excluded.category,
			position = excluded.position`,
		f.UUID, f.Link, f.Title, f.Category, position,
	)
	if err != nil {
		return fmt.Errorf("failed to save feed %s: %w", f.Link, err)
	}

	if _, err := db.Exec("DELETE FROM articles WHERE feed_uuid = ?", f.UUID); err != nil {
		return fmt.Errorf("failed to clear articles of %s: %w", f.Link, err)
	}

	for i, a := range f.Articles {
		_, err := db.Exec(
			"INSERT INTO articles (feed_uuid, position, id, title, content, link, date, read, podcast) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
			f.UUID, i, a.ID, a.Title, a.Content, a.Link, a.Date, boolToInt(a.Read), a.Podcast,
		)
		if err != nil {
			return fmt.Errorf("failed to insert article %s: %w", a.ID, err)
		}
	}
	return nil
}

// GetFeed retrieves a feed and its articles by UUID.
func (s *Store) GetFeed(uuid string) (model.StoredFeed, error) {
	var f model.StoredFeed
	err := s.db.QueryRow(
		"SELECT uuid, link, title, category FROM feeds WHERE uuid = ?",
		uuid,
	).Scan(&f.UUID, &f.Link, &f.Title, &f.Category)

	if err == sql.ErrNoRows {
		return f, fmt.Errorf("feed %s: %w", uuid, ErrNotFound)
	}
	if err != nil {
		return f, fmt.Errorf("failed to get feed: %w", err)
	}

	f.Articles, err = s.feedArticles(uuid)
	return f, err
}

// LoadFeeds retrieves every feed with its articles, in list order.
func (s *Store) LoadFeeds() ([]model.StoredFeed, error) {
	rows, err := s.db.Query("SELECT uuid, link, title, category FROM feeds ORDER BY position, rowid")
	if err != nil {
		return nil, fmt.Errorf("failed to query feeds: %w", err)
	}

	var feeds []model.StoredFeed
	for rows.Next() {
		var f model.StoredFeed
		if err := rows.Scan(&f.UUID, &f.Link, &f.Title, &f.Category); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan feed: %w", err)
		}
		feeds = append(feeds, f)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Articles are read after the feed rows are closed; the pool has a
	// single connection.
	for i := range feeds {
		feeds[i].Articles, err = s.feedArticles(feeds[i].UUID)
		if err != nil {
			return nil, err
		}
	}
	return feeds, nil
}

func (s *Store) feedArticles(uuid string) ([]model.Article, error) {
	rows, err := s.db.Query(
		"SELECT feed_uuid, id, title, content, link, date, read, podcast FROM articles WHERE feed_uuid = ? ORDER BY position",
		uuid,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query articles: %w", err)
	}
	defer rows.Close()

	articles := []model.Article{}
	for rows.Next() {
		rec, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		articles = append(articles, rec.Article)
	}
	return articles, rows.Err()
}

// DeleteFeed deletes a feed and its articles by UUID.
func (s *Store) DeleteFeed(uuid string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM articles WHERE feed_uuid = ?", uuid); err != nil {
		return fmt.Errorf("failed to delete articles: %w", err)
	}
	res, err := tx.Exec("DELETE FROM feeds WHERE uuid = ?", uuid)
	if err != nil {
		return fmt.Errorf("failed to delete feed: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("feed %s: %w", uuid, ErrNotFound)
	}
	return tx.Commit()
}

// GetArticle retrieves the first stored article with the given id.
func (s *Store) GetArticle(id string) (ArticleRecord, error) {
	row := s.db.QueryRow(
		"SELECT feed_uuid, id, title, content, link, date, read, podcast FROM articles WHERE id = ? ORDER BY date DESC LIMIT 1",
		id,
	)
	rec, err := scanArticle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return rec, fmt.Errorf("article %s: %w", id, ErrNotFound)
	}
	return rec, err
}

// GetArticles retrieves articles across feeds with optional filtering and pagination.
func (s *Store) GetArticles(opts QueryOptions) ([]ArticleRecord, error) {
	query := "SELECT feed_uuid, id, title, content, link, date, read, podcast FROM articles WHERE 1=1"
	args := []interface{}{}

	if opts.UnreadOnly {
		query += " AND read = 0"
	}

	if opts.FeedUUID != "" {
		query += " AND feed_uuid = ?"
		args = append(args, opts.FeedUUID)
	}

	if opts.SinceTime != nil {
		query += " AND date >= ?"
		args = append(args, *opts.SinceTime)
	}

	// Newest first
	query += " ORDER BY date DESC, feed_uuid, position"

	// SQLite needs a LIMIT before OFFSET
	if opts.Limit > 0 || opts.Offset > 0 {
		limit := opts.Limit
		if limit <= 0 {
			limit = -1
		}
		query += " LIMIT ?"
		args = append(args, limit)
	}

	if opts.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, opts.Offset)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query articles: %w", err)
	}
	defer rows.Close()

	var records []ArticleRecord
	for rows.Next() {
		rec, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanArticle(row scanner) (ArticleRecord, error) {
	var rec ArticleRecord
	var title, content, link, podcast sql.NullString
	var readInt int

	err := row.Scan(&rec.FeedUUID, &rec.ID, &title, &content, &link, &rec.Date, &readInt, &podcast)
	if err == sql.ErrNoRows {
		return rec, err
	}
	if err != nil {
		return rec, fmt.Errorf("failed to scan article: %w", err)
	}

	rec.Title = title.String
	rec.Content = content.String
	rec.Link = link.String
	rec.Podcast = podcast.String
	rec.Read = intToBool(readInt)
	return rec, nil
}

// Helper functions for boolean<->int conversion (SQLite doesn't have BOOLEAN type)
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func intToBool(i int) bool {
	return i != 0
}

// Package opml imports and exports feed-reader subscriptions as OPML.
package opml

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/robertmeta/feed-reader/model"
)

// OPML represents the root OPML structure.
type OPML struct {
	XMLName xml.Name `xml:"opml"`
	Version string   `xml:"version,attr"`
	Head    Head     `xml:"head"`
	Body    Body     `xml:"body"`
}

// Head contains metadata about the OPML document.
type Head struct {
	Title       string `xml:"title,omitempty"`
	DateCreated string `xml:"dateCreated,omitempty"`
}

// Body contains the outline elements.
type Body struct {
	Outlines []Outline `xml:"outline"`
}

// Outline represents a feed or a category folder.
type Outline struct {
	Text     string    `xml:"text,attr,omitempty"`
	Title    string    `xml:"title,attr,omitempty"`
	Type     string    `xml:"type,attr,omitempty"`
	XMLUrl   string    `xml:"xmlUrl,attr,omitempty"`
	Category string    `xml:"category,attr,omitempty"`
	Outlines []Outline `xml:"outline,omitempty"`
}

// Parse reads an OPML document and returns its subscriptions, each with a
// new UUID and no articles. Duplicate xmlUrls after the first are dropped.
func Parse(r io.Reader) ([]*model.Feed, error) {
	var doc OPML
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse OPML: %w", err)
	}

	seen := make(map[string]bool)
	var feeds []*model.Feed
	walk(doc.Body.Outlines, "", func(link, title, category string) {
		if seen[link] {
			return
		}
		seen[link] = true
		feeds = append(feeds, model.NewFeed(link, title, category))
	})
	return feeds, nil
}

// walk visits every outline carrying an xmlUrl. Folders pass their text
// down as the category of children that have none.
func walk(outlines []Outline, parentCategory string, visit func(link, title, category string)) {
	for _, o := range outlines {
		if link := strings.TrimSpace(o.XMLUrl); link != "" {
			category := o.Category
			if category == "" {
				category = parentCategory
			}
			title := o.Title
			if title == "" {
				title = o.Text
			}
			visit(link, title, category)
		}

		if len(o.Outlines) > 0 {
			folder := o.Text
			if folder == "" {
				folder = parentCategory
			}
			walk(o.Outlines, folder, visit)
		}
	}
}

// Generate writes feeds as an OPML document. Categorized feeds are grouped
// in folders, ordered by first appearance; uncategorized feeds follow at
// the top level.
func Generate(w io.Writer, feeds []*model.Feed) error {
	doc := OPML{
		Version: "2.0",
		Head: Head{
			Title:       "feed-reader Subscriptions",
			DateCreated: time.Now().Format(time.RFC1123),
		},
		Body: Body{
			Outlines: []Outline{},
		},
	}

	folders := make(map[string]int)
	var uncategorized []Outline

	for _, f := range feeds {
		entry := Outline{
			Type:     "rss",
			Text:     f.Title,
			Title:    f.Title,
			XMLUrl:   f.Link,
			Category: f.Category,
		}

		if f.Category == "" {
			uncategorized = append(uncategorized, entry)
			continue
		}

		i, ok := folders[f.Category]
		if !ok {
			i = len(doc.Body.Outlines)
			folders[f.Category] = i
			doc.Body.Outlines = append(doc.Body.Outlines, Outline{
				Text:  f.Category,
				Title: f.Category,
			})
		}
		doc.Body.Outlines[i].Outlines = append(doc.Body.Outlines[i].Outlines, entry)
	}
	doc.Body.Outlines = append(doc.Body.Outlines, uncategorized...)

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return fmt.Errorf("failed to write XML header: %w", err)
	}

	encoder := xml.NewEncoder(w)
	encoder.Indent("", "  ")
	if err := encoder.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode OPML: %w", err)
	}

	if _, err := io.WriteString(w, "\n"); err != nil {
		return fmt.Errorf("failed to write final newline: %w", err)
	}
	return nil
}

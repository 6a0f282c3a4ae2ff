package feed

import (
	"context"
	"fmt"
	"strings"

	"github.com/mmcdole/gofeed"
)

// Parser names accepted by NewParser.
const (
	ParserScan   = "scan"
	ParserGofeed = "gofeed"
)

// ItemParser turns a feed body into items.
type ItemParser interface {
	ParseItems(ctx context.Context, body []byte) ([]Item, error)
}

// NewParser returns the parser registered under name. Unknown names fall back to scan.
func NewParser(name string) ItemParser {
	if name == ParserGofeed {
		return GofeedParser{}
	}
	return ScanParser{}
}

// ScanParser extracts RSS items with ExtractFeedItems.
type ScanParser struct{}

// ParseItems implements ItemParser.
func (ScanParser) ParseItems(_ context.Context, body []byte) ([]Item, error) {
	return ExtractFeedItems(string(body)), nil
}

// GofeedParser parses RSS, Atom and JSON feeds with gofeed.
type GofeedParser struct{}

// ParseItems implements ItemParser. Entries without a title or usable link are skipped.
func (GofeedParser) ParseItems(ctx context.Context, body []byte) ([]Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}
	parsed, err := gofeed.NewParser().ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	items := make([]Item, 0, len(parsed.Items))
	for _, entry := range parsed.Items {
		title := strings.TrimSpace(entry.Title)
		link := entryLink(entry)
		if title == "" || link == "" {
			continue
		}
		item := Item{Title: title, Link: link}
		if entry.PublishedParsed != nil {
			published := entry.PublishedParsed.UTC()
			item.Published = &published
		}
		items = append(items, item)
	}
	return items, nil
}

// entryLink prefers the explicit link and falls back to a URL-shaped GUID.
func entryLink(entry *gofeed.Item) string {
	if link := strings.TrimSpace(entry.Link); link != "" {
		return link
	}
	if strings.HasPrefix(entry.GUID, "http") {
		return entry.GUID
	}
	return ""
}

// Package feed discovers publications from RSS and Atom feeds.
package feed

import (
	"html"
	"regexp"
	"strings"
	"time"
)

// Item is one feed entry with a title and link.
type Item struct {
	Title     string
	Link      string
	Published *time.Time
}

var (
	itemPattern    = regexp.MustCompile(`(?is)<item\b[^>]*>(.*?)</item>`)
	titlePattern   = regexp.MustCompile(`(?is)<title\b[^>]*>(.*?)</title>`)
	linkPattern    = regexp.MustCompile(`(?is)<link\b[^>]*>(.*?)</link>`)
	pubDatePattern = regexp.MustCompile(`(?is)<pubDate\b[^>]*>(.*?)</pubDate>`)
	cdataPattern   = regexp.MustCompile(`(?s)^\s*<!\[CDATA\[(.*?)\]\]>\s*$`)
)

var pubDateLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	"2 Jan 2006 15:04:05 -0700",
	time.RFC3339,
	"2006-01-02",
}

// ExtractFeedItems scans RSS <item> blocks and returns entries with both a title and a
// link. Malformed input degrades to fewer items, never an error.
func ExtractFeedItems(body string) []Item {
	matches := itemPattern.FindAllStringSubmatch(body, -1)
	items := make([]Item, 0, len(matches))
	for _, m := range matches {
		block := m[1]
		title := tagValue(titlePattern, block)
		link := tagValue(linkPattern, block)
		if title == "" || link == "" {
			continue
		}
		items = append(items, Item{
			Title:     title,
			Link:      link,
			Published: parsePubDate(tagValue(pubDatePattern, block)),
		})
	}
	return items
}

func tagValue(pattern *regexp.Regexp, block string) string {
	m := pattern.FindStringSubmatch(block)
	if m == nil {
		return ""
	}
	value := m[1]
	if cdata := cdataPattern.FindStringSubmatch(value); cdata != nil {
		value = cdata[1]
	}
	return strings.TrimSpace(html.UnescapeString(value))
}

func parsePubDate(value string) *time.Time {
	if value == "" {
		return nil
	}
	for _, layout := range pubDateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			utc := t.UTC()
			return &utc
		}
	}
	return nil
}

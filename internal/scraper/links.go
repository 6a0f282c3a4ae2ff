package scraper

import (
	"html"
	"net/url"
	"regexp"
	"strings"
)

// Anchor is a raw <a> element: its href attribute and visible text.
type Anchor struct {
	Href string
	Text string
}

var (
	anchorPattern     = regexp.MustCompile(`(?is)<a\s[^>]*?href\s*=\s*["']([^"']+)["'][^>]*>(.*?)</a>`)
	innerTagPattern   = regexp.MustCompile(`(?s)<[^>]*>`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// candidateMarkers identify links that point at publications.
var candidateMarkers = []string{"/insight", "/publication", "/report", "/article"}

// ExtractLinks scans HTML for anchors with a quoted href. Unclosed or malformed anchors
// are skipped.
func ExtractLinks(body string) []Anchor {
	matches := anchorPattern.FindAllStringSubmatch(body, -1)
	anchors := make([]Anchor, 0, len(matches))
	for _, m := range matches {
		anchors = append(anchors, Anchor{
			Href: html.UnescapeString(strings.TrimSpace(m[1])),
			Text: cleanText(innerTagPattern.ReplaceAllString(m[2], " ")),
		})
	}
	return anchors
}

func cleanText(s string) string {
	return strings.TrimSpace(whitespacePattern.ReplaceAllString(html.UnescapeString(s), " "))
}

// Link is a resolved candidate publication link.
type Link struct {
	URL  string
	Text string
}

// SelectCandidates resolves anchors against the page URL and keeps same-host links whose
// path contains a publication marker, de-duplicated by URL and capped at limit.
func SelectCandidates(page *url.URL, anchors []Anchor, limit int) []Link {
	seen := make(map[string]struct{})
	var out []Link
	for _, a := range anchors {
		if limit > 0 && len(out) >= limit {
			break
		}
		ref, err := url.Parse(a.Href)
		if err != nil {
			continue
		}
		resolved := page.ResolveReference(ref)
		resolved.Fragment = ""
		resolved.Host = strings.ToLower(resolved.Host)
		if resolved.Scheme != "http" && resolved.Scheme != "https" {
			continue
		}
		if !strings.EqualFold(resolved.Hostname(), page.Hostname()) {
			continue
		}
		if !hasMarker(strings.ToLower(resolved.Path)) {
			continue
		}
		key := resolved.String()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, Link{URL: key, Text: a.Text})
	}
	return out
}

func hasMarker(path string) bool {
	for _, marker := range candidateMarkers {
		if strings.Contains(path, marker) {
			return true
		}
	}
	return false
}

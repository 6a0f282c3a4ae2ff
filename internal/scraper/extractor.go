package scraper

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Extractor names accepted by NewExtractor.
const (
	ExtractorScan    = "scan"
	ExtractorGoquery = "goquery"
)

// LinkExtractor pulls anchors out of an HTML page.
type LinkExtractor interface {
	Anchors(body []byte) ([]Anchor, error)
}

// NewExtractor returns the extractor registered under name. Unknown names fall back to scan.
func NewExtractor(name string) LinkExtractor {
	if name == ExtractorGoquery {
		return GoqueryExtractor{}
	}
	return ScanExtractor{}
}

// ScanExtractor uses ExtractLinks.
type ScanExtractor struct{}

// Anchors implements LinkExtractor.
func (ScanExtractor) Anchors(body []byte) ([]Anchor, error) {
	return ExtractLinks(string(body)), nil
}

// GoqueryExtractor walks the parsed DOM with goquery.
type GoqueryExtractor struct{}

// Anchors implements LinkExtractor.
func (GoqueryExtractor) Anchors(body []byte) ([]Anchor, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	var anchors []Anchor
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" {
			return
		}
		anchors = append(anchors, Anchor{Href: href, Text: cleanText(s.Text())})
	})
	return anchors, nil
}
